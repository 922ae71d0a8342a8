package stubs

import (
	"context"
	"sort"
	"sync"
	"time"

	"shopbot/internal/models"
	"shopbot/internal/storage"
)

// MockDB is an in-memory implementation of the Storage interface for
// tests and local runs without postgres.
type MockDB struct {
	mu         sync.Mutex
	products   map[int64]models.Product
	variations map[int64]models.Variation
	orders     map[int64]models.Order
	users      map[int64]models.User
	referrals  []referral
	reviews    []models.Review

	nextProductID   int64
	nextVariationID int64
	nextOrderID     int64
	nextReviewID    int64
}

type referral struct {
	referrerID int64
	refereeID  int64
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		products:        make(map[int64]models.Product),
		variations:      make(map[int64]models.Variation),
		orders:          make(map[int64]models.Order),
		users:           make(map[int64]models.User),
		nextProductID:   1,
		nextVariationID: 1,
		nextOrderID:     1,
		nextReviewID:    1,
	}
}

// --- Catalog ---

func (m *MockDB) CreateProduct(ctx context.Context, p *models.Product) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextProductID
	m.nextProductID++
	stored := *p
	stored.ID = id
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.products[id] = stored
	return id, nil
}

func (m *MockDB) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

func (m *MockDB) GetProductByArticle(ctx context.Context, article string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.products {
		if p.TableID == article {
			result := p
			return &result, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *MockDB) ListProducts(ctx context.Context, limit int) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listProducts(limit, false), nil
}

func (m *MockDB) ListExclusiveProducts(ctx context.Context, limit int) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listProducts(limit, true), nil
}

func (m *MockDB) listProducts(limit int, exclusiveOnly bool) []models.Product {
	var products []models.Product
	for _, p := range m.products {
		if !p.IsAvailable {
			continue
		}
		if exclusiveOnly && !p.IsExclusive {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].ID < products[j].ID
	})
	if limit > 0 && limit < len(products) {
		products = products[:limit]
	}
	return products
}

func (m *MockDB) SetExclusive(ctx context.Context, productID int64, exclusive bool, coinPrice int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return storage.ErrNotFound
	}
	p.IsExclusive = exclusive
	p.CoinPrice = coinPrice
	m.products[productID] = p
	return nil
}

// --- Variations ---

func (m *MockDB) CreateVariation(ctx context.Context, v *models.Variation) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextVariationID
	m.nextVariationID++
	stored := *v
	stored.ID = id
	m.variations[id] = stored
	return id, nil
}

func (m *MockDB) ListVariations(ctx context.Context, productID int64) ([]models.Variation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var variations []models.Variation
	for _, v := range m.variations {
		if v.ProductID == productID {
			variations = append(variations, v)
		}
	}
	sort.Slice(variations, func(i, j int) bool {
		return variations[i].ID < variations[j].ID
	})
	return variations, nil
}

func (m *MockDB) GetVariation(ctx context.Context, productID int64, size string) (*models.Variation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.findVariation(productID, size)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &v, nil
}

func (m *MockDB) findVariation(productID int64, size string) (models.Variation, bool) {
	for _, v := range m.variations {
		if v.ProductID == productID && v.Size == size {
			return v, true
		}
	}
	return models.Variation{}, false
}

func (m *MockDB) DecrementQuantity(ctx context.Context, productID int64, size string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.findVariation(productID, size)
	if !ok {
		return storage.ErrNotFound
	}
	if v.Quantity <= 0 {
		return storage.ErrInsufficientStock
	}
	v.Quantity--
	m.variations[v.ID] = v
	return nil
}

func (m *MockDB) IncrementQuantity(ctx context.Context, productID int64, size string, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.findVariation(productID, size)
	if !ok {
		return storage.ErrNotFound
	}
	v.Quantity += amount
	m.variations[v.ID] = v
	return nil
}

// --- Bulk ---

func (m *MockDB) ReplaceAll(ctx context.Context, rows []storage.ProductRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearCatalogLocked()
	for i := range rows {
		id := m.nextProductID
		m.nextProductID++
		product := rows[i].Product
		product.ID = id
		if product.CreatedAt.IsZero() {
			product.CreatedAt = time.Now()
		}
		m.products[id] = product
		for j := range rows[i].Variations {
			vid := m.nextVariationID
			m.nextVariationID++
			variation := rows[i].Variations[j]
			variation.ID = vid
			variation.ProductID = id
			m.variations[vid] = variation
		}
	}
	return nil
}

func (m *MockDB) ClearAllProducts(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCatalogLocked()
	return nil
}

func (m *MockDB) clearCatalogLocked() {
	for id, o := range m.orders {
		if o.Status == models.StatusPending {
			delete(m.orders, id)
		}
	}
	m.variations = make(map[int64]models.Variation)
	m.products = make(map[int64]models.Product)
}

// --- Orders ---

func (m *MockDB) CreateOrder(ctx context.Context, o *models.Order) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextOrderID
	m.nextOrderID++
	stored := *o
	stored.ID = id
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.orders[id] = stored
	return id, nil
}

func (m *MockDB) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &o, nil
}

func (m *MockDB) UpdateOrderStatus(ctx context.Context, id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return storage.ErrNotFound
	}
	o.Status = status
	m.orders[id] = o
	return nil
}

func (m *MockDB) TransitionOrderStatus(ctx context.Context, id int64, fromStatus, toStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return storage.ErrNotFound
	}
	if o.Status != fromStatus {
		return storage.ErrConflict
	}
	o.Status = toStatus
	m.orders[id] = o
	return nil
}

func (m *MockDB) SetOrderAdminMessage(ctx context.Context, id int64, messageID, topicID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return storage.ErrNotFound
	}
	o.AdminMsgID = messageID
	o.AdminTopic = topicID
	m.orders[id] = o
	return nil
}

func (m *MockDB) ListOrdersByUser(ctx context.Context, userID int64, limit int) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var orders []models.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	if limit > 0 && limit < len(orders) {
		orders = orders[:limit]
	}
	return orders, nil
}

// --- Users ---

func (m *MockDB) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *u
	if stored.Status == "" {
		stored.Status = "Новый"
	}
	m.users[u.ID] = stored
	return nil
}

func (m *MockDB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (m *MockDB) UpdateLastActive(ctx context.Context, userID int64, t time.Time) error {
	return m.updateUser(userID, func(u *models.User) { u.LastActive = t })
}

func (m *MockDB) SetDiscount(ctx context.Context, userID int64, percent int) error {
	return m.updateUser(userID, func(u *models.User) { u.Discount = percent })
}

func (m *MockDB) AddDiscount(ctx context.Context, userID int64, delta int) error {
	return m.updateUser(userID, func(u *models.User) { u.Discount += delta })
}

func (m *MockDB) IncrementComments(ctx context.Context, userID int64) error {
	return m.updateUser(userID, func(u *models.User) { u.Comments++ })
}

func (m *MockDB) IncrementOrders(ctx context.Context, userID int64) error {
	return m.updateUser(userID, func(u *models.User) { u.Orders++ })
}

func (m *MockDB) updateUser(userID int64, apply func(*models.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	apply(&u)
	m.users[userID] = u
	return nil
}

func (m *MockDB) AddAchievement(ctx context.Context, userID int64, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return false, storage.ErrNotFound
	}
	if u.HasAchievement(name) {
		return false, nil
	}
	u.Achievements = append(u.Achievements, name)
	m.users[userID] = u
	return true, nil
}

// --- Ledger ---

func (m *MockDB) Credit(ctx context.Context, userID int64, amount int64) error {
	return m.updateUser(userID, func(u *models.User) { u.Coins += amount })
}

func (m *MockDB) Debit(ctx context.Context, userID int64, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	if u.Coins < amount {
		return storage.ErrInsufficientBalance
	}
	u.Coins -= amount
	m.users[userID] = u
	return nil
}

// --- Referrals ---

func (m *MockDB) AddReferral(ctx context.Context, referrerID, refereeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.referrals = append(m.referrals, referral{referrerID: referrerID, refereeID: refereeID})
	return nil
}

func (m *MockDB) CountReferrals(ctx context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, r := range m.referrals {
		if r.referrerID == userID {
			count++
		}
	}
	return count, nil
}

// --- Reviews ---

func (m *MockDB) CreateReview(ctx context.Context, r *models.Review) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextReviewID
	m.nextReviewID++
	stored := *r
	stored.ID = id
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	if u, ok := m.users[r.UserID]; ok && stored.Author == "" {
		stored.Author = u.FirstName
		if stored.Author == "" {
			stored.Author = u.Username
		}
	}
	m.reviews = append(m.reviews, stored)
	return id, nil
}

func (m *MockDB) ListReviews(ctx context.Context, limit int) ([]models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reviews := make([]models.Review, len(m.reviews))
	copy(reviews, m.reviews)
	sort.Slice(reviews, func(i, j int) bool {
		return reviews[i].CreatedAt.After(reviews[j].CreatedAt)
	})
	if limit > 0 && limit < len(reviews) {
		reviews = reviews[:limit]
	}
	return reviews, nil
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}
