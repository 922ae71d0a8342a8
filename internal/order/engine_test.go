package order

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbot/internal/models"
	"shopbot/internal/storage"
	"shopbot/internal/storage/stubs"
)

// stubNotifier records engine notifications instead of sending them
type stubNotifier struct {
	mu        sync.Mutex
	userTexts []string
	decisions int
	closed    []string
	failAll   bool
}

func (n *stubNotifier) NotifyUser(ctx context.Context, userID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failAll {
		return errors.New("telegram down")
	}
	n.userTexts = append(n.userTexts, text)
	return nil
}

func (n *stubNotifier) RequestDecision(ctx context.Context, o *models.Order, p *models.Product) (int, int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failAll {
		return 0, 0, errors.New("telegram down")
	}
	n.decisions++
	return 100, 7, nil
}

func (n *stubNotifier) CloseDecision(ctx context.Context, o *models.Order, resolution string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failAll {
		return errors.New("telegram down")
	}
	n.closed = append(n.closed, resolution)
	return nil
}

func (n *stubNotifier) lastUserText() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.userTexts) == 0 {
		return ""
	}
	return n.userTexts[len(n.userTexts)-1]
}

func seedShop(t *testing.T, db *stubs.MockDB, qty int) (productID int64) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &models.User{ID: 123, FirstName: "Иван"}))

	productID, err := db.CreateProduct(ctx, &models.Product{
		Name:        "Кроссовки",
		Description: "Классика",
		Price:       4990,
		IsAvailable: true,
	})
	require.NoError(t, err)

	_, err = db.CreateVariation(ctx, &models.Variation{
		ProductID: productID,
		Size:      "42",
		Quantity:  qty,
	})
	require.NoError(t, err)
	return productID
}

func seedExclusive(t *testing.T, db *stubs.MockDB, coinPrice, balance int64) (productID int64) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &models.User{ID: 123, Coins: balance}))

	productID, err := db.CreateProduct(ctx, &models.Product{
		Name:        "Худи лимитка",
		CoinPrice:   coinPrice,
		IsExclusive: true,
		IsAvailable: true,
	})
	require.NoError(t, err)

	_, err = db.CreateVariation(ctx, &models.Variation{
		ProductID: productID,
		Size:      "M",
		Quantity:  1,
	})
	require.NoError(t, err)
	return productID
}

func placeInput(productID int64, size string) PlaceInput {
	return PlaceInput{
		UserID:    123,
		ProductID: productID,
		Size:      size,
		City:      "Москва",
		Address:   "ул. Ленина, 1",
		FullName:  "Иванов Иван",
		Phone:     "+79990001122",
		Delivery:  "СДЭК",
	}
}

func TestPlaceHappyPath(t *testing.T) {
	ctx := context.Background()
	db := stubs.NewMockDB()
	productID := seedShop(t, db, 3)

	n := &stubNotifier{}
	e := NewEngine(db, n, nil, nil)

	o, err := e.Place(ctx, placeInput(productID, "42"))
	require.NoError(t, err)
	require.NotNil(t, o)

	assert.Equal(t, models.StatusPending, o.Status)
	assert.Equal(t, 1, o.Quantity)
	assert.Equal(t, float64(4990), o.Price)
	assert.False(t, o.Decided())

	v, err := db.GetVariation(ctx, productID, "42")
	require.NoError(t, err)
	assert.Equal(t, 2, v.Quantity, "one unit must be reserved")

	assert.Equal(t, 1, n.decisions)

	stored, err := db.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, stored.AdminMsgID)
	assert.Equal(t, 7, stored.AdminTopic)
}

func TestPlaceLastUnitRace(t *testing.T) {
	ctx := context.Background()
	db := stubs.NewMockDB()
	productID := seedShop(t, db, 1)

	e := NewEngine(db, &stubNotifier{}, nil, nil)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Place(ctx, placeInput(productID, "42"))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, storage.ErrInsufficientStock):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes, "exactly one buyer gets the last unit")
	assert.Equal(t, 1, conflicts)

	v, err := db.GetVariation(ctx, productID, "42")
	require.NoError(t, err)
	assert.Equal(t, 0, v.Quantity, "stock must never go negative")
}

func TestPlaceExclusiveDebitsCoins(t *testing.T) {
	ctx := context.Background()
	db := stubs.NewMockDB()
	productID := seedExclusive(t, db, 500, 600)

	e := NewEngine(db, &stubNotifier{}, nil, nil)

	o, err := e.Place(ctx, placeInput(productID, "M"))
	require.NoError(t, err)
	assert.Equal(t, int64(500), o.CoinPrice)
	assert.Equal(t, float64(0), o.Price)

	u, err := db.GetUser(ctx, 123)
	require.NoError(t, err)
	assert.Equal(t, int64(100), u.Coins)
}

func TestPlaceInsufficientBalanceLeavesStockAlone(t *testing.T) {
	ctx := context.Background()
	db := stubs.NewMockDB()
	productID := seedExclusive(t, db, 500, 100)

	e := NewEngine(db, &stubNotifier{}, nil, nil)

	_, err := e.Place(ctx, placeInput(productID, "M"))
	require.ErrorIs(t, err, storage.ErrInsufficientBalance)

	v, err := db.GetVariation(ctx, productID, "M")
	require.NoError(t, err)
	assert.Equal(t, 1, v.Quantity)

	u, err := db.GetUser(ctx, 123)
	require.NoError(t, err)
	assert.Equal(t, int64(100), u.Coins)
}

func TestPlaceUnknownSizeFailsCleanly(t *testing.T) {
	ctx := context.Background()
	db := stubs.NewMockDB()
	productID := seedShop(t, db, 3)

	e := NewEngine(db, &stubNotifier{}, nil, nil)

	_, err := e.Place(ctx, placeInput(productID, "45"))
	require.ErrorIs(t, err, storage.ErrInsufficientStock)
}

// failingOrders fails every order insert to force the compensation path
type failingOrders struct {
	storage.Storage
}

func (f *failingOrders) CreateOrder(ctx context.Context, o *models.Order) (int64, error) {
	return 0, errors.New("disk full")
}

func TestPlaceCompensatesOnFailedInsert(t *testing.T) {
	ctx := context.Background()
	db := stubs.NewMockDB()
	productID := seedExclusive(t, db, 500, 600)

	e := NewEngine(&failingOrders{Storage: db}, &stubNotifier{}, nil, nil)

	_, err := e.Place(ctx, placeInput(productID, "M"))
	require.Error(t, err)

	v, err := db.GetVariation(ctx, productID, "M")
	require.NoError(t, err)
	assert.Equal(t, 1, v.Quantity, "reserved unit must return to stock")

	u, err := db.GetUser(ctx, 123)
	require.NoError(t, err)
	assert.Equal(t, int64(600), u.Coins, "debited coins must be refunded")
}

func TestApproveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := stubs.NewMockDB()
	productID := seedShop(t, db, 3)

	n := &stubNotifier{}
	e := NewEngine(db, n, nil, nil)

	placed, err := e.Place(ctx, placeInput(productID, "42"))
	require.NoError(t, err)

	approved, err := e.Approve(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, approved.Status)
	assert.Contains(t, n.lastUserText(), "подтвержден")
	assert.Equal(t, []string{"✅ Подтвержден"}, n.closed)

	_, err = e.Approve(ctx, placed.ID)
	require.ErrorIs(t, err, ErrAlreadyDecided)

	_, err = e.Reject(ctx, placed.ID, "передумали")
	require.ErrorIs(t, err, ErrAlreadyDecided)

	v, err := db.GetVariation(ctx, productID, "42")
	require.NoError(t, err)
	assert.Equal(t, 2, v.Quantity, "a rejected approve must not refund stock")
}

func TestRejectRefundsStockAndCoins(t *testing.T) {
	ctx := context.Background()
	db := stubs.NewMockDB()
	productID := seedExclusive(t, db, 500, 500)

	n := &stubNotifier{}
	e := NewEngine(db, n, nil, nil)

	placed, err := e.Place(ctx, placeInput(productID, "M"))
	require.NoError(t, err)

	u, err := db.GetUser(ctx, 123)
	require.NoError(t, err)
	require.Equal(t, int64(0), u.Coins)

	rejected, err := e.Reject(ctx, placed.ID, "нет в наличии")
	require.NoError(t, err)
	assert.Equal(t, "REJECTED: нет в наличии", rejected.Status)
	assert.True(t, rejected.Decided())

	v, err := db.GetVariation(ctx, productID, "M")
	require.NoError(t, err)
	assert.Equal(t, 1, v.Quantity, "rejected unit must go back on the shelf")

	u, err = db.GetUser(ctx, 123)
	require.NoError(t, err)
	assert.Equal(t, int64(500), u.Coins, "coin refund must mirror the debit")

	text := n.lastUserText()
	assert.Contains(t, text, "нет в наличии")
	assert.Contains(t, text, "500 BS Coin")

	_, err = e.Reject(ctx, placed.ID, "нет в наличии")
	require.ErrorIs(t, err, ErrAlreadyDecided, "a second reject must not refund twice")

	u, err = db.GetUser(ctx, 123)
	require.NoError(t, err)
	assert.Equal(t, int64(500), u.Coins)
}

func TestSetStatusNotifiesBuyer(t *testing.T) {
	ctx := context.Background()
	db := stubs.NewMockDB()
	productID := seedShop(t, db, 3)

	n := &stubNotifier{}
	e := NewEngine(db, n, nil, nil)

	placed, err := e.Place(ctx, placeInput(productID, "42"))
	require.NoError(t, err)
	_, err = e.Approve(ctx, placed.ID)
	require.NoError(t, err)

	o, err := e.SetStatus(ctx, placed.ID, models.StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, o.Status)
	assert.Contains(t, n.lastUserText(), "отправлен")
}

func TestPlaceSurvivesNotifierOutage(t *testing.T) {
	ctx := context.Background()
	db := stubs.NewMockDB()
	productID := seedShop(t, db, 3)

	n := &stubNotifier{failAll: true}
	e := NewEngine(db, n, nil, nil)

	o, err := e.Place(ctx, placeInput(productID, "42"))
	require.NoError(t, err, "a dead notifier must not lose the order")

	stored, err := db.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, 0, stored.AdminMsgID)
}

func TestApplyDiscount(t *testing.T) {
	assert.Equal(t, float64(4990), ApplyDiscount(4990, 0))
	assert.Equal(t, float64(4740.5), ApplyDiscount(4990, 5))
	assert.Equal(t, float64(0), ApplyDiscount(4990, 100))
	assert.Equal(t, float64(4990), ApplyDiscount(4990, -3))
}

func TestSummaryRendersCoinPrice(t *testing.T) {
	p := &models.Product{Name: "Худи"}
	o := &models.Order{Size: "M", CoinPrice: 500, City: "Казань"}
	s := Summary(o, p)
	assert.True(t, strings.Contains(s, "500 BS Coin"))
	assert.True(t, strings.Contains(s, "Казань"))
}
