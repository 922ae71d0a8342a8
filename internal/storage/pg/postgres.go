package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"shopbot/internal/models"
	"shopbot/internal/storage"
)

// PostgresDB implements storage.Storage on top of gorm/postgres.
type PostgresDB struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New opens a postgres connection and configures the pool.
func New(dsn string, logger *zap.Logger) (*PostgresDB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &PostgresDB{db: db, logger: logger}, nil
}

// Migrate creates the schema. Production deployments run cmd/migrate
// instead; this is used by dev mode and the integration tests.
func (p *PostgresDB) Migrate() error {
	return p.db.AutoMigrate(
		&productRow{}, &variationRow{}, &orderRow{},
		&userRow{}, &referralRow{}, &reviewRow{},
	)
}

func forUpdate() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}

// wrap translates gorm errors into the storage taxonomy.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
}

// --- Catalog ---

func (p *PostgresDB) CreateProduct(ctx context.Context, prod *models.Product) (int64, error) {
	row := fromProduct(prod)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	if err := p.db.WithContext(ctx).Create(row).Error; err != nil {
		return 0, wrap(err)
	}
	return row.ID, nil
}

func (p *PostgresDB) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var row productRow
	if err := p.db.WithContext(ctx).First(&row, "product_id = ?", id).Error; err != nil {
		return nil, wrap(err)
	}
	return toProduct(&row), nil
}

func (p *PostgresDB) GetProductByArticle(ctx context.Context, article string) (*models.Product, error) {
	var row productRow
	if err := p.db.WithContext(ctx).First(&row, "table_id = ?", article).Error; err != nil {
		return nil, wrap(err)
	}
	return toProduct(&row), nil
}

func (p *PostgresDB) ListProducts(ctx context.Context, limit int) ([]models.Product, error) {
	var rows []productRow
	if err := p.db.WithContext(ctx).Where("is_available = true").Limit(limit).Find(&rows).Error; err != nil {
		return nil, wrap(err)
	}
	products := make([]models.Product, 0, len(rows))
	for i := range rows {
		products = append(products, *toProduct(&rows[i]))
	}
	return products, nil
}

func (p *PostgresDB) ListExclusiveProducts(ctx context.Context, limit int) ([]models.Product, error) {
	var rows []productRow
	err := p.db.WithContext(ctx).
		Where("is_available = true AND is_exclusive = true").
		Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, wrap(err)
	}
	products := make([]models.Product, 0, len(rows))
	for i := range rows {
		products = append(products, *toProduct(&rows[i]))
	}
	return products, nil
}

func (p *PostgresDB) SetExclusive(ctx context.Context, productID int64, exclusive bool, coinPrice int64) error {
	res := p.db.WithContext(ctx).Model(&productRow{}).
		Where("product_id = ?", productID).
		Updates(map[string]interface{}{"is_exclusive": exclusive, "coin_price": coinPrice})
	if res.Error != nil {
		return wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- Variations ---

func (p *PostgresDB) CreateVariation(ctx context.Context, v *models.Variation) (int64, error) {
	row := fromVariation(v)
	if err := p.db.WithContext(ctx).Create(row).Error; err != nil {
		return 0, wrap(err)
	}
	return row.ID, nil
}

func (p *PostgresDB) ListVariations(ctx context.Context, productID int64) ([]models.Variation, error) {
	var rows []variationRow
	if err := p.db.WithContext(ctx).Where("product_id = ?", productID).Find(&rows).Error; err != nil {
		return nil, wrap(err)
	}
	variations := make([]models.Variation, 0, len(rows))
	for i := range rows {
		variations = append(variations, *toVariation(&rows[i]))
	}
	return variations, nil
}

func (p *PostgresDB) GetVariation(ctx context.Context, productID int64, size string) (*models.Variation, error) {
	var row variationRow
	err := p.db.WithContext(ctx).First(&row, "product_id = ? AND size = ?", productID, size).Error
	if err != nil {
		return nil, wrap(err)
	}
	return toVariation(&row), nil
}

// DecrementQuantity reserves one unit. The conditional UPDATE is the
// atomicity boundary: two concurrent buyers racing for the last unit
// cannot both pass the quantity > 0 check.
func (p *PostgresDB) DecrementQuantity(ctx context.Context, productID int64, size string) error {
	res := p.db.WithContext(ctx).Model(&variationRow{}).
		Where("product_id = ? AND size = ? AND quantity > 0", productID, size).
		UpdateColumn("quantity", gorm.Expr("quantity - 1"))
	if res.Error != nil {
		return wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := p.db.WithContext(ctx).Model(&variationRow{}).
			Where("product_id = ? AND size = ?", productID, size).
			Count(&count).Error; err != nil {
			return wrap(err)
		}
		if count == 0 {
			return storage.ErrNotFound
		}
		return storage.ErrInsufficientStock
	}
	return nil
}

func (p *PostgresDB) IncrementQuantity(ctx context.Context, productID int64, size string, amount int) error {
	res := p.db.WithContext(ctx).Model(&variationRow{}).
		Where("product_id = ? AND size = ?", productID, size).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", amount))
	if res.Error != nil {
		return wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- Bulk ---

func (p *PostgresDB) ReplaceAll(ctx context.Context, rows []storage.ProductRow) error {
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clearCatalog(tx); err != nil {
			return err
		}
		for i := range rows {
			prodRow := fromProduct(&rows[i].Product)
			if prodRow.CreatedAt.IsZero() {
				prodRow.CreatedAt = time.Now()
			}
			if err := tx.Create(prodRow).Error; err != nil {
				return err
			}
			for j := range rows[i].Variations {
				varRow := fromVariation(&rows[i].Variations[j])
				varRow.ProductID = prodRow.ID
				if err := tx.Create(varRow).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	return wrap(err)
}

// ClearAllProducts cascades orders → variations → products inside one
// transaction so a partial wipe can never be observed.
func (p *PostgresDB) ClearAllProducts(ctx context.Context) error {
	err := p.db.WithContext(ctx).Transaction(clearCatalog)
	return wrap(err)
}

func clearCatalog(tx *gorm.DB) error {
	if err := tx.Exec("DELETE FROM orders_detailed WHERE status = ?", models.StatusPending).Error; err != nil {
		return err
	}
	if err := tx.Exec("DELETE FROM product_variations").Error; err != nil {
		return err
	}
	return tx.Exec("DELETE FROM products").Error
}

// --- Orders ---

func (p *PostgresDB) CreateOrder(ctx context.Context, o *models.Order) (int64, error) {
	row := fromOrder(o)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	if err := p.db.WithContext(ctx).Create(row).Error; err != nil {
		return 0, wrap(err)
	}
	return row.ID, nil
}

func (p *PostgresDB) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var row orderRow
	if err := p.db.WithContext(ctx).First(&row, "order_id = ?", id).Error; err != nil {
		return nil, wrap(err)
	}
	return toOrder(&row), nil
}

func (p *PostgresDB) UpdateOrderStatus(ctx context.Context, id int64, status string) error {
	res := p.db.WithContext(ctx).Model(&orderRow{}).
		Where("order_id = ?", id).
		UpdateColumn("status", status)
	if res.Error != nil {
		return wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// TransitionOrderStatus is the decide-once guard: the status check and
// the update are one conditional statement, so concurrent admins cannot
// both win the transition.
func (p *PostgresDB) TransitionOrderStatus(ctx context.Context, id int64, fromStatus, toStatus string) error {
	res := p.db.WithContext(ctx).Model(&orderRow{}).
		Where("order_id = ? AND status = ?", id, fromStatus).
		UpdateColumn("status", toStatus)
	if res.Error != nil {
		return wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := p.db.WithContext(ctx).Model(&orderRow{}).
			Where("order_id = ?", id).Count(&count).Error; err != nil {
			return wrap(err)
		}
		if count == 0 {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

func (p *PostgresDB) SetOrderAdminMessage(ctx context.Context, id int64, messageID, topicID int) error {
	res := p.db.WithContext(ctx).Model(&orderRow{}).
		Where("order_id = ?", id).
		Updates(map[string]interface{}{"admin_message_id": messageID, "admin_topic_id": topicID})
	if res.Error != nil {
		return wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (p *PostgresDB) ListOrdersByUser(ctx context.Context, userID int64, limit int) ([]models.Order, error) {
	var rows []orderRow
	err := p.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, wrap(err)
	}
	orders := make([]models.Order, 0, len(rows))
	for i := range rows {
		orders = append(orders, *toOrder(&rows[i]))
	}
	return orders, nil
}

// --- Users ---

func (p *PostgresDB) CreateUser(ctx context.Context, u *models.User) error {
	achievements, _ := json.Marshal(u.Achievements)
	if u.Achievements == nil {
		achievements = []byte("[]")
	}
	row := userRow{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Username:     u.Username,
		Status:       u.Status,
		Coins:        u.Coins,
		Discount:     u.Discount,
		ReferralCode: u.ReferralCode,
		LastActive:   u.LastActive,
		IsAdmin:      u.IsAdmin,
		Achievements: string(achievements),
	}
	if row.Status == "" {
		row.Status = "Новый"
	}
	return wrap(p.db.WithContext(ctx).Create(&row).Error)
}

func (p *PostgresDB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var row userRow
	if err := p.db.WithContext(ctx).First(&row, "user_id = ?", id).Error; err != nil {
		return nil, wrap(err)
	}
	return toUser(&row), nil
}

func (p *PostgresDB) UpdateLastActive(ctx context.Context, userID int64, t time.Time) error {
	return p.updateUser(ctx, userID, map[string]interface{}{"last_active": t})
}

func (p *PostgresDB) SetDiscount(ctx context.Context, userID int64, percent int) error {
	return p.updateUser(ctx, userID, map[string]interface{}{"discount": percent})
}

func (p *PostgresDB) AddDiscount(ctx context.Context, userID int64, delta int) error {
	return p.updateUser(ctx, userID, map[string]interface{}{"discount": gorm.Expr("discount + ?", delta)})
}

func (p *PostgresDB) IncrementComments(ctx context.Context, userID int64) error {
	return p.updateUser(ctx, userID, map[string]interface{}{"comments": gorm.Expr("comments + 1")})
}

func (p *PostgresDB) IncrementOrders(ctx context.Context, userID int64) error {
	return p.updateUser(ctx, userID, map[string]interface{}{"orders": gorm.Expr("orders + 1")})
}

func (p *PostgresDB) updateUser(ctx context.Context, userID int64, values map[string]interface{}) error {
	res := p.db.WithContext(ctx).Model(&userRow{}).Where("user_id = ?", userID).Updates(values)
	if res.Error != nil {
		return wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AddAchievement appends the achievement if it is not unlocked yet and
// reports whether the row changed. The row is locked for the
// read-modify-write since achievements are stored as a JSON list.
func (p *PostgresDB) AddAchievement(ctx context.Context, userID int64, name string) (bool, error) {
	added := false
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row userRow
		if err := tx.Clauses(forUpdate()).First(&row, "user_id = ?", userID).Error; err != nil {
			return err
		}
		var achievements []string
		if row.Achievements != "" {
			if err := json.Unmarshal([]byte(row.Achievements), &achievements); err != nil {
				achievements = nil
			}
		}
		for _, a := range achievements {
			if a == name {
				return nil
			}
		}
		achievements = append(achievements, name)
		encoded, err := json.Marshal(achievements)
		if err != nil {
			return err
		}
		added = true
		return tx.Model(&userRow{}).Where("user_id = ?", userID).
			UpdateColumn("achievements", string(encoded)).Error
	})
	return added, wrap(err)
}

// --- Ledger ---

func (p *PostgresDB) Credit(ctx context.Context, userID int64, amount int64) error {
	return p.updateUser(ctx, userID, map[string]interface{}{"bs_coin": gorm.Expr("bs_coin + ?", amount)})
}

// Debit subtracts coins with the same conditional-UPDATE guard as stock:
// the balance check and the subtraction are one statement.
func (p *PostgresDB) Debit(ctx context.Context, userID int64, amount int64) error {
	res := p.db.WithContext(ctx).Model(&userRow{}).
		Where("user_id = ? AND bs_coin >= ?", userID, amount).
		UpdateColumn("bs_coin", gorm.Expr("bs_coin - ?", amount))
	if res.Error != nil {
		return wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := p.db.WithContext(ctx).Model(&userRow{}).
			Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return wrap(err)
		}
		if count == 0 {
			return storage.ErrNotFound
		}
		return storage.ErrInsufficientBalance
	}
	return nil
}

// --- Referrals ---

func (p *PostgresDB) AddReferral(ctx context.Context, referrerID, refereeID int64) error {
	row := referralRow{ReferrerID: referrerID, RefereeID: refereeID, CreatedAt: time.Now()}
	return wrap(p.db.WithContext(ctx).Create(&row).Error)
}

func (p *PostgresDB) CountReferrals(ctx context.Context, userID int64) (int, error) {
	var count int64
	err := p.db.WithContext(ctx).Model(&referralRow{}).
		Where("referrer_id = ?", userID).Count(&count).Error
	if err != nil {
		return 0, wrap(err)
	}
	return int(count), nil
}

// --- Reviews ---

func (p *PostgresDB) CreateReview(ctx context.Context, r *models.Review) (int64, error) {
	row := reviewRow{UserID: r.UserID, Text: r.Text, PhotoURL: r.PhotoURL, CreatedAt: time.Now()}
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, wrap(err)
	}
	return row.ID, nil
}

func (p *PostgresDB) ListReviews(ctx context.Context, limit int) ([]models.Review, error) {
	type joined struct {
		reviewRow
		FirstName string `gorm:"column:first_name"`
		Username  string `gorm:"column:username"`
	}
	var rows []joined
	err := p.db.WithContext(ctx).Table("reviews").
		Select("reviews.*, users.first_name, users.username").
		Joins("JOIN users ON users.user_id = reviews.user_id").
		Order("reviews.created_at DESC").Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, wrap(err)
	}
	reviews := make([]models.Review, 0, len(rows))
	for i := range rows {
		author := rows[i].FirstName
		if author == "" {
			author = rows[i].Username
		}
		reviews = append(reviews, models.Review{
			ID:        rows[i].ID,
			UserID:    rows[i].UserID,
			Text:      rows[i].Text,
			PhotoURL:  rows[i].PhotoURL,
			Author:    author,
			CreatedAt: rows[i].CreatedAt,
		})
	}
	return reviews, nil
}

// Close closes the underlying connection pool.
func (p *PostgresDB) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
