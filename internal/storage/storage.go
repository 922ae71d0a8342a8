package storage

import (
	"context"
	"time"

	"shopbot/internal/models"
)

// ProductRow pairs a product with its variations for bulk import.
type ProductRow struct {
	Product    models.Product
	Variations []models.Variation
}

// Storage defines the interface for data storage operations
type Storage interface {
	// Catalog operations
	CreateProduct(ctx context.Context, p *models.Product) (int64, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetProductByArticle(ctx context.Context, article string) (*models.Product, error)
	ListProducts(ctx context.Context, limit int) ([]models.Product, error)
	ListExclusiveProducts(ctx context.Context, limit int) ([]models.Product, error)
	SetExclusive(ctx context.Context, productID int64, exclusive bool, coinPrice int64) error

	// Variation operations. DecrementQuantity is a single atomic
	// check-and-decrement: it fails with ErrInsufficientStock instead of
	// crossing zero, never partially applies.
	CreateVariation(ctx context.Context, v *models.Variation) (int64, error)
	ListVariations(ctx context.Context, productID int64) ([]models.Variation, error)
	GetVariation(ctx context.Context, productID int64, size string) (*models.Variation, error)
	DecrementQuantity(ctx context.Context, productID int64, size string) error
	IncrementQuantity(ctx context.Context, productID int64, size string, amount int) error

	// ReplaceAll wipes the catalog and loads the given rows in one
	// transaction; ClearAllProducts cascades to variations and orders.
	ReplaceAll(ctx context.Context, rows []ProductRow) error
	ClearAllProducts(ctx context.Context) error

	// Order operations
	CreateOrder(ctx context.Context, o *models.Order) (int64, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status string) error
	// TransitionOrderStatus updates the status only while it still equals
	// fromStatus; ErrConflict otherwise. This is the idempotency guard for
	// admin decisions.
	TransitionOrderStatus(ctx context.Context, id int64, fromStatus, toStatus string) error
	SetOrderAdminMessage(ctx context.Context, id int64, messageID, topicID int) error
	ListOrdersByUser(ctx context.Context, userID int64, limit int) ([]models.Order, error)

	// User operations
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpdateLastActive(ctx context.Context, userID int64, t time.Time) error
	SetDiscount(ctx context.Context, userID int64, percent int) error
	AddDiscount(ctx context.Context, userID int64, delta int) error
	IncrementComments(ctx context.Context, userID int64) error
	IncrementOrders(ctx context.Context, userID int64) error
	AddAchievement(ctx context.Context, userID int64, name string) (bool, error)

	// Coin ledger. Debit checks the balance and fails with
	// ErrInsufficientBalance rather than going negative.
	Credit(ctx context.Context, userID int64, amount int64) error
	Debit(ctx context.Context, userID int64, amount int64) error

	// Referral operations
	AddReferral(ctx context.Context, referrerID, refereeID int64) error
	CountReferrals(ctx context.Context, userID int64) (int, error)

	// Review operations
	CreateReview(ctx context.Context, r *models.Review) (int64, error)
	ListReviews(ctx context.Context, limit int) ([]models.Review, error)

	// Lifecycle
	Close() error
}
