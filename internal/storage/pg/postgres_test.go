package pg

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgresTC "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"shopbot/internal/models"
	"shopbot/internal/storage"
)

// setupTestDB spins up a throwaway postgres via testcontainers
func setupTestDB(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := postgresTC.Run(ctx,
		"postgres:16-alpine",
		postgresTC.WithDatabase("shop"),
		postgresTC.WithUsername("shop"),
		postgresTC.WithPassword("shop"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start postgres container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := New(dsn, zap.NewNop())
	require.NoError(t, err, "Failed to connect to postgres")
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func seedPG(t *testing.T, db *PostgresDB, qty int) int64 {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &models.User{ID: 123, FirstName: "Иван", LastActive: time.Now()}))

	productID, err := db.CreateProduct(ctx, &models.Product{Name: "Кроссовки", Price: 4990, IsAvailable: true})
	require.NoError(t, err)
	_, err = db.CreateVariation(ctx, &models.Variation{ProductID: productID, Size: "42", Quantity: qty})
	require.NoError(t, err)
	return productID
}

func TestPostgres_DecrementQuantityConcurrent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	productID := seedPG(t, db, 1)

	// Two buyers race for the last unit; the conditional UPDATE must
	// let exactly one through.
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- db.DecrementQuantity(ctx, productID, "42")
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		require.ErrorIs(t, err, storage.ErrInsufficientStock)
		conflicts++
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	v, err := db.GetVariation(ctx, productID, "42")
	require.NoError(t, err)
	assert.Equal(t, 0, v.Quantity)
}

func TestPostgres_IncrementRestoresStock(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	productID := seedPG(t, db, 2)

	require.NoError(t, db.DecrementQuantity(ctx, productID, "42"))
	require.NoError(t, db.IncrementQuantity(ctx, productID, "42", 1))

	v, err := db.GetVariation(ctx, productID, "42")
	require.NoError(t, err)
	assert.Equal(t, 2, v.Quantity)
}

func TestPostgres_TransitionOrderStatusSingleWinner(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	productID := seedPG(t, db, 1)

	id, err := db.CreateOrder(ctx, &models.Order{
		UserID: 123, ProductID: productID, Quantity: 1, Size: "42",
		ProofFileID: "AgACAgIAAxkBAAE", Status: models.StatusPending,
	})
	require.NoError(t, err)

	require.NoError(t, db.TransitionOrderStatus(ctx, id, models.StatusPending, models.StatusConfirmed))

	err = db.TransitionOrderStatus(ctx, id, models.StatusPending, "REJECTED: поздно")
	assert.ErrorIs(t, err, storage.ErrConflict)

	o, err := db.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, o.Status)
	assert.Equal(t, "AgACAgIAAxkBAAE", o.ProofFileID)

	err = db.TransitionOrderStatus(ctx, 99999, models.StatusPending, models.StatusConfirmed)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPostgres_CoinLedger(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedPG(t, db, 1)

	require.NoError(t, db.Credit(ctx, 123, 500))

	err := db.Debit(ctx, 123, 600)
	assert.ErrorIs(t, err, storage.ErrInsufficientBalance)

	require.NoError(t, db.Debit(ctx, 123, 500))

	u, err := db.GetUser(ctx, 123)
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.Coins)
}

func TestPostgres_AchievementsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedPG(t, db, 1)

	awarded, err := db.AddAchievement(ctx, 123, "first_order")
	require.NoError(t, err)
	assert.True(t, awarded)

	awarded, err = db.AddAchievement(ctx, 123, "first_order")
	require.NoError(t, err)
	assert.False(t, awarded)

	u, err := db.GetUser(ctx, 123)
	require.NoError(t, err)
	assert.Equal(t, []string{"first_order"}, u.Achievements)
}

func TestPostgres_ClearAllProductsKeepsDecidedOrders(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	productID := seedPG(t, db, 3)

	pendingID, err := db.CreateOrder(ctx, &models.Order{
		UserID: 123, ProductID: productID, Status: models.StatusPending,
	})
	require.NoError(t, err)
	confirmedID, err := db.CreateOrder(ctx, &models.Order{
		UserID: 123, ProductID: productID, Status: models.StatusConfirmed,
	})
	require.NoError(t, err)

	require.NoError(t, db.ClearAllProducts(ctx))

	_, err = db.GetProduct(ctx, productID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = db.GetOrder(ctx, pendingID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = db.GetOrder(ctx, confirmedID)
	assert.NoError(t, err, "decided orders are history and must survive")
}

func TestPostgres_ReviewsJoinAuthor(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedPG(t, db, 1)

	_, err := db.CreateReview(ctx, &models.Review{UserID: 123, Text: "Отличный магазин!"})
	require.NoError(t, err)

	reviews, err := db.ListReviews(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "Отличный магазин!", reviews[0].Text)
	assert.Equal(t, "Иван", reviews[0].Author)
}

func TestPostgres_ReferralsUniquePerPair(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedPG(t, db, 1)

	require.NoError(t, db.AddReferral(ctx, 123, 456))

	n, err := db.CountReferrals(ctx, 123)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
