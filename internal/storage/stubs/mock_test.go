package stubs

import (
	"context"
	"errors"
	"testing"

	"shopbot/internal/models"
	"shopbot/internal/storage"
)

func seedVariation(t *testing.T, db *MockDB, qty int) int64 {
	t.Helper()
	ctx := context.Background()

	productID, err := db.CreateProduct(ctx, &models.Product{Name: "Кроссовки", Price: 4990, IsAvailable: true})
	if err != nil {
		t.Fatalf("Failed to create product: %v", err)
	}
	if _, err := db.CreateVariation(ctx, &models.Variation{ProductID: productID, Size: "42", Quantity: qty}); err != nil {
		t.Fatalf("Failed to create variation: %v", err)
	}
	return productID
}

func TestMockDB_DecrementQuantityFloorsAtZero(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()
	productID := seedVariation(t, db, 1)

	if err := db.DecrementQuantity(ctx, productID, "42"); err != nil {
		t.Fatalf("First decrement must succeed: %v", err)
	}

	err := db.DecrementQuantity(ctx, productID, "42")
	if !errors.Is(err, storage.ErrInsufficientStock) {
		t.Errorf("Expected ErrInsufficientStock, got %v", err)
	}

	v, err := db.GetVariation(ctx, productID, "42")
	if err != nil {
		t.Fatalf("Failed to get variation: %v", err)
	}
	if v.Quantity != 0 {
		t.Errorf("Expected quantity 0, got %d", v.Quantity)
	}

	err = db.DecrementQuantity(ctx, productID, "43")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown size, got %v", err)
	}
}

func TestMockDB_TransitionOrderStatus(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	id, err := db.CreateOrder(ctx, &models.Order{UserID: 1, ProductID: 1, Status: models.StatusPending})
	if err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}

	if err := db.TransitionOrderStatus(ctx, id, models.StatusPending, models.StatusConfirmed); err != nil {
		t.Fatalf("First transition must succeed: %v", err)
	}

	err = db.TransitionOrderStatus(ctx, id, models.StatusPending, "REJECTED: поздно")
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("Expected ErrConflict on a decided order, got %v", err)
	}

	o, _ := db.GetOrder(ctx, id)
	if o.Status != models.StatusConfirmed {
		t.Errorf("Losing transition must not overwrite the status, got %q", o.Status)
	}

	err = db.TransitionOrderStatus(ctx, 999, models.StatusPending, models.StatusConfirmed)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown order, got %v", err)
	}
}

func TestMockDB_DebitNeverGoesNegative(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	if err := db.CreateUser(ctx, &models.User{ID: 1, Coins: 300}); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	err := db.Debit(ctx, 1, 500)
	if !errors.Is(err, storage.ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}

	if err := db.Debit(ctx, 1, 300); err != nil {
		t.Fatalf("Exact-balance debit must succeed: %v", err)
	}

	u, _ := db.GetUser(ctx, 1)
	if u.Coins != 0 {
		t.Errorf("Expected zero balance, got %d", u.Coins)
	}
}

func TestMockDB_AddAchievementOnce(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	if err := db.CreateUser(ctx, &models.User{ID: 1}); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	awarded, err := db.AddAchievement(ctx, 1, "first_order")
	if err != nil || !awarded {
		t.Fatalf("First award must succeed: awarded=%v err=%v", awarded, err)
	}

	awarded, err = db.AddAchievement(ctx, 1, "first_order")
	if err != nil {
		t.Fatalf("Repeat award must not error: %v", err)
	}
	if awarded {
		t.Error("Repeat award must report false")
	}

	u, _ := db.GetUser(ctx, 1)
	if len(u.Achievements) != 1 {
		t.Errorf("Expected one achievement, got %v", u.Achievements)
	}
}

func TestMockDB_ClearAllProductsKeepsDecidedOrders(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()
	productID := seedVariation(t, db, 3)

	pendingID, err := db.CreateOrder(ctx, &models.Order{UserID: 1, ProductID: productID, Status: models.StatusPending})
	if err != nil {
		t.Fatalf("Failed to create pending order: %v", err)
	}
	confirmedID, err := db.CreateOrder(ctx, &models.Order{UserID: 1, ProductID: productID, Status: models.StatusConfirmed})
	if err != nil {
		t.Fatalf("Failed to create confirmed order: %v", err)
	}

	if err := db.ClearAllProducts(ctx); err != nil {
		t.Fatalf("Failed to clear products: %v", err)
	}

	if _, err := db.GetProduct(ctx, productID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected product to be gone, got %v", err)
	}
	if _, err := db.GetOrder(ctx, pendingID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected pending order to be gone, got %v", err)
	}
	if _, err := db.GetOrder(ctx, confirmedID); err != nil {
		t.Errorf("Decided orders are history and must survive, got %v", err)
	}
}

func TestMockDB_ReplaceAll(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()
	seedVariation(t, db, 3)

	rows := []storage.ProductRow{
		{
			Product: models.Product{Name: "Новинка", Price: 2990, IsAvailable: true},
			Variations: []models.Variation{
				{Size: "40", Quantity: 2},
				{Size: "41", Quantity: 1},
			},
		},
	}
	if err := db.ReplaceAll(ctx, rows); err != nil {
		t.Fatalf("Failed to replace catalog: %v", err)
	}

	products, err := db.ListProducts(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list products: %v", err)
	}
	if len(products) != 1 || products[0].Name != "Новинка" {
		t.Fatalf("Expected replaced catalog, got %+v", products)
	}

	v, err := db.GetVariation(ctx, products[0].ID, "40")
	if err != nil {
		t.Fatalf("Failed to get variation: %v", err)
	}
	if v.Quantity != 2 {
		t.Errorf("Expected quantity 2, got %d", v.Quantity)
	}
}

func TestMockDB_CountReferrals(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	if err := db.AddReferral(ctx, 1, 2); err != nil {
		t.Fatalf("Failed to add referral: %v", err)
	}
	if err := db.AddReferral(ctx, 1, 3); err != nil {
		t.Fatalf("Failed to add referral: %v", err)
	}

	n, err := db.CountReferrals(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to count referrals: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 referrals, got %d", n)
	}

	n, _ = db.CountReferrals(ctx, 2)
	if n != 0 {
		t.Errorf("Expected 0 referrals for user 2, got %d", n)
	}
}
