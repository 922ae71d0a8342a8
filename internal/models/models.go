package models

import "time"

// Product represents a catalog item
type Product struct {
	ID          int64
	TableID     string // business article/SKU used by imports and photo lookup
	Name        string
	Description string
	FullDesc    string
	Category    string
	Topic       string
	Price       float64 // rubles; ignored when IsExclusive
	CoinPrice   int64   // authoritative price when IsExclusive
	PhotoID     string  // opaque transport file reference
	IsExclusive bool
	IsAvailable bool
	CreatedAt   time.Time
}

// Variation represents a purchasable size/variant of a product
type Variation struct {
	ID        int64
	ProductID int64
	ModelID   string
	Size      string
	Quantity  int
	Price     float64 // overrides the product price when non-zero
	CoinPrice int64
	Link      string
}

// Order statuses. REJECTED carries the admin reason after a colon,
// so Status is matched by prefix, not equality.
const (
	StatusPending   = "PENDING_ADMIN_CONFIRMATION"
	StatusConfirmed = "CONFIRMED"
	StatusRejected  = "REJECTED"
	StatusPaid      = "PAID"
	StatusShipped   = "SHIPPED"
	StatusDelivered = "DELIVERED"
)

// Order represents a placed order with collected delivery details.
// Rows are never deleted; rejection is a status value.
type Order struct {
	ID          int64
	UserID      int64
	ProductID   int64
	VariationID int64
	Quantity    int
	Size        string
	City        string
	Address     string
	FullName    string
	Phone       string
	Delivery    string
	CoinPrice   int64 // coins debited at creation, refunded on rejection
	Price       float64
	ProofFileID string // payment screenshot reference, empty for coin orders
	Status      string
	AdminMsgID  int // admin notification message, for later editing
	AdminTopic  int
	CreatedAt   time.Time
}

// Decided reports whether an admin has already acted on the order.
func (o *Order) Decided() bool {
	return o.Status != StatusPending
}

// User represents a registered customer (or admin)
type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Username     string
	Status       string
	Comments     int
	Orders       int
	Coins        int64
	Discount     int
	ReferralCode string
	LastActive   time.Time
	IsAdmin      bool
	Achievements []string
}

// HasAchievement reports whether the user already unlocked the achievement.
func (u *User) HasAchievement(name string) bool {
	for _, a := range u.Achievements {
		if a == name {
			return true
		}
	}
	return false
}

// Review represents a customer review
type Review struct {
	ID        int64
	UserID    int64
	Text      string
	PhotoURL  string
	Author    string
	CreatedAt time.Time
}
