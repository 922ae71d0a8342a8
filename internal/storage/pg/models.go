package pg

import (
	"encoding/json"
	"time"

	"shopbot/internal/models"
)

// Row types are the gorm-facing shapes; business logic only ever sees
// the records from internal/models.

type productRow struct {
	ID          int64  `gorm:"column:product_id;primaryKey;autoIncrement"`
	TableID     string `gorm:"column:table_id;index"`
	Name        string `gorm:"column:name;size:255;not null"`
	Description string `gorm:"column:description;type:text"`
	FullDesc    string `gorm:"column:full_description;type:text"`
	Category    string `gorm:"column:category;size:100"`
	Topic       string `gorm:"column:topic;size:100"`
	Price       float64 `gorm:"column:price"`
	CoinPrice   int64   `gorm:"column:coin_price;default:0"`
	PhotoID     string  `gorm:"column:photo_id"`
	IsExclusive bool    `gorm:"column:is_exclusive;default:false"`
	IsAvailable bool    `gorm:"column:is_available;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (productRow) TableName() string { return "products" }

type variationRow struct {
	ID        int64  `gorm:"column:variation_id;primaryKey;autoIncrement"`
	ProductID int64  `gorm:"column:product_id;index;not null"`
	ModelID   string `gorm:"column:model_id"`
	Size      string `gorm:"column:size;index"`
	Quantity  int    `gorm:"column:quantity;not null;default:0"`
	Price     float64 `gorm:"column:price"`
	CoinPrice int64   `gorm:"column:coin_price;default:0"`
	Link      string  `gorm:"column:link"`
}

func (variationRow) TableName() string { return "product_variations" }

type orderRow struct {
	ID          int64  `gorm:"column:order_id;primaryKey;autoIncrement"`
	UserID      int64  `gorm:"column:user_id;index;not null"`
	ProductID   int64  `gorm:"column:product_id;index;not null"`
	VariationID int64  `gorm:"column:variation_id"`
	Quantity    int    `gorm:"column:quantity;default:1"`
	Size        string `gorm:"column:size"`
	City        string `gorm:"column:city"`
	Address     string `gorm:"column:address"`
	FullName    string `gorm:"column:full_name"`
	Phone       string `gorm:"column:phone"`
	Delivery    string `gorm:"column:delivery_method"`
	CoinPrice   int64  `gorm:"column:coin_price;default:0"`
	Price       float64 `gorm:"column:price"`
	ProofFileID string  `gorm:"column:proof_file_id"`
	Status      string  `gorm:"column:status;index"`
	AdminMsgID  int     `gorm:"column:admin_message_id"`
	AdminTopic  int     `gorm:"column:admin_topic_id"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (orderRow) TableName() string { return "orders_detailed" }

type userRow struct {
	ID           int64  `gorm:"column:user_id;primaryKey"`
	FirstName    string `gorm:"column:first_name"`
	LastName     string `gorm:"column:last_name"`
	Username     string `gorm:"column:username"`
	Status       string `gorm:"column:status;default:'Новый'"`
	Comments     int    `gorm:"column:comments;default:0"`
	Orders       int    `gorm:"column:orders;default:0"`
	Coins        int64  `gorm:"column:bs_coin;default:0"`
	Discount     int    `gorm:"column:discount;default:0"`
	ReferralCode string `gorm:"column:referral_code"`
	LastActive   time.Time `gorm:"column:last_active"`
	IsAdmin      bool      `gorm:"column:is_admin;default:false"`
	Achievements string    `gorm:"column:achievements;default:'[]'"`
}

func (userRow) TableName() string { return "users" }

type referralRow struct {
	ID         int64     `gorm:"column:referral_id;primaryKey;autoIncrement"`
	ReferrerID int64     `gorm:"column:referrer_id;index"`
	RefereeID  int64     `gorm:"column:referee_id"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (referralRow) TableName() string { return "referrals" }

type reviewRow struct {
	ID        int64     `gorm:"column:review_id;primaryKey;autoIncrement"`
	UserID    int64     `gorm:"column:user_id;index"`
	Text      string    `gorm:"column:text;type:text"`
	PhotoURL  string    `gorm:"column:photo_url"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (reviewRow) TableName() string { return "reviews" }

func toProduct(r *productRow) *models.Product {
	return &models.Product{
		ID:          r.ID,
		TableID:     r.TableID,
		Name:        r.Name,
		Description: r.Description,
		FullDesc:    r.FullDesc,
		Category:    r.Category,
		Topic:       r.Topic,
		Price:       r.Price,
		CoinPrice:   r.CoinPrice,
		PhotoID:     r.PhotoID,
		IsExclusive: r.IsExclusive,
		IsAvailable: r.IsAvailable,
		CreatedAt:   r.CreatedAt,
	}
}

func fromProduct(p *models.Product) *productRow {
	return &productRow{
		ID:          p.ID,
		TableID:     p.TableID,
		Name:        p.Name,
		Description: p.Description,
		FullDesc:    p.FullDesc,
		Category:    p.Category,
		Topic:       p.Topic,
		Price:       p.Price,
		CoinPrice:   p.CoinPrice,
		PhotoID:     p.PhotoID,
		IsExclusive: p.IsExclusive,
		IsAvailable: p.IsAvailable,
		CreatedAt:   p.CreatedAt,
	}
}

func toVariation(r *variationRow) *models.Variation {
	return &models.Variation{
		ID:        r.ID,
		ProductID: r.ProductID,
		ModelID:   r.ModelID,
		Size:      r.Size,
		Quantity:  r.Quantity,
		Price:     r.Price,
		CoinPrice: r.CoinPrice,
		Link:      r.Link,
	}
}

func fromVariation(v *models.Variation) *variationRow {
	return &variationRow{
		ID:        v.ID,
		ProductID: v.ProductID,
		ModelID:   v.ModelID,
		Size:      v.Size,
		Quantity:  v.Quantity,
		Price:     v.Price,
		CoinPrice: v.CoinPrice,
		Link:      v.Link,
	}
}

func toOrder(r *orderRow) *models.Order {
	return &models.Order{
		ID:          r.ID,
		UserID:      r.UserID,
		ProductID:   r.ProductID,
		VariationID: r.VariationID,
		Quantity:    r.Quantity,
		Size:        r.Size,
		City:        r.City,
		Address:     r.Address,
		FullName:    r.FullName,
		Phone:       r.Phone,
		Delivery:    r.Delivery,
		CoinPrice:   r.CoinPrice,
		Price:       r.Price,
		ProofFileID: r.ProofFileID,
		Status:      r.Status,
		AdminMsgID:  r.AdminMsgID,
		AdminTopic:  r.AdminTopic,
		CreatedAt:   r.CreatedAt,
	}
}

func fromOrder(o *models.Order) *orderRow {
	return &orderRow{
		ID:          o.ID,
		UserID:      o.UserID,
		ProductID:   o.ProductID,
		VariationID: o.VariationID,
		Quantity:    o.Quantity,
		Size:        o.Size,
		City:        o.City,
		Address:     o.Address,
		FullName:    o.FullName,
		Phone:       o.Phone,
		Delivery:    o.Delivery,
		CoinPrice:   o.CoinPrice,
		Price:       o.Price,
		ProofFileID: o.ProofFileID,
		Status:      o.Status,
		AdminMsgID:  o.AdminMsgID,
		AdminTopic:  o.AdminTopic,
		CreatedAt:   o.CreatedAt,
	}
}

func toUser(r *userRow) *models.User {
	var achievements []string
	if r.Achievements != "" {
		_ = json.Unmarshal([]byte(r.Achievements), &achievements)
	}
	return &models.User{
		ID:           r.ID,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Username:     r.Username,
		Status:       r.Status,
		Comments:     r.Comments,
		Orders:       r.Orders,
		Coins:        r.Coins,
		Discount:     r.Discount,
		ReferralCode: r.ReferralCode,
		LastActive:   r.LastActive,
		IsAdmin:      r.IsAdmin,
		Achievements: achievements,
	}
}
