package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"shopbot/internal/models"
	"shopbot/internal/storage"
)

// PlaceInput carries everything collected during the order conversation.
type PlaceInput struct {
	UserID      int64
	ProductID   int64
	Size        string
	City        string
	Address     string
	FullName    string
	Phone       string
	Delivery    string
	ProofFileID string
}

// Place commits a confirmed order. The sequence is:
//
//  1. re-check the size is still in stock (the conversation may have
//     taken long enough for another buyer to drain it);
//  2. for coin-priced products, check the balance before touching stock;
//  3. atomically decrement the variation quantity;
//  4. debit the coin price;
//  5. insert the order row with status PENDING_ADMIN_CONFIRMATION;
//  6. notify the admin topic and remember the message reference.
//
// Steps 3-5 compensate backwards on failure: a decremented unit is
// incremented back and debited coins are credited back, so a failed
// commit leaves the ledger exactly where it started. A failed admin
// notification (step 6) is logged but does not undo the order.
func (e *Engine) Place(ctx context.Context, in PlaceInput) (*models.Order, error) {
	product, err := e.db.GetProduct(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}

	variation, err := e.db.GetVariation(ctx, in.ProductID, in.Size)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ErrInsufficientStock
		}
		return nil, err
	}
	if variation.Quantity <= 0 {
		e.metrics.StockConflict()
		return nil, storage.ErrInsufficientStock
	}

	user, err := e.db.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	rubles, coins := price(product, variation)
	rubles = ApplyDiscount(rubles, user.Discount)
	if product.IsExclusive && user.Coins < coins {
		return nil, storage.ErrInsufficientBalance
	}

	if err := e.withRetry(ctx, func() error {
		return e.db.DecrementQuantity(ctx, in.ProductID, in.Size)
	}); err != nil {
		if errors.Is(err, storage.ErrInsufficientStock) {
			e.metrics.StockConflict()
		}
		return nil, err
	}

	if product.IsExclusive {
		if err := e.db.Debit(ctx, in.UserID, coins); err != nil {
			e.compensateStock(ctx, in.ProductID, in.Size)
			return nil, err
		}
		e.metrics.CoinsDebited(coins)
	}

	o := &models.Order{
		UserID:      in.UserID,
		ProductID:   in.ProductID,
		VariationID: variation.ID,
		Quantity:    1,
		Size:        in.Size,
		City:        in.City,
		Address:     in.Address,
		FullName:    in.FullName,
		Phone:       in.Phone,
		Delivery:    in.Delivery,
		Price:       rubles,
		ProofFileID: in.ProofFileID,
		Status:      models.StatusPending,
	}
	if product.IsExclusive {
		o.CoinPrice = coins
		o.Price = 0
	}

	id, err := e.withRetryOrder(ctx, o)
	if err != nil {
		if product.IsExclusive {
			if cerr := e.db.Credit(ctx, in.UserID, coins); cerr != nil {
				e.logger.Error("CRITICAL: coin refund after failed order insert also failed",
					zap.Int64("user_id", in.UserID), zap.Int64("coins", coins), zap.Error(cerr))
			} else {
				e.metrics.CoinsCredited(coins)
			}
		}
		e.compensateStock(ctx, in.ProductID, in.Size)
		return nil, err
	}
	o.ID = id

	e.metrics.OrderCreated(paymentKind(product))
	e.notifyAdmin(ctx, o, product)

	return o, nil
}

func (e *Engine) withRetryOrder(ctx context.Context, o *models.Order) (int64, error) {
	var id int64
	err := e.withRetry(ctx, func() error {
		var err error
		id, err = e.db.CreateOrder(ctx, o)
		return err
	})
	return id, err
}

// compensateStock returns a reserved unit to the shelf. Failure here is
// the one inconsistency this engine cannot repair on its own, so it is
// escalated at the highest severity instead of being swallowed.
func (e *Engine) compensateStock(ctx context.Context, productID int64, size string) {
	err := e.withRetry(ctx, func() error {
		return e.db.IncrementQuantity(ctx, productID, size, 1)
	})
	if err != nil {
		e.logger.Error("CRITICAL: stock compensation failed, inventory ledger is inconsistent",
			zap.Int64("product_id", productID), zap.String("size", size), zap.Error(err))
		return
	}
	e.metrics.Compensation()
}

func (e *Engine) notifyAdmin(ctx context.Context, o *models.Order, p *models.Product) {
	messageID, topicID, err := e.notifier.RequestDecision(ctx, o, p)
	if err != nil {
		e.logger.Error("failed to request admin decision",
			zap.Int64("order_id", o.ID), zap.Error(err))
		return
	}
	if err := e.db.SetOrderAdminMessage(ctx, o.ID, messageID, topicID); err != nil {
		e.logger.Warn("failed to save admin message reference",
			zap.Int64("order_id", o.ID), zap.Error(err))
		return
	}
	o.AdminMsgID = messageID
	o.AdminTopic = topicID
}

// ApplyDiscount reduces a ruble price by a whole-percent discount,
// rounded to kopecks. Coin prices are never discounted.
func ApplyDiscount(rubles float64, percent int) float64 {
	if percent <= 0 {
		return rubles
	}
	if percent > 100 {
		percent = 100
	}
	discounted := rubles * float64(100-percent) / 100
	return float64(int64(discounted*100+0.5)) / 100
}

func paymentKind(p *models.Product) string {
	if p.IsExclusive {
		return "coin"
	}
	return "rub"
}

// Summary renders the order the way the admin topic and the buyer's
// confirmation see it.
func Summary(o *models.Order, p *models.Product) string {
	priceLine := fmt.Sprintf("💰 Цена: %s₽", strconv.FormatFloat(o.Price, 'f', -1, 64))
	if o.CoinPrice > 0 {
		priceLine = fmt.Sprintf("💎 Цена: %d BS Coin", o.CoinPrice)
	}
	return fmt.Sprintf(
		"🛍️ %s (размер %s)\n%s\n\n🏙️ Город: %s\n📍 Адрес: %s\n👤 Получатель: %s\n📞 Телефон: %s\n🚚 Доставка: %s",
		p.Name, o.Size, priceLine, o.City, o.Address, o.FullName, o.Phone, o.Delivery,
	)
}
