package order

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"shopbot/internal/models"
	"shopbot/internal/storage"
)

// Approve finalizes a pending order. Inventory was already committed at
// creation time, so the only effects are the status change and the
// notifications. A second decision on the same order fails with
// ErrAlreadyDecided and repeats no side effects.
func (e *Engine) Approve(ctx context.Context, orderID int64) (*models.Order, error) {
	o, err := e.db.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	err = e.withRetry(ctx, func() error {
		return e.db.TransitionOrderStatus(ctx, orderID, models.StatusPending, models.StatusConfirmed)
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrAlreadyDecided
		}
		return nil, err
	}
	o.Status = models.StatusConfirmed

	e.metrics.OrderConfirmed()

	if err := e.notifier.NotifyUser(ctx, o.UserID,
		fmt.Sprintf("✅ Заказ №%d подтвержден! Мы свяжемся с вами по доставке.", o.ID)); err != nil {
		e.logger.Warn("failed to notify buyer about confirmation",
			zap.Int64("order_id", o.ID), zap.Error(err))
	}
	if err := e.notifier.CloseDecision(ctx, o, "✅ Подтвержден"); err != nil {
		e.logger.Warn("failed to close admin decision message",
			zap.Int64("order_id", o.ID), zap.Error(err))
	}

	return o, nil
}

// Reject reverses a pending order: the reserved unit goes back to
// stock, coin payments are refunded, and the buyer is told the reason.
// The order row stays as the audit trail with the reason folded into
// its status.
func (e *Engine) Reject(ctx context.Context, orderID int64, reason string) (*models.Order, error) {
	o, err := e.db.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	status := models.StatusRejected
	if reason != "" {
		status = fmt.Sprintf("%s: %s", models.StatusRejected, reason)
	}

	// Claiming the transition first makes the refund single-shot: a
	// concurrent second reject loses here, before any side effect.
	err = e.withRetry(ctx, func() error {
		return e.db.TransitionOrderStatus(ctx, orderID, models.StatusPending, status)
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrAlreadyDecided
		}
		return nil, err
	}
	o.Status = status

	if err := e.withRetry(ctx, func() error {
		return e.db.IncrementQuantity(ctx, o.ProductID, o.Size, o.Quantity)
	}); err != nil {
		e.logger.Error("CRITICAL: failed to return rejected order unit to stock",
			zap.Int64("order_id", o.ID), zap.Int64("product_id", o.ProductID),
			zap.String("size", o.Size), zap.Error(err))
	}

	if o.CoinPrice > 0 {
		if err := e.db.Credit(ctx, o.UserID, o.CoinPrice); err != nil {
			e.logger.Error("CRITICAL: failed to refund coins for rejected order",
				zap.Int64("order_id", o.ID), zap.Int64("coins", o.CoinPrice), zap.Error(err))
		} else {
			e.metrics.CoinsCredited(o.CoinPrice)
		}
	}

	e.metrics.OrderRejected()

	text := fmt.Sprintf("❌ Заказ №%d отклонен.", o.ID)
	if reason != "" {
		text = fmt.Sprintf("❌ Заказ №%d отклонен.\nПричина: %s", o.ID, reason)
	}
	if o.CoinPrice > 0 {
		text += fmt.Sprintf("\n💎 %d BS Coin возвращены на ваш счет.", o.CoinPrice)
	}
	if err := e.notifier.NotifyUser(ctx, o.UserID, text); err != nil {
		e.logger.Warn("failed to notify buyer about rejection",
			zap.Int64("order_id", o.ID), zap.Error(err))
	}
	if err := e.notifier.CloseDecision(ctx, o, "❌ Отклонен"); err != nil {
		e.logger.Warn("failed to close admin decision message",
			zap.Int64("order_id", o.ID), zap.Error(err))
	}

	return o, nil
}

// SetStatus relabels an order with a free-text status (PAID, SHIPPED,
// DELIVERED or anything the admin types). Purely informative: no
// inventory or ledger effects, just a push to the buyer.
func (e *Engine) SetStatus(ctx context.Context, orderID int64, label string) (*models.Order, error) {
	o, err := e.db.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := e.withRetry(ctx, func() error {
		return e.db.UpdateOrderStatus(ctx, orderID, label)
	}); err != nil {
		return nil, err
	}
	o.Status = label

	if err := e.notifier.NotifyUser(ctx, o.UserID,
		fmt.Sprintf("📦 Статус заказа №%d обновлен: %s", o.ID, statusText(label))); err != nil {
		e.logger.Warn("failed to notify buyer about status change",
			zap.Int64("order_id", o.ID), zap.Error(err))
	}

	return o, nil
}

func statusText(label string) string {
	switch label {
	case models.StatusPaid:
		return "оплачен"
	case models.StatusShipped:
		return "отправлен"
	case models.StatusDelivered:
		return "доставлен"
	default:
		return label
	}
}
