// Package order implements the order lifecycle: reserving stock at
// confirmation, creating the order record, and applying admin decisions
// with their inventory and coin-ledger side effects.
package order

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"shopbot/internal/metrics"
	"shopbot/internal/models"
	"shopbot/internal/storage"
)

// ErrAlreadyDecided is returned when an admin acts on an order twice.
var ErrAlreadyDecided = errors.New("order already decided")

// Notifier is the contract the engine needs from the chat transport.
// RequestDecision posts the admin summary with approve/reject buttons
// and returns the message reference; CloseDecision edits that message
// to its final buttonless form.
type Notifier interface {
	NotifyUser(ctx context.Context, userID int64, text string) error
	RequestDecision(ctx context.Context, o *models.Order, p *models.Product) (messageID, topicID int, err error)
	CloseDecision(ctx context.Context, o *models.Order, resolution string) error
}

const (
	storageRetries = 3
	retryDelay     = 200 * time.Millisecond
)

// Engine coordinates storage, the coin ledger and notifications for
// every order state transition.
type Engine struct {
	db       storage.Storage
	notifier Notifier
	metrics  *metrics.OrderMetrics
	logger   *zap.Logger
}

// NewEngine creates an order lifecycle engine.
func NewEngine(db storage.Storage, notifier Notifier, m *metrics.OrderMetrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{db: db, notifier: notifier, metrics: m, logger: logger}
}

// withRetry retries transient storage faults a bounded number of times.
// Validation errors (not found, out of stock) pass through untouched.
func (e *Engine) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < storageRetries; attempt++ {
		err = op()
		if !errors.Is(err, storage.ErrUnavailable) {
			return err
		}
		e.logger.Warn("storage unavailable, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return err
		case <-time.After(retryDelay):
		}
	}
	return err
}

// Quote resolves the effective price of a variation the same way Place
// will, so payment prompts match the committed order.
func Quote(p *models.Product, v *models.Variation) (rubles float64, coins int64) {
	return price(p, v)
}

// price resolves the effective ruble and coin price of a variation,
// honoring variation-level overrides.
func price(p *models.Product, v *models.Variation) (rubles float64, coins int64) {
	rubles = p.Price
	if v.Price > 0 {
		rubles = v.Price
	}
	coins = p.CoinPrice
	if v.CoinPrice > 0 {
		coins = v.CoinPrice
	}
	return rubles, coins
}
