package bot

import (
	"fmt"

	tgbotapi "github.com/matterbridge/telegram-bot-api/v6"
	"go.uber.org/zap"

	"shopbot/internal/config"
	"shopbot/internal/flow"
	"shopbot/internal/metrics"
	"shopbot/internal/order"
	"shopbot/internal/storage"
)

// NewBot creates a new Telegram bot together with its order engine.
func NewBot(cfg *config.Config, db storage.Storage, m *metrics.OrderMetrics, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Bot created", zap.String("bot_username", api.Self.UserName))

	b := &Bot{
		api:    api,
		db:     db,
		flows:  flow.NewStore(),
		cfg:    cfg,
		logger: logger,
	}
	b.engine = order.NewEngine(db, &telegramNotifier{bot: b}, m, logger)
	return b, nil
}
