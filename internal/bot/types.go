package bot

import (
	tgbotapi "github.com/matterbridge/telegram-bot-api/v6"
	"go.uber.org/zap"

	"shopbot/internal/config"
	"shopbot/internal/flow"
	"shopbot/internal/order"
	"shopbot/internal/storage"
)

// Bot represents the Telegram bot wrapper
type Bot struct {
	api    *tgbotapi.BotAPI
	db     storage.Storage
	engine *order.Engine
	flows  *flow.Store
	cfg    *config.Config
	logger *zap.Logger
}

// GetAPI returns the bot API for testing
func (b *Bot) GetAPI() *tgbotapi.BotAPI {
	return b.api
}
