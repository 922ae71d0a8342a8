package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the application configuration
type Config struct {
	Env      string `env:"APP_ENV" env-default:"dev"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`

	TelegramToken string  `env:"TELEGRAM_BOT_TOKEN"`
	AdminIDs      []int64 `env:"ADMIN_IDS"`

	// Community channel used for the subscription gate; empty disables
	// the check.
	ChannelUsername string `env:"CHANNEL_USERNAME"`

	// Forum group where products are published and orders are moderated.
	ShopChatID    int64 `env:"SHOP_CHAT_ID"`
	ShopTopicID   int   `env:"SHOP_TOPIC_ID"`
	OrdersTopicID int   `env:"ORDERS_TOPIC_ID"`

	// Bot mode configuration
	WebhookMode bool   `env:"WEBHOOK_MODE"`
	WebhookURL  string `env:"WEBHOOK_URL"`
	HTTPPort    string `env:"PORT" env-default:"8080"`

	PostgresDSN string `env:"POSTGRES_DSN"`
	UseMockDB   bool   `env:"USE_MOCK_DB"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.WebhookMode && cfg.WebhookURL == "" {
		return nil, fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
	}
	if !cfg.UseMockDB && cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required when USE_MOCK_DB is not set")
	}

	return &cfg, nil
}

// IsAdmin reports whether the id is in the configured admin list.
// Admins from config are recognized even before their first /start.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
