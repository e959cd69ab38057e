package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort      string `mapstructure:"HTTP_PORT"`
	DBDriver      string `mapstructure:"DB_DRIVER"`
	DB_URL        string `mapstructure:"DB_URL"`
	DBAutoMigrate bool   `mapstructure:"DB_AUTO_MIGRATE"`

	RedisURL   string        `mapstructure:"REDIS_URL"`
	SessionTTL time.Duration `mapstructure:"SESSION_TTL"`

	TelegramBotToken string        `mapstructure:"TELEGRAM_BOT_TOKEN"`
	AdminChatIDs     string        `mapstructure:"ADMIN_CHAT_IDS"`
	InitDataMaxAge   time.Duration `mapstructure:"INIT_DATA_MAX_AGE"`

	WebhookSecret   string `mapstructure:"WEBHOOK_SECRET"`
	OrderPrefix     string `mapstructure:"ORDER_PREFIX"`
	ReferralPercent int64  `mapstructure:"REFERRAL_PERCENT"`

	InstagramGraphURL   string        `mapstructure:"INSTAGRAM_GRAPH_URL"`
	InstagramRefreshURL string        `mapstructure:"INSTAGRAM_REFRESH_URL"`
	PollMaxAttempts     int           `mapstructure:"POLL_MAX_ATTEMPTS"`
	PollDelay           time.Duration `mapstructure:"POLL_DELAY"`
	TokenRefreshHorizon time.Duration `mapstructure:"TOKEN_REFRESH_HORIZON"`

	SchedulerSpec string `mapstructure:"SCHEDULER_SPEC"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

var defaults = map[string]any{
	"HTTP_PORT":             "8080",
	"DB_DRIVER":             "postgres",
	"DB_URL":                "",
	"DB_AUTO_MIGRATE":       true,
	"REDIS_URL":             "",
	"SESSION_TTL":           24 * time.Hour,
	"TELEGRAM_BOT_TOKEN":    "",
	"ADMIN_CHAT_IDS":        "",
	"INIT_DATA_MAX_AGE":     24 * time.Hour,
	"WEBHOOK_SECRET":        "",
	"ORDER_PREFIX":          "prodamus",
	"REFERRAL_PERCENT":      10,
	"INSTAGRAM_GRAPH_URL":   "https://graph.instagram.com/v21.0",
	"INSTAGRAM_REFRESH_URL": "https://graph.instagram.com",
	"POLL_MAX_ATTEMPTS":     10,
	"POLL_DELAY":            3 * time.Second,
	"TOKEN_REFRESH_HORIZON": 7 * 24 * time.Hour,
	"SCHEDULER_SPEC":        "@every 1m",
	"LOG_LEVEL":             "debug",
	"LOG_FORMAT":            "text",
}

// LoadConfig reads an optional env file at path and overlays the process
// environment on top of it.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return config, fmt.Errorf("failed to resolve config path: %w", err)
		}

		if _, statErr := os.Stat(absPath); statErr == nil {
			v.SetConfigFile(absPath)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return config, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}

	if config.DB_URL == "" {
		return config, errors.New("DB_URL is required")
	}
	if config.OrderPrefix == "" {
		return config, errors.New("ORDER_PREFIX must not be empty")
	}
	if config.PollMaxAttempts <= 0 {
		return config, fmt.Errorf("POLL_MAX_ATTEMPTS must be positive, got %d", config.PollMaxAttempts)
	}
	if _, err := config.AdminIDs(); err != nil {
		return config, err
	}

	return config, nil
}

// AdminIDs parses ADMIN_CHAT_IDS.
func (c Config) AdminIDs() ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(c.AdminChatIDs, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin chat id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
