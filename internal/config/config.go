// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the application configuration.
type Config struct {
	TelegramToken string `envconfig:"TELEGRAM_TOKEN" required:"true"`
	ChatID        int64  `envconfig:"CHAT_ID" required:"true"`
	Port          int    `envconfig:"PORT" default:"8080"`

	SofascoreBaseURL  string `envconfig:"SOFASCORE_PROXY_BASE" default:"https://api.sofascore.com/api/v1"`
	RequestsPerMinute int    `envconfig:"SOFASCORE_REQUESTS_PER_MINUTE" default:"30"`

	DatabasePath      string `envconfig:"DATABASE_PATH" default:"./data/bot.db"`
	LeagueCatalogPath string `envconfig:"LEAGUE_CATALOG_PATH"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// LogFile, when set, receives a copy of the log with size-based rotation.
	LogFile string `envconfig:"LOG_FILE"`

	AllowedUsers UserIDs `envconfig:"ALLOWED_USERS"`

	PollInterval      time.Duration `envconfig:"POLL_INTERVAL" default:"60s"`
	PollStartDelay    time.Duration `envconfig:"POLL_START_DELAY" default:"10s"`
	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	NotifiedRetention time.Duration `envconfig:"NOTIFIED_RETENTION" default:"12h"`
}

// UserIDs is a comma-separated list of Telegram user IDs.
type UserIDs []int64

// Decode implements envconfig.Decoder.
func (u *UserIDs) Decode(raw string) error {
	var ids UserIDs
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user ID %q: %w", s, err)
		}
		ids = append(ids, uid)
	}
	*u = ids
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.TelegramToken) == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if c.ChatID == 0 {
		return fmt.Errorf("CHAT_ID is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.PollStartDelay < 0 {
		return fmt.Errorf("POLL_START_DELAY must not be negative, got %s", c.PollStartDelay)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("SOFASCORE_REQUESTS_PER_MINUTE must be positive, got %d", c.RequestsPerMinute)
	}
	return nil
}

// SlogLevel converts LogLevel to a slog.Level. Unknown values map to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
