/*
Package configs loads the relay's settings from the environment.

Values come from process environment variables, optionally seeded from a .env file in the
working directory. Every setting has a default suitable for local development.
*/
package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

const (
	minPort = 1024
	maxPort = 65535
)

// AppConfig holds every setting the relay needs at startup.
type AppConfig struct {
	// General server settings
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Port        int    `env:"PORT" envDefault:"4000"`

	// AllowedOrigins is the CORS and WebSocket origin allow-list.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Chat settings
	Rooms            []string `env:"ROOMS" envDefault:"General,Sports,Tech" envSeparator:","`
	HistoryLimit     int      `env:"HISTORY_LIMIT" envDefault:"20"`
	MaxMessageLength int      `env:"MAX_MESSAGE_LENGTH" envDefault:"2000"`
	SendQueueSize    int      `env:"SEND_QUEUE_SIZE" envDefault:"256"`

	// Connection throttling per client IP
	WSConnectRate  float64 `env:"WS_CONNECT_RATE" envDefault:"1"`
	WSConnectBurst int     `env:"WS_CONNECT_BURST" envDefault:"10"`
}

// IsDevelopment reports whether the relay runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig reads .env (if present) and then the process environment.
func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	return parse(env.Options{})
}

// ParseConfig builds an AppConfig from the given variables only, ignoring the process
// environment.
func ParseConfig(vars map[string]string) (*AppConfig, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.AllowedOrigins = cleanList(cfg.AllowedOrigins)
	cfg.Rooms = cleanList(cfg.Rooms)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.Port < minPort || c.Port > maxPort {
		return fmt.Errorf("port number %d is outside the allowed range (%d-%d)", c.Port, minPort, maxPort)
	}

	if len(c.Rooms) == 0 {
		return errors.New("ROOMS must name at least one room")
	}

	if dup := lo.FindDuplicates(c.Rooms); len(dup) > 0 {
		return fmt.Errorf("ROOMS contains duplicate names: %s", strings.Join(dup, ", "))
	}

	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}

	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength)
	}

	if c.SendQueueSize <= 0 {
		return fmt.Errorf("SEND_QUEUE_SIZE must be positive, got %d", c.SendQueueSize)
	}

	if c.WSConnectRate <= 0 || c.WSConnectBurst <= 0 {
		return fmt.Errorf("WS_CONNECT_RATE and WS_CONNECT_BURST must be positive")
	}

	return nil
}

// cleanList trims every entry and drops the empty ones.
func cleanList(items []string) []string {
	return lo.FilterMap(items, func(item string, _ int) (string, bool) {
		trimmed := strings.TrimSpace(item)
		return trimmed, trimmed != ""
	})
}
