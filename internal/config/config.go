// Package config loads the payments database configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration of the payments database process.
type Config struct {
	// Database holds the SQLite settings.
	Database DatabaseConfig `yaml:"database"`

	// Notifications holds the change-bus settings.
	Notifications NotificationsConfig `yaml:"notifications"`

	// Feeds holds the live-feed defaults.
	Feeds FeedsConfig `yaml:"feeds"`

	// FiatCurrency is the preferred fiat currency stamped into payment
	// metadata, as an ISO 4217 code. Empty disables stamping.
	FiatCurrency string `yaml:"fiat_currency"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// MetricsAddr is the listen address of the metrics endpoint. Empty
	// disables it.
	MetricsAddr string `yaml:"metrics_addr"`
}

type DatabaseConfig struct {
	// Path is the SQLite database file. ":memory:" keeps everything
	// in memory.
	Path string `yaml:"path"`
}

type NotificationsConfig struct {
	// HistorySize is the number of recent changes the bus retains.
	HistorySize int `yaml:"history_size"`
}

type FeedsConfig struct {
	// PageSize is the default page size of feeds opened without one.
	PageSize int64 `yaml:"page_size"`
}

// Load loads the configuration from config/walletdb.yaml.
func Load() (*Config, error) {
	return LoadFromPath(filepath.Join("config", "walletdb.yaml"))
}

// LoadFromPath loads the configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the configuration or returns the defaults when the
// file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := LoadFromPath(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "payments.sqlite",
		},
		Notifications: NotificationsConfig{
			HistorySize: 256,
		},
		Feeds: FeedsConfig{
			PageSize: 50,
		},
		FiatCurrency: "USD",
		LogLevel:     "info",
	}
}

// Validate checks the configuration for values the process cannot run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Notifications.HistorySize < 0 {
		return fmt.Errorf("notification history size must not be negative")
	}
	if c.Feeds.PageSize <= 0 {
		return fmt.Errorf("feed page size must be positive")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}
