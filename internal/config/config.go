// Package config provides configuration management for the catalog service.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Store    StoreConfig    `envPrefix:"STORE_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Snapshot SnapshotConfig `envPrefix:"SNAPSHOT_"`
	Catalog  CatalogConfig  `envPrefix:"CATALOG_"`
	Search   SearchConfig   `envPrefix:"SEARCH_"`
	Logging  LoggingConfig  `envPrefix:"LOG_"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// StoreConfig contains storage driver selection and limits.
type StoreConfig struct {
	// Driver specifies which store to use: "memory" or "redis"
	Driver       string        `env:"DRIVER" envDefault:"memory"`
	QueryTimeout time.Duration `env:"QUERY_TIMEOUT" envDefault:"10s"`
}

// RedisConfig contains Redis store client configuration.
type RedisConfig struct {
	Addresses []string `env:"ADDRESSES" envDefault:"localhost:6379" envSeparator:","`
	Password  string   `env:"PASSWORD" envDefault:""`
	KeyPrefix string   `env:"KEY_PREFIX" envDefault:"stac:"`
}

// SnapshotConfig controls persistence of the in-memory store.
// An empty path disables snapshots.
type SnapshotConfig struct {
	Path     string        `env:"PATH" envDefault:""`
	Interval time.Duration `env:"INTERVAL" envDefault:"5m"`
}

// CatalogConfig contains catalog metadata configuration.
type CatalogConfig struct {
	Version     string `env:"VERSION" envDefault:"1.0.0"`
	BaseURL     string `env:"BASE_URL"` // Public-facing URL (required)
	Title       string `env:"TITLE" envDefault:"STAC Catalog"`
	Description string `env:"DESCRIPTION" envDefault:"Geospatial catalog query and persistence service"`
}

// SearchConfig contains search behavior and limits.
type SearchConfig struct {
	DefaultLimit   int           `env:"DEFAULT_LIMIT" envDefault:"10"`
	MaxLimit       int           `env:"MAX_LIMIT" envDefault:"10000"`
	CursorTTL      time.Duration `env:"CURSOR_TTL" envDefault:"1h"`
	QueryablesPath string        `env:"QUERYABLES_PATH" envDefault:""`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	// Validate store config
	if c.Store.Driver != "memory" && c.Store.Driver != "redis" {
		return fmt.Errorf("store driver must be 'memory' or 'redis', got %q", c.Store.Driver)
	}

	if c.Store.QueryTimeout <= 0 {
		return fmt.Errorf("store query timeout must be positive, got %s", c.Store.QueryTimeout)
	}

	if c.Store.Driver == "redis" && len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("redis store requires at least one address")
	}

	// Validate snapshot config
	if c.Snapshot.Path != "" && c.Snapshot.Interval <= 0 {
		return fmt.Errorf("snapshot interval must be positive, got %s", c.Snapshot.Interval)
	}

	// Validate catalog config
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog base URL is required")
	}

	if c.Catalog.Version == "" {
		return fmt.Errorf("catalog version is required")
	}

	// Validate search config
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("default limit must be at least 1, got %d", c.Search.DefaultLimit)
	}

	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("max limit (%d) must be >= default limit (%d)", c.Search.MaxLimit, c.Search.DefaultLimit)
	}

	if c.Search.MaxLimit > 10000 {
		return fmt.Errorf("max limit must not exceed 10000, got %d", c.Search.MaxLimit)
	}

	if c.Search.CursorTTL <= 0 {
		return fmt.Errorf("cursor TTL must be positive, got %s", c.Search.CursorTTL)
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
