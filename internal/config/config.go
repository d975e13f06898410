// Package config provides configuration loading for storyd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the storyd daemon.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Store      StoreConfig      `koanf:"store"`
	Lock       LockConfig       `koanf:"lock"`
	Generation GenerationConfig `koanf:"generation"`
	NATS       NATSConfig       `koanf:"nats"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig configures the HTTP gateway listener.
type ServerConfig struct {
	// Host is the bind address for the HTTP server.
	Host string `koanf:"host"`

	// Port is the HTTP listen port.
	Port int `koanf:"port"`

	// TrustedCaller exposes usage guidelines and allowed phases in
	// tools/list responses. Enable only on private deployments.
	TrustedCaller bool `koanf:"trusted_caller"`
}

// StoreConfig configures the SQLite content store.
type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" opens an
	// in-process database with no persistence.
	Path string `koanf:"path"`
}

// LockConfig configures the distributed generation lock.
type LockConfig struct {
	// TTL is how long an unrenewed lock stays valid.
	TTL Duration `koanf:"ttl"`

	// HeartbeatInterval is the renewal period while work runs.
	// Zero means half the TTL.
	HeartbeatInterval Duration `koanf:"heartbeat_interval"`
}

// GenerationConfig configures the text-generation provider.
type GenerationConfig struct {
	// Model is the model identifier passed to the provider.
	Model string `koanf:"model"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible).
	BaseURL string `koanf:"base_url"`

	// APIKey authenticates against the provider.
	APIKey Secret `koanf:"api_key"`
}

// NATSConfig configures optional job event publishing.
type NATSConfig struct {
	// URL is the NATS server address. Empty disables event publishing.
	URL string `koanf:"url"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8315,
		},
		Store: StoreConfig{
			Path: "storyd.db",
		},
		Lock: LockConfig{
			TTL: Duration(60 * time.Second),
		},
		Generation: GenerationConfig{
			Model: "gpt-4o-mini",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Lock.TTL.Duration() <= 0 {
		return fmt.Errorf("lock.ttl must be positive")
	}
	if hb := c.Lock.HeartbeatInterval.Duration(); hb != 0 && hb >= c.Lock.TTL.Duration() {
		return fmt.Errorf("lock.heartbeat_interval must be shorter than lock.ttl")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
