// Package config loads and validates matchcore's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" validate:"required"`
	Admin     AdminConfig     `yaml:"admin" validate:"required"`
	Logging   LoggingConfig   `yaml:"logging" validate:"required"`
	Matching  MatchingConfig  `yaml:"matching" validate:"required"`
	Auth      AuthConfig      `yaml:"auth" validate:"required"`
	RateLimit RateLimitConfig `yaml:"rate_limit" validate:"required"`
	Events    EventsConfig    `yaml:"events" validate:"required"`
}

// ServerConfig describes the TCP trading endpoint.
type ServerConfig struct {
	Host             string        `yaml:"host" validate:"required"`
	Port             int           `yaml:"port" validate:"required,gt=0,lt=65536"`
	MaxFrameBytes    int           `yaml:"max_frame_bytes" validate:"required,gt=0"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" validate:"required"`
	AcceptBacklog    int           `yaml:"accept_backlog" validate:"gte=0"`
	ConnAdmissionRPS int           `yaml:"conn_admission_rps" validate:"required,gt=0"`
}

// AdminConfig describes the operator-facing HTTP surface (health, metrics,
// debug dump) — never part of the trading wire protocol.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"required_if=Enabled true"`
}

// LoggingConfig configures the zap-backed structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"required,oneof=json console"`
}

// MatchingConfig tunes the matching engine and market-data publisher.
type MatchingConfig struct {
	OrderBookDepth      int `yaml:"order_book_depth" validate:"required,gt=0"`
	PublisherPoolSize   int `yaml:"publisher_pool_size" validate:"required,gt=0"`
	SnapshotCacheTTLSec int `yaml:"snapshot_cache_ttl_sec" validate:"required,gt=0"`
}

// AuthConfig selects the pluggable Authenticator (internal/auth).
type AuthConfig struct {
	Mode      string `yaml:"mode" validate:"required,oneof=allow-all jwt"`
	JWTSecret string `yaml:"jwt_secret" validate:"required_if=Mode jwt"`
}

// RateLimitConfig tunes per-session and connection-admission throttling.
type RateLimitConfig struct {
	SessionMessagesPerSec int `yaml:"session_messages_per_sec" validate:"required,gt=0"`
	SessionBurst          int `yaml:"session_burst" validate:"required,gt=0"`
}

// EventsConfig selects the EventPublisher (internal/events) used to mirror
// order/trade events to an external system.
type EventsConfig struct {
	Publisher string `yaml:"publisher" validate:"required,oneof=noop nats"`
	NATSURL   string `yaml:"nats_url" validate:"required_if=Publisher nats"`
}

// Default returns the built-in configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			MaxFrameBytes:    4096,
			ShutdownTimeout:  5 * time.Second,
			AcceptBacklog:    128,
			ConnAdmissionRPS: 50,
		},
		Admin: AdminConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Matching: MatchingConfig{
			OrderBookDepth:      5,
			PublisherPoolSize:   64,
			SnapshotCacheTTLSec: 1,
		},
		Auth: AuthConfig{
			Mode: "allow-all",
		},
		RateLimit: RateLimitConfig{
			SessionMessagesPerSec: 500,
			SessionBurst:          1000,
		},
		Events: EventsConfig{
			Publisher: "noop",
		},
	}
}

// Load reads and validates a YAML configuration file. An empty path returns
// Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, validate(cfg)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
