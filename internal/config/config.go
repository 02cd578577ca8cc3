// Package config defines the server configuration and its layered loader.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/apexfest/checkin/internal/model"
)

// Storage backends
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageSQL    = "sql"
)

// Notification sinks
const (
	NotifyNone = "none"
	NotifyLog  = "log"
	NotifyAMQP = "amqp"
)

// Config contains process configuration
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is json for machines or text for a colourised console.
	LogFormat string `koanf:"log_format"`

	// Host and Port form the HTTP listen address.
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// StorageType selects memory, redis or sql.
	StorageType string `koanf:"storage_type"`
	RedisURL    string `koanf:"redis_url"`
	SQLDriver   string `koanf:"sql_driver"`
	SQLDSN      string `koanf:"sql_dsn"`

	// SessionSecret signs session tokens. Leave empty only for development.
	SessionSecret   string        `koanf:"session_secret"`
	SessionDuration time.Duration `koanf:"session_duration"`

	// AdminPasswordHash is a bcrypt hash; admin login is disabled when empty.
	AdminPasswordHash string `koanf:"admin_password_hash"`

	// Cooldown is the minimum gap between check-ins to the same event.
	Cooldown time.Duration `koanf:"cooldown"`

	// NotifyType selects where domain notifications go: none, log or amqp.
	NotifyType string `koanf:"notify_type"`
	AMQPURL    string `koanf:"amqp_url"`
	AMQPQueue  string `koanf:"amqp_queue"`

	// PublicBaseURL prefixes the URLs printed in QR codes.
	PublicBaseURL string `koanf:"public_base_url"`

	MetricsEnabled bool `koanf:"metrics_enabled"`
}

// New returns a Config populated with defaults
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "json",
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		StorageType:     StorageMemory,
		SQLDriver:       "sqlite",
		SessionDuration: 8 * time.Hour,
		Cooldown:        model.DefaultCooldown,
		NotifyType:      NotifyLog,
		AMQPQueue:       "checkin.notifications",
		PublicBaseURL:   "http://localhost:8080",
		MetricsEnabled:  true,
	}
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate reports every problem with c at once
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		invalid("log_level %q", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		invalid("log_format %q", c.LogFormat)
	}
	if c.Port < 0 || c.Port > 65535 {
		invalid("port %d out of range", c.Port)
	}

	switch c.StorageType {
	case StorageMemory:
	case StorageRedis:
		if c.RedisURL == "" {
			invalid("redis_url is required for redis storage")
		}
	case StorageSQL:
		switch c.SQLDriver {
		case "sqlite", "postgres", "pgx":
		default:
			invalid("sql_driver %q", c.SQLDriver)
		}
		if c.SQLDSN == "" {
			invalid("sql_dsn is required for sql storage")
		}
	default:
		invalid("storage_type %q", c.StorageType)
	}

	switch c.NotifyType {
	case NotifyNone, NotifyLog:
	case NotifyAMQP:
		if c.AMQPURL == "" {
			invalid("amqp_url is required for amqp notifications")
		}
	default:
		invalid("notify_type %q", c.NotifyType)
	}

	if c.SessionDuration <= 0 {
		invalid("session_duration must be positive")
	}
	if c.Cooldown <= 0 {
		invalid("cooldown must be positive")
	}
	return errors.Join(errs...)
}
