// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host            string
	Port            string
	Env             string // "development", "production", "testing"
	ShutdownTimeout time.Duration

	// Logging
	LogFormat string // "text" or "json"
	LogLevel  string

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible cache). CacheBackend "memory" keeps sessions
	// and searches in process and disables the statistics memo.
	CacheBackend   string
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string
	ValkeyDB       int

	// Catalog behaviour
	SessionTTL      time.Duration
	SearchCacheSize int
	SearchCacheTTL  time.Duration
	StatsCacheTTL   time.Duration
	DefaultPageSize int
	PurgeAfterDays  int
	SearchRateLimit int // searches per minute per chat; 0 disables

	// Tracing
	OTelEndpoint     string
	OTelInsecure     bool
	OTelSamplingRate float64
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Returns an error if a value cannot be
// parsed or critical values are missing in production mode.
func Load() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		Host:            envOrDefault("APP_HOST", "0.0.0.0"),
		Port:            envOrDefault("APP_PORT", "8080"),
		Env:             envOrDefault("APP_ENV", "development"),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),

		LogLevel: envOrDefault("LOG_LEVEL", "info"),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "librarybot"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", "changeme"),
		DBName:     envOrDefault("POSTGRES_DB", "librarybot"),

		CacheBackend:   envOrDefault("CACHE_BACKEND", "valkey"),
		ValkeyHost:     envOrDefault("VALKEY_HOST", "localhost"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),
		ValkeyDB:       p.integer("VALKEY_DB", 0),

		SessionTTL:      p.duration("SESSION_TTL", 24*time.Hour),
		SearchCacheSize: p.integer("SEARCH_CACHE_SIZE", 100),
		SearchCacheTTL:  p.duration("SEARCH_CACHE_TTL", time.Hour),
		StatsCacheTTL:   p.duration("STATS_CACHE_TTL", 5*time.Minute),
		DefaultPageSize: p.integer("DEFAULT_PAGE_SIZE", 20),
		PurgeAfterDays:  p.integer("PURGE_AFTER_DAYS", 30),
		SearchRateLimit: p.integer("SEARCH_RATE_LIMIT", 30),

		OTelEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTelInsecure:     p.boolean("OTEL_EXPORTER_OTLP_INSECURE", false),
		OTelSamplingRate: p.float("OTEL_SAMPLING_RATE", 1.0),
	}
	if p.err != nil {
		return nil, p.err
	}

	defaultFormat := "json"
	if cfg.IsDev() {
		defaultFormat = "text"
	}
	cfg.LogFormat = envOrDefault("LOG_FORMAT", defaultFormat)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Env == "production" {
		if c.DBPassword == "changeme" {
			return fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
	}
	switch c.CacheBackend {
	case "valkey", "memory":
	default:
		return fmt.Errorf("CACHE_BACKEND must be valkey or memory, got %q", c.CacheBackend)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if c.DefaultPageSize < 1 || c.DefaultPageSize > 100 {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be between 1 and 100, got %d", c.DefaultPageSize)
	}
	if c.SearchCacheSize < 1 {
		return fmt.Errorf("SEARCH_CACHE_SIZE must be positive, got %d", c.SearchCacheSize)
	}
	if c.PurgeAfterDays < 0 {
		return fmt.Errorf("PURGE_AFTER_DAYS must not be negative, got %d", c.PurgeAfterDays)
	}
	if c.SearchRateLimit < 0 {
		return fmt.Errorf("SEARCH_RATE_LIMIT must not be negative, got %d", c.SearchRateLimit)
	}
	if c.OTelSamplingRate < 0 || c.OTelSamplingRate > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATE must be between 0 and 1, got %v", c.OTelSamplingRate)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// PurgeAfter is the default age at which soft-deleted rows may be purged.
func (c *Config) PurgeAfter() time.Duration {
	return time.Duration(c.PurgeAfterDays) * 24 * time.Hour
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parser reads typed variables and keeps the first parse error.
type parser struct {
	err error
}

func (p *parser) lookup(key string, parse func(string) error) {
	v := os.Getenv(key)
	if v == "" || p.err != nil {
		return
	}
	if err := parse(v); err != nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
}

func (p *parser) integer(key string, fallback int) int {
	n := fallback
	p.lookup(key, func(v string) (err error) {
		n, err = strconv.Atoi(v)
		return err
	})
	return n
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	d := fallback
	p.lookup(key, func(v string) (err error) {
		d, err = time.ParseDuration(v)
		return err
	})
	return d
}

func (p *parser) boolean(key string, fallback bool) bool {
	b := fallback
	p.lookup(key, func(v string) (err error) {
		b, err = strconv.ParseBool(v)
		return err
	})
	return b
}

func (p *parser) float(key string, fallback float64) float64 {
	f := fallback
	p.lookup(key, func(v string) (err error) {
		f, err = strconv.ParseFloat(v, 64)
		return err
	})
	return f
}
