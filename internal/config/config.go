// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database settings. When DatabaseURL is empty the hub falls back to a
	// local SQLite store at SQLitePath (laptop mode).
	DatabaseURL string
	SQLitePath  string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Import settings.
	ImportedBy          string // Identity recorded on manual resolutions and import history.
	MaxRequestBodyBytes int64  // Maximum request body size in bytes (also caps CSV uploads).

	// Rate limiting (token bucket, keyed by client IP).
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("AGENTHUB_PORT", 8080),
		ReadTimeout:         envDuration("AGENTHUB_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("AGENTHUB_WRITE_TIMEOUT", 30*time.Second),
		DatabaseURL:         envStr("AGENTHUB_DATABASE_URL", ""),
		SQLitePath:          envStr("AGENTHUB_SQLITE_PATH", "agenthub.db"),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "agenthub"),
		ImportedBy:          envStr("AGENTHUB_IMPORTED_BY", "Admin"),
		MaxRequestBodyBytes: int64(envInt("AGENTHUB_MAX_REQUEST_BODY_BYTES", 8*1024*1024)), // 8 MB default
		RateLimitEnabled:    envBool("AGENTHUB_RATE_LIMIT_ENABLED", true),
		RateLimitRPS:        envFloat("AGENTHUB_RATE_LIMIT_RPS", 2),
		RateLimitBurst:      envInt("AGENTHUB_RATE_LIMIT_BURST", 5),
		LogLevel:            envStr("AGENTHUB_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.DatabaseURL == "" && c.SQLitePath == "" {
		return fmt.Errorf("config: AGENTHUB_DATABASE_URL or AGENTHUB_SQLITE_PATH is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: AGENTHUB_PORT must be in (0, 65535]")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: AGENTHUB_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		return fmt.Errorf("config: AGENTHUB_RATE_LIMIT_RPS and AGENTHUB_RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
