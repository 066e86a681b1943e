// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache and quota counters (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Enforcement. Disabled by default: an unconfigured deployment must not
	// lock anyone out, but the disabled state is logged loudly at startup.
	AuthEnforced bool `env:"AUTH_ENFORCED" envDefault:"false"`

	// Environment indicator embedded in generated keys (live or test).
	KeyEnv string `env:"KEY_ENV" envDefault:"live"`

	// Identity cache. A revoked credential may keep authenticating for up to
	// this TTL on nodes that cached it; keep it small.
	IdentityCacheTTL time.Duration `env:"IDENTITY_CACHE_TTL" envDefault:"2m"`

	// Paths that bypass the authorization pipeline entirely.
	ExemptPaths string `env:"EXEMPT_PATHS" envDefault:"/,/healthz,/readyz,/metrics"`

	// Usage pipeline
	UsageWorkerEnabled bool `env:"USAGE_WORKER_ENABLED" envDefault:"true"`
	UsageBatchSize     int  `env:"USAGE_BATCH_SIZE" envDefault:"500"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// CORS configuration: comma-separated list of allowed origins.
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetExemptPaths parses the comma-separated exempt path list.
func (c *Config) GetExemptPaths() []string {
	return splitAndTrim(c.ExemptPaths)
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	return splitAndTrim(c.CORSAllowedOrigins)
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
