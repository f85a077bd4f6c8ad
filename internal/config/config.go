// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"tenant-authz/internal/ratelimit"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// HTTPAddr is the address the HTTP API listens on (e.g. :3000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBPoolMin   int    `mapstructure:"DB_POOL_MIN"`
	DBPoolMax   int    `mapstructure:"DB_POOL_MAX"`

	// RedisURL is the redis:// URL of the counter and cache store.
	RedisURL string `mapstructure:"REDIS_URL"`
	// RedisTTLSeconds is the default TTL for cached values.
	RedisTTLSeconds int `mapstructure:"REDIS_TTL"`

	// JWTSecret is the HMAC secret for HS256 tokens.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTPublicKey is the PEM-encoded public key or path to file for RS256/ES256 verification.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTPrivateKey is the PEM-encoded private key or path to file; only used to mint tokens (cmd/seed).
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTIssuer and JWTAudience are enforced on verification when set.
	JWTIssuer   string `mapstructure:"JWT_ISSUER"`
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12. Used when seeding users.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// RateLimitWindowSeconds is the fixed window length.
	RateLimitWindowSeconds int64 `mapstructure:"RATE_LIMIT_WINDOW"`
	// RateLimitMaxRequests is the per-identity limit per window.
	RateLimitMaxRequests int64 `mapstructure:"RATE_LIMIT_MAX_REQUESTS"`
	// RateLimitAnonMaxRequests is the per-IP limit for anonymous requests; 0 disables it.
	RateLimitAnonMaxRequests int64 `mapstructure:"RATE_LIMIT_ANON_MAX_REQUESTS"`
	// RateLimitScope is "route" (one window per route) or "global" (one window per identity and org).
	RateLimitScope string `mapstructure:"RATE_LIMIT_SCOPE"`

	// AuditQueueSize bounds the in-memory queue of audit entries awaiting the background writer.
	AuditQueueSize int `mapstructure:"AUDIT_QUEUE_SIZE"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// OTelEndpoint is the OTLP gRPC collector (e.g. localhost:4317). Empty disables export.
	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

const minProductionSecretLen = 32

var defaults = map[string]interface{}{
	"GRPC_ADDR":                    ":8080",
	"HTTP_ADDR":                    ":3000",
	"APP_ENV":                      "development",
	"DATABASE_URL":                 "",
	"DB_POOL_MIN":                  2,
	"DB_POOL_MAX":                  10,
	"REDIS_URL":                    "redis://localhost:6379/0",
	"REDIS_TTL":                    3600,
	"JWT_SECRET":                   "",
	"JWT_PUBLIC_KEY":               "",
	"JWT_PRIVATE_KEY":              "",
	"JWT_ISSUER":                   "",
	"JWT_AUDIENCE":                 "",
	"JWT_ACCESS_TTL":               "15m",
	"BCRYPT_COST":                  12,
	"RATE_LIMIT_WINDOW":            3600,
	"RATE_LIMIT_MAX_REQUESTS":      100,
	"RATE_LIMIT_ANON_MAX_REQUESTS": 0,
	"RATE_LIMIT_SCOPE":             "route",
	"AUDIT_QUEUE_SIZE":             1024,
	"LOG_LEVEL":                    "info",
	"LOG_FORMAT":                   "json",
	"OTEL_EXPORTER_OTLP_ENDPOINT":  "",
	"OTEL_EXPORTER_OTLP_INSECURE":  false,
	"OTEL_SERVICE_NAME":            "tenant-authz",
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	// Every key needs a default so Unmarshal sees env-only values.
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.JWTSecret == "" && c.JWTPublicKey == "" {
		return errors.New("config: JWT_SECRET or JWT_PUBLIC_KEY must be set")
	}
	if c.IsProduction() && c.JWTSecret != "" && len(c.JWTSecret) < minProductionSecretLen {
		return fmt.Errorf("config: JWT_SECRET must be at least %d bytes when APP_ENV=production", minProductionSecretLen)
	}
	if c.RateLimitWindowSeconds <= 0 {
		return errors.New("config: RATE_LIMIT_WINDOW must be positive")
	}
	if c.RateLimitMaxRequests <= 0 {
		return errors.New("config: RATE_LIMIT_MAX_REQUESTS must be positive")
	}
	if c.RateLimitAnonMaxRequests < 0 {
		return errors.New("config: RATE_LIMIT_ANON_MAX_REQUESTS must not be negative")
	}
	if _, err := ratelimit.ParseScope(c.RateLimitScope); err != nil {
		return fmt.Errorf("config: RATE_LIMIT_SCOPE: %w", err)
	}
	if c.AuditQueueSize <= 0 {
		return errors.New("config: AUDIT_QUEUE_SIZE must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.DBPoolMin < 0 || c.DBPoolMax < c.DBPoolMin {
		return errors.New("config: DB_POOL_MAX must be at least DB_POOL_MIN")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool { return c.Env == "production" }

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// CacheTTL returns RedisTTLSeconds as a duration. Returns 1h if unset.
func (c *Config) CacheTTL() time.Duration {
	if c.RedisTTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.RedisTTLSeconds) * time.Second
}
