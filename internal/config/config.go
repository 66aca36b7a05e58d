package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Environment    string
	DatabaseDriver string
	DatabaseURL    string

	HTTPAddr     string
	GRPCAddr     string
	MaxBodyBytes int64
	TxTimeout    time.Duration

	JWTSecret string
	JWTIssuer string

	RedisAddr             string
	RateLimitCapacity     int
	RateLimitRefillPerSec float64

	TLSCert string
	TLSKey  string
	TLSCA   string

	// MetricsAllowlist restricts /metrics to these CIDRs. Empty means open.
	MetricsAllowlist []string
}

var defaults = map[string]interface{}{
	"DATABASE_DRIVER":           "postgres",
	"HTTP_ADDR":                 ":8080",
	"GRPC_ADDR":                 ":9090",
	"MAX_BODY_BYTES":            1 << 20,
	"TX_TIMEOUT":                "5s",
	"JWT_ISSUER":                "coop-ledger",
	"RATE_LIMIT_CAPACITY":       100,
	"RATE_LIMIT_REFILL_PER_SEC": 10.0,
}

// Load reads configuration from the environment and, when CONFIG_FILE is set,
// from that file. Environment variables win over file values.
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom reads configuration through v. Tests pass a pre-populated instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		Environment:           v.GetString("APP_ENV"),
		DatabaseDriver:        strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseURL:           v.GetString("DATABASE_URL"),
		HTTPAddr:              v.GetString("HTTP_ADDR"),
		GRPCAddr:              v.GetString("GRPC_ADDR"),
		MaxBodyBytes:          v.GetInt64("MAX_BODY_BYTES"),
		TxTimeout:             v.GetDuration("TX_TIMEOUT"),
		JWTSecret:             v.GetString("JWT_SECRET"),
		JWTIssuer:             v.GetString("JWT_ISSUER"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RateLimitCapacity:     v.GetInt("RATE_LIMIT_CAPACITY"),
		RateLimitRefillPerSec: v.GetFloat64("RATE_LIMIT_REFILL_PER_SEC"),
		TLSCert:               v.GetString("TLS_CERT"),
		TLSKey:                v.GetString("TLS_KEY"),
		MetricsAllowlist:      splitList(v.GetString("METRICS_ALLOWLIST")),
		TLSCA:                 v.GetString("TLS_CA"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether the hardened settings apply.
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "staging"
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	if c.TxTimeout <= 0 {
		return errors.New("TX_TIMEOUT must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("MAX_BODY_BYTES must be positive")
	}
	if c.RateLimitCapacity <= 0 || c.RateLimitRefillPerSec <= 0 {
		return errors.New("RATE_LIMIT_CAPACITY and RATE_LIMIT_REFILL_PER_SEC must be positive")
	}

	// Development may run on SQLite without TLS; production may not.
	if c.IsProduction() {
		if c.TLSCert == "" {
			missing = append(missing, "TLS_CERT")
		}
		if c.TLSKey == "" {
			missing = append(missing, "TLS_KEY")
		}
		if c.RedisAddr == "" {
			missing = append(missing, "REDIS_ADDR")
		}

		if len(missing) > 0 {
			return errors.New("missing required environment variables for " + c.Environment + ": " + strings.Join(missing, ", "))
		}

		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 bytes in " + c.Environment)
		}
		if c.DatabaseDriver != "postgres" {
			return errors.New("DATABASE_DRIVER must be postgres in " + c.Environment)
		}
	}

	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
