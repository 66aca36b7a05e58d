package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"APP_ENV", "DATABASE_DRIVER", "DATABASE_URL", "JWT_SECRET", "CONFIG_FILE",
		"TLS_CERT", "TLS_KEY", "REDIS_ADDR", "HTTP_ADDR", "TX_TIMEOUT", "METRICS_ALLOWLIST"} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)

	// 1. Missing variables -> Fail, naming each of them
	_, err := LoadFrom(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_ENV")
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "JWT_SECRET")

	// 2. Development with defaults -> Success
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "ledger.db")
	t.Setenv("JWT_SECRET", "dev-secret")

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.Equal(t, 100, cfg.RateLimitCapacity)
	assert.False(t, cfg.IsProduction())
	assert.Empty(t, cfg.MetricsAllowlist)

	// 3. Production without TLS -> Fail
	t.Setenv("APP_ENV", "production")
	_, err = LoadFrom(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TLS_CERT")

	// 4. Production with a short secret -> Fail
	t.Setenv("TLS_CERT", "/etc/tls/server.crt")
	t.Setenv("TLS_KEY", "/etc/tls/server.key")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	_, err = LoadFrom(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	// 5. Production on SQLite -> Fail
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	_, err = LoadFrom(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_DRIVER")

	// 6. Valid production config -> Success
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://ledger@db:5432/ledger")
	t.Setenv("TX_TIMEOUT", "3s")
	t.Setenv("METRICS_ALLOWLIST", "10.0.0.0/8, 127.0.0.1,")
	cfg, err = LoadFrom(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 3*time.Second, cfg.TxTimeout)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.MetricsAllowlist)
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
APP_ENV: development
DATABASE_DRIVER: sqlite
DATABASE_URL: file.db
JWT_SECRET: from-file
HTTP_ADDR: ":9000"
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", ":7000")

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "file.db", cfg.DatabaseURL)
	assert.Equal(t, ":7000", cfg.HTTPAddr, "environment wins over the file")
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := &Config{
		Environment:           "development",
		DatabaseDriver:        "mysql",
		DatabaseURL:           "x",
		JWTSecret:             "s",
		TxTimeout:             time.Second,
		MaxBodyBytes:          1,
		RateLimitCapacity:     1,
		RateLimitRefillPerSec: 1,
	}
	assert.ErrorContains(t, cfg.Validate(), "DATABASE_DRIVER")
}
