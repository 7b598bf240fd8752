package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.OpTimeout)
	assert.Equal(t, uint64(3), cfg.MaxRetries)
	assert.Equal(t, "data/booking.db", cfg.DB.SQLitePath)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, "session.events", cfg.Events.Queue)
	assert.Equal(t, 60, cfg.RateLimit.Capacity)
	assert.True(t, cfg.Cache.MethodSet()["GET"])
	assert.False(t, cfg.IsProd())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_DRIVER", "sqlite")

	_, err := Load(noEnvFile(t))
	require.Error(t, err)
}

func TestLoadMySQLNeedsCredentials(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_NAME", "")

	_, err := Load(noEnvFile(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_USER")
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "postgres")

	_, err := Load(noEnvFile(t))
	require.Error(t, err)
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(file, []byte("APP_PORT=9999\nOP_TIMEOUT=250ms\nSTORE_MAX_RETRIES=7\n"), 0o600))

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("APP_PORT", "7000")
	// godotenv.Load sets variables it did not find; make sure t cleans them up.
	t.Setenv("OP_TIMEOUT", "")
	t.Setenv("STORE_MAX_RETRIES", "")
	require.NoError(t, os.Unsetenv("OP_TIMEOUT"))
	require.NoError(t, os.Unsetenv("STORE_MAX_RETRIES"))

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.OpTimeout)
	assert.Equal(t, uint64(7), cfg.MaxRetries)
}

func TestRateLimitNormalize(t *testing.T) {
	rl := RateLimitConfig{Capacity: 0, RefillTokens: -1, RefillInterval: 0, TTL: time.Second}
	rl.normalize()
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 1, rl.RefillTokens)
	assert.Equal(t, time.Second, rl.RefillInterval)
	assert.Equal(t, 5*time.Second, rl.TTL)
}
