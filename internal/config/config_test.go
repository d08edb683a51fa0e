package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"APP_ENV", "LOG_LEVEL", "DATABASE_URL", "REDIS_URL", "BALANCE_CACHE_TTL",
		"SERIAL_HOLD_TTL", "COMMIT_MAX_ATTEMPTS", "COMMIT_RETRY_BASE", "SERVER_PORT", "ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 5*time.Second, cfg.BalanceCacheTTL)
	assert.Equal(t, 15*time.Minute, cfg.SerialHoldTTL)
	assert.Equal(t, 3, cfg.CommitMaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.CommitRetryBase)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SERIAL_HOLD_TTL", "30m")
	t.Setenv("COMMIT_MAX_ATTEMPTS", "5")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 30*time.Minute, cfg.SerialHoldTTL)
	assert.Equal(t, 5, cfg.CommitMaxAttempts)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("BALANCE_CACHE_TTL", "soon")
	_, err := Load()
	assert.ErrorContains(t, err, "BALANCE_CACHE_TTL")

	t.Setenv("BALANCE_CACHE_TTL", "")
	t.Setenv("COMMIT_MAX_ATTEMPTS", "0")
	_, err = Load()
	assert.ErrorContains(t, err, "COMMIT_MAX_ATTEMPTS")
}
