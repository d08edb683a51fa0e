// Package config reads runtime settings from the environment. Mains load .env with
// godotenv before calling Load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	LogLevel string

	DatabaseURL string
	RedisURL    string // empty disables the balance cache

	BalanceCacheTTL   time.Duration
	SerialHoldTTL     time.Duration
	CommitMaxAttempts int
	CommitRetryBase   time.Duration

	ServerPort     string
	AllowedOrigins []string
	MigrationsDir  string
}

// Load returns the configuration with defaults applied to unset variables.
func Load() (*Config, error) {
	cfg := &Config{
		Env:            getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		MigrationsDir:  getEnv("MIGRATIONS_DIR", "migrations"),
	}

	var err error
	if cfg.BalanceCacheTTL, err = getDuration("BALANCE_CACHE_TTL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.SerialHoldTTL, err = getDuration("SERIAL_HOLD_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CommitRetryBase, err = getDuration("COMMIT_RETRY_BASE", 50*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.CommitMaxAttempts, err = getInt("COMMIT_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.CommitMaxAttempts < 1 {
		return nil, fmt.Errorf("COMMIT_MAX_ATTEMPTS must be at least 1, got %d", cfg.CommitMaxAttempts)
	}
	return cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
