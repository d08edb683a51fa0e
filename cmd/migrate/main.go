// migrate applies pending schema migrations from MIGRATIONS_DIR (default ./migrations).
//
// Usage: go run ./cmd/migrate
package main

import (
	"log"

	"stockout-engine/internal/config"
	"stockout-engine/internal/db"
	"stockout-engine/internal/logging"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL environment variable not set")
	}
	if err := db.Migrate(cfg.DatabaseURL, cfg.MigrationsDir, logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	logger.Info("[DONE] all migrations processed")
}
