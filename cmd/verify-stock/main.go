// verify-stock audits the stock tables: balances never negative, serial units in
// stock matching on-hand quantities, allocation plans summing to their lines, and the
// movement journal agreeing with the plans. It exits non-zero when anything is off.
//
// Usage: go run ./cmd/verify-stock
package main

import (
	"context"
	"log"
	"os"

	"stockout-engine/internal/config"
	"stockout-engine/internal/db"
	"stockout-engine/internal/store/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// Shared with nothing else; keeps two audits from running at once.
const auditLockKey = 7462840

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[CONFIG] %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[CONNECT] %v", err)
	}
	defer pool.Close()
	log.Println("[CONNECT] success")

	conn := acquireLock(ctx, pool)
	defer conn.Release()

	findings, err := postgres.NewStore(pool).Audit(ctx)
	if err != nil {
		conn.Release()
		pool.Close()
		log.Fatalf("[AUDIT] %v", err)
	}

	for _, f := range findings {
		log.Printf("[FAIL] %-16s %s", f.Check, f.Detail)
	}
	if len(findings) > 0 {
		conn.Release()
		pool.Close()
		log.Printf("[DONE] %d inconsistencies found", len(findings))
		os.Exit(1)
	}
	log.Println("[DONE] stock is consistent")
}

func acquireLock(ctx context.Context, pool *pgxpool.Pool) *pgxpool.Conn {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		log.Fatalf("[LOCK] failed to acquire connection for lock: %v", err)
	}

	var locked bool
	err = conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", auditLockKey).Scan(&locked)
	if err != nil {
		log.Fatalf("[LOCK] failed to query advisory lock: %v", err)
	}
	if !locked {
		log.Fatalf("[LOCK] failed: another audit is currently running")
	}

	log.Println("[LOCK] success")
	return conn
}
