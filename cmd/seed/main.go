// seed loads the demo warehouses, items, balances and serial units into the database.
// Existing balances and serial units of the demo items are reset.
//
// Usage: go run ./cmd/seed
package main

import (
	"context"
	"log"

	"stockout-engine/internal/config"
	"stockout-engine/internal/db"
	"stockout-engine/internal/seed"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	d := seed.Demo()
	log.Printf("Loading %d warehouses, %d items, %d balances, %d serial units...",
		len(d.Warehouses), len(d.Items), len(d.Balances), len(d.Serials))
	if err := seed.LoadPostgres(ctx, pool, d); err != nil {
		pool.Close()
		log.Fatalf("Failed to load seed data: %v", err)
	}
	log.Println("Seed data loaded.")
}
