package main

import (
	"bufio"
	"context"
	"log"
	"os"

	"stockout-engine/internal/adapters/cli"
	"stockout-engine/internal/adapters/repl"
	"stockout-engine/internal/app"
	"stockout-engine/internal/config"
	"stockout-engine/internal/logging"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	// Quiet logger so info lines do not interleave with command output.
	logger, err := logging.New(cfg.Env, "warn")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	stack, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer stack.Close()

	if len(os.Args) > 1 {
		if err := cli.Run(ctx, stack.Service, os.Args[1:], os.Stdin, os.Stdout); err != nil {
			stack.Close()
			log.Fatal(err)
		}
		return
	}
	repl.Run(ctx, stack.Service, bufio.NewReader(os.Stdin), os.Stdout)
}
