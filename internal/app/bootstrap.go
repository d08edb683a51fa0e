package app

import (
	"context"
	"fmt"

	"stockout-engine/internal/cache"
	"stockout-engine/internal/config"
	"stockout-engine/internal/core"
	"stockout-engine/internal/db"
	"stockout-engine/internal/seed"
	"stockout-engine/internal/store/memory"
	"stockout-engine/internal/store/postgres"

	"go.uber.org/zap"
)

// Stack is a fully wired ApplicationService plus the resources it holds open.
type Stack struct {
	Service ApplicationService
	closers []func()
}

// Close releases the stack's connections in reverse order of acquisition.
func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Bootstrap wires the service from cfg. Without DATABASE_URL a development stack runs
// on the in-memory store loaded with the demo dataset; production refuses to start.
// Without REDIS_URL balances are read straight from the store.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stack, error) {
	stack := &Stack{}

	var uow core.UnitOfWork
	if cfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("DATABASE_URL environment variable not set")
		}
		logger.Warn("DATABASE_URL not set, using in-memory store with demo data")
		mem := memory.New()
		seed.LoadMemory(mem, seed.Demo())
		uow = mem
	} else {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		stack.closers = append(stack.closers, pool.Close)
		uow = postgres.NewStore(pool)
	}

	var balances core.BalanceReader = uow.Stores().Balances
	var invalidator BalanceInvalidator
	if cfg.RedisURL != "" {
		rdb, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			stack.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		stack.closers = append(stack.closers, func() { _ = rdb.Close() })
		bc := cache.NewBalanceCache(rdb, balances, cfg.BalanceCacheTTL, logger.Named("cache"))
		balances, invalidator = bc, bc
	}

	retry := core.RetryPolicy{MaxAttempts: cfg.CommitMaxAttempts, BaseDelay: cfg.CommitRetryBase}
	coordinator := core.NewCommitCoordinator(uow, retry, logger.Named("commit"))
	reservation := core.NewSerialReservation(uow, cfg.SerialHoldTTL)

	stack.Service = NewAppService(uow, balances, invalidator, coordinator, reservation, logger.Named("app"))
	return stack, nil
}
