// Package cache keeps short-lived copies of warehouse balances in Redis for the
// read-only validate and plan paths. Commits always read the store under lock.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stockout-engine/internal/core"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "stockout:balances:"

// BalanceCache is a read-through core.BalanceReader. Redis failures are logged and the
// read falls through to the store.
type BalanceCache struct {
	rdb  *redis.Client
	next core.BalanceReader
	ttl  time.Duration
	log  *zap.Logger
}

func NewBalanceCache(rdb *redis.Client, next core.BalanceReader, ttl time.Duration, logger *zap.Logger) *BalanceCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceCache{rdb: rdb, next: next, ttl: ttl, log: logger}
}

// NewClient connects to the Redis instance at url (redis://host:port/db).
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}
	return rdb, nil
}

func key(itemID string) string {
	return keyPrefix + itemID
}

func (c *BalanceCache) ListBalances(ctx context.Context, itemID string) ([]core.WarehouseBalance, error) {
	raw, err := c.rdb.Get(ctx, key(itemID)).Bytes()
	switch {
	case err == nil:
		var balances []core.WarehouseBalance
		if err := json.Unmarshal(raw, &balances); err == nil {
			return balances, nil
		}
		c.log.Warn("discarding corrupt balance cache entry", zap.String("item_id", itemID))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("balance cache read failed", zap.String("item_id", itemID), zap.Error(err))
	}

	balances, err := c.next.ListBalances(ctx, itemID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(balances)
	if err != nil {
		return nil, fmt.Errorf("failed to encode balances: %w", err)
	}
	if err := c.rdb.Set(ctx, key(itemID), payload, c.ttl).Err(); err != nil {
		c.log.Warn("balance cache write failed", zap.String("item_id", itemID), zap.Error(err))
	}
	return balances, nil
}

// Invalidate drops the cached balances of the given items.
func (c *BalanceCache) Invalidate(ctx context.Context, itemIDs ...string) {
	if len(itemIDs) == 0 {
		return
	}
	keys := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		keys[i] = key(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("balance cache invalidation failed", zap.Strings("item_ids", itemIDs), zap.Error(err))
	}
}
