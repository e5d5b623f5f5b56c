package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultMarketTTL bounds how stale a cached ledger snapshot may be.
const DefaultMarketTTL = 10 * time.Second

// MarketCache implements domain.MarketCache.
//
// Key schema:
//
//	{namespace}:market:{id} - hash with field "data" holding the JSON snapshot
//
// The per-user HasCommitted flag is never cached; it is cleared on Set and
// must be fetched per address.
type MarketCache struct {
	rdb  *redis.Client
	keys keyspace
	ttl  time.Duration
}

// NewMarketCache creates a MarketCache. A non-positive ttl uses
// DefaultMarketTTL.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return &MarketCache{rdb: c.Underlying(), keys: c.keys, ttl: ttl}
}

func (mc *MarketCache) marketKey(id uint64) string {
	return mc.keys.key("market", strconv.FormatUint(id, 10))
}

// Set stores the snapshot with the configured TTL.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	market.HasCommitted = false
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %d: %w", market.ID, err)
	}

	key := mc.marketKey(market.ID)
	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, mc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %d: %w", market.ID, err)
	}
	return nil
}

// Get returns the cached snapshot or domain.ErrNotFound.
func (mc *MarketCache) Get(ctx context.Context, id uint64) (domain.Market, error) {
	data, err := mc.rdb.HGet(ctx, mc.marketKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %d: %w", id, err)
	}

	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %d: %w", id, err)
	}
	return market, nil
}

// Invalidate drops the snapshot, typically after a successful action on it.
func (mc *MarketCache) Invalidate(ctx context.Context, id uint64) error {
	if err := mc.rdb.Del(ctx, mc.marketKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %d: %w", id, err)
	}
	return nil
}

var _ domain.MarketCache = (*MarketCache)(nil)
