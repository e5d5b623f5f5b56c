package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PriceCache implements domain.PriceCache. Each symbol is a hash at
// "{namespace}:price:{symbol}" with fields feed, price, conf and ts (unix
// seconds of the oracle publish time).
type PriceCache struct {
	rdb  *redis.Client
	keys keyspace
	ttl  time.Duration
}

// NewPriceCache creates a PriceCache. Entries expire after ttl so a stalled
// oracle poller is visible as a miss rather than a stale price.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), keys: c.keys, ttl: ttl}
}

// SetPrice stores the latest price for p.Symbol.
func (pc *PriceCache) SetPrice(ctx context.Context, p domain.PriceData) error {
	key := pc.keys.key("price", p.Symbol)
	fields := map[string]any{
		"feed":  p.FeedID,
		"price": strconv.FormatFloat(p.Price, 'f', -1, 64),
		"conf":  strconv.FormatFloat(p.Confidence, 'f', -1, 64),
		"ts":    strconv.FormatInt(p.PublishTime.Unix(), 10),
	}
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", p.Symbol, err)
	}
	return nil
}

// GetPrice returns the cached price for symbol or domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, symbol string) (domain.PriceData, error) {
	vals, err := pc.rdb.HGetAll(ctx, pc.keys.key("price", symbol)).Result()
	if err != nil {
		return domain.PriceData{}, fmt.Errorf("redis: get price %s: %w", symbol, err)
	}
	priceStr, ok := vals["price"]
	if !ok {
		return domain.PriceData{}, domain.ErrNotFound
	}

	out := domain.PriceData{Symbol: symbol, FeedID: vals["feed"]}
	if out.Price, err = strconv.ParseFloat(priceStr, 64); err != nil {
		return domain.PriceData{}, fmt.Errorf("redis: parse price %s: %w", symbol, err)
	}
	if c, ok := vals["conf"]; ok {
		if out.Confidence, err = strconv.ParseFloat(c, 64); err != nil {
			return domain.PriceData{}, fmt.Errorf("redis: parse conf %s: %w", symbol, err)
		}
	}
	if ts, ok := vals["ts"]; ok {
		sec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return domain.PriceData{}, fmt.Errorf("redis: parse ts %s: %w", symbol, err)
		}
		out.PublishTime = time.Unix(sec, 0)
	}
	return out, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
