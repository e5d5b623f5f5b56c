// Package memory provides in-process implementations of the cache, lock,
// rate limiter and signal bus interfaces for single-process deployments
// without Redis.
package memory

import (
	"context"
	"strconv"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

const cleanupInterval = time.Minute

// MarketCache implements domain.MarketCache on go-cache.
type MarketCache struct {
	c *cache.Cache
}

// NewMarketCache returns a cache whose entries live for ttl.
func NewMarketCache(ttl time.Duration) *MarketCache {
	return &MarketCache{c: cache.New(ttl, cleanupInterval)}
}

func marketKey(id uint64) string { return strconv.FormatUint(id, 10) }

// Set stores market without its per-user HasCommitted flag.
func (m *MarketCache) Set(_ context.Context, market domain.Market) error {
	market.HasCommitted = false
	m.c.SetDefault(marketKey(market.ID), market)
	return nil
}

// Get returns the cached snapshot or domain.ErrNotFound.
func (m *MarketCache) Get(_ context.Context, id uint64) (domain.Market, error) {
	v, ok := m.c.Get(marketKey(id))
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return v.(domain.Market), nil
}

// Invalidate drops the snapshot for id.
func (m *MarketCache) Invalidate(_ context.Context, id uint64) error {
	m.c.Delete(marketKey(id))
	return nil
}

// PriceCache implements domain.PriceCache on go-cache.
type PriceCache struct {
	c *cache.Cache
}

// NewPriceCache returns a cache whose entries live for ttl.
func NewPriceCache(ttl time.Duration) *PriceCache {
	return &PriceCache{c: cache.New(ttl, cleanupInterval)}
}

// SetPrice stores p under its symbol.
func (p *PriceCache) SetPrice(_ context.Context, price domain.PriceData) error {
	p.c.SetDefault(price.Symbol, price)
	return nil
}

// GetPrice returns the cached price or domain.ErrNotFound.
func (p *PriceCache) GetPrice(_ context.Context, symbol string) (domain.PriceData, error) {
	v, ok := p.c.Get(symbol)
	if !ok {
		return domain.PriceData{}, domain.ErrNotFound
	}
	return v.(domain.PriceData), nil
}

var (
	_ domain.MarketCache = (*MarketCache)(nil)
	_ domain.PriceCache  = (*PriceCache)(nil)
)
