package domain

import (
	"context"
	"time"
)

// Bus channels carry live updates to websocket hubs. StreamActions keeps the
// recent successful actions for replay.
const (
	ChannelMarketViews = "market_views"
	ChannelPrices      = "prices"
	ChannelActions     = "actions"
	ChannelPhases      = "phases"

	StreamActions = "stream:actions"
	// StreamStart as a StreamRead lastID reads from the oldest retained entry.
	StreamStart = "0"
)

// MarketCache mirrors ledger market state for a short TTL. A miss or an
// expired entry is ErrNotFound.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id uint64) (Market, error)
	Invalidate(ctx context.Context, id uint64) error
}

// PriceCache holds the latest oracle price per symbol.
type PriceCache interface {
	SetPrice(ctx context.Context, p PriceData) error
	GetPrice(ctx context.Context, symbol string) (PriceData, error)
}

// RateLimiter admits at most limit calls per key within window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager serialises work on a key across goroutines or processes. A
// held key yields ErrLockHeld; the lock lapses after ttl if never released.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one retained stream entry. IDs increase monotonically
// within a stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus is fire-and-forget pub/sub plus capped append-only streams.
// Subscribe's channel closes when ctx ends. StreamRead never blocks.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
