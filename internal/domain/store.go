package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// CommitmentStore holds pending commitment openings keyed by market id. It is
// the only owner of commitment secrets. Get returns ErrNotFound when absent;
// Remove of an absent key is not an error.
type CommitmentStore interface {
	Put(ctx context.Context, c Commitment) error
	Get(ctx context.Context, marketID uint64) (Commitment, error)
	Remove(ctx context.Context, marketID uint64) error
	Clear(ctx context.Context) error
	List(ctx context.Context) ([]Commitment, error)
}

// HistoryStore persists successful user actions.
type HistoryStore interface {
	Record(ctx context.Context, entry HistoryEntry) error
	ListByAddress(ctx context.Context, address string, opts ListOpts) ([]HistoryEntry, error)
	// LatestReveal returns the most recent reveal by address on a market.
	LatestReveal(ctx context.Context, address string, marketID uint64) (HistoryEntry, error)
	// LatestClaim returns the most recent claim by address on a market.
	LatestClaim(ctx context.Context, address string, marketID uint64) (HistoryEntry, error)
	// Settle marks every reveal on marketID as win or loss.
	Settle(ctx context.Context, marketID uint64, winner Side) (int64, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]HistoryEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// LeaderboardStore persists XP and aggregated user statistics.
type LeaderboardStore interface {
	AddXP(ctx context.Context, address string, xp int64, action string) (int64, error)
	SaveStats(ctx context.Context, stats UserStats) error
	GetStats(ctx context.Context, address string) (UserStats, error)
	Top(ctx context.Context, limit int) ([]LeaderboardEntry, error)
	Addresses(ctx context.Context) ([]string, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of submitted transactions.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
