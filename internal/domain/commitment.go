package domain

import "time"

// Commitment is the locally held opening of a committed prediction. It never
// leaves the process until reveal. The JSON layout matches the records the
// browser client kept under the darkpool_commitments key.
type Commitment struct {
	MarketID   uint64 `json:"marketId"`
	Side       Side   `json:"side"`
	Amount     uint64 `json:"amount"`
	Salt       string `json:"salt"`
	CommitHash string `json:"commitHash"`
	// Timestamp is milliseconds since the unix epoch.
	Timestamp int64 `json:"timestamp"`
}

// CreatedAt returns the commit time.
func (c Commitment) CreatedAt() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// ActionState is the per (user, market) progress through commit-reveal.
type ActionState string

const (
	StateNoCommitment ActionState = "no_commitment"
	StateCommitted    ActionState = "committed"
	StateRevealed     ActionState = "revealed"
	StateClaimed      ActionState = "claimed"
)
