package domain

import "time"

// ActionKind names a user action recorded in history.
type ActionKind string

const (
	ActionCommit  ActionKind = "commit"
	ActionReveal  ActionKind = "reveal"
	ActionClaim   ActionKind = "claim"
	ActionCreate  ActionKind = "create"
	ActionResolve ActionKind = "resolve"
)

// Outcome of a revealed prediction once the market resolves.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
)

// HistoryEntry is one successful action by an address.
type HistoryEntry struct {
	ID        int64      `json:"id"`
	Address   string     `json:"address"`
	MarketID  uint64     `json:"marketId"`
	Action    ActionKind `json:"action"`
	Side      Side       `json:"side,omitempty"`
	Amount    uint64     `json:"amount,omitempty"`
	Payout    uint64     `json:"payout,omitempty"`
	Outcome   Outcome    `json:"outcome"`
	Question  string     `json:"question,omitempty"`
	TxHash    string     `json:"txHash,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Event is a side-channel notification about a user action. Delivery is best
// effort and never affects the action's outcome.
type Event struct {
	Type     EventType      `json:"type"`
	Address  string         `json:"address"`
	MarketID uint64         `json:"marketId"`
	Metadata map[string]any `json:"metadata,omitempty"`
	At       time.Time      `json:"at"`
}

// EventType identifies side-channel events.
type EventType string

const (
	EventCommit      EventType = "prediction_commit"
	EventReveal      EventType = "prediction_reveal"
	EventWin         EventType = "prediction_win"
	EventPhaseChange EventType = "phase_change"
	EventResolved    EventType = "market_resolved"
)
