package domain

import (
	"fmt"
	"strings"
	"time"
)

// Phase is the on-chain lifecycle stage of a market. Phases only move forward.
type Phase uint8

const (
	PhaseCreated Phase = iota
	PhaseCommit
	PhaseReveal
	PhaseResolved
	PhaseDistributed
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseCommit:
		return "commit"
	case PhaseReveal:
		return "reveal"
	case PhaseResolved:
		return "resolved"
	case PhaseDistributed:
		return "distributed"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	return p <= PhaseDistributed
}

// Side is the outcome a prediction is placed on.
type Side uint8

const (
	SideUnset Side = 0
	SideYes   Side = 1
	SideNo    Side = 2
)

func (s Side) String() string {
	switch s {
	case SideYes:
		return "yes"
	case SideNo:
		return "no"
	default:
		return "unset"
	}
}

// Valid reports whether s is Yes or No.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Opposite returns the other side. Unset stays unset.
func (s Side) Opposite() Side {
	switch s {
	case SideYes:
		return SideNo
	case SideNo:
		return SideYes
	default:
		return SideUnset
	}
}

// ParseSide accepts "yes"/"no" (any case) or the wire values "1"/"2".
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "1":
		return SideYes, nil
	case "no", "n", "2":
		return SideNo, nil
	}
	return SideUnset, fmt.Errorf("%w: unknown side %q", ErrInvalidInput, s)
}

// Category groups markets for display.
type Category string

const (
	CategoryCrypto  Category = "crypto"
	CategorySports  Category = "sports"
	CategoryTrends  Category = "trends"
	CategoryWeather Category = "weather"
	CategoryCustom  Category = "custom"
)

// Market mirrors the ledger's view of a single market. The ledger owns it;
// this process only caches it for short periods.
type Market struct {
	ID                uint64   `json:"id"`
	Question          string   `json:"question"`
	Creator           string   `json:"creator,omitempty"`
	Category          Category `json:"category,omitempty"`
	Phase             Phase    `json:"phase"`
	CommitEndTime     int64    `json:"commitEndTime"`
	RevealEndTime     int64    `json:"revealEndTime"`
	YesPool           uint64   `json:"yesPool"`
	NoPool            uint64   `json:"noPool"`
	WinnerSide        Side     `json:"winnerSide"`
	TotalParticipants uint64   `json:"totalParticipants"`
	TotalRevealed     uint64   `json:"totalRevealed"`
	// HasCommitted is per-user and never cached.
	HasCommitted bool      `json:"hasCommitted"`
	FetchedAt    time.Time `json:"fetchedAt"`
}

// CommitDeadline returns the end of the commit window.
func (m Market) CommitDeadline() time.Time {
	return time.Unix(m.CommitEndTime, 0)
}

// RevealDeadline returns the end of the reveal window.
func (m Market) RevealDeadline() time.Time {
	return time.Unix(m.RevealEndTime, 0)
}

// Pools returns the pool total for side followed by the opposing pool.
func (m Market) Pools(side Side) (own, other uint64) {
	if side == SideNo {
		return m.NoPool, m.YesPool
	}
	return m.YesPool, m.NoPool
}

// Resolved reports whether the ledger has picked a winner.
func (m Market) Resolved() bool {
	return m.Phase >= PhaseResolved && m.WinnerSide.Valid()
}
