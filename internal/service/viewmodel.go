package service

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// MarketView is everything a client needs to render one market for one user.
type MarketView struct {
	Market domain.Market `json:"market"`
	// PoolHidden is set while pools are meaningless (before Reveal); the
	// pool fields in Market are zeroed.
	PoolHidden bool `json:"poolHidden"`
	// TimeRemaining counts down to the active window's deadline. It is nil
	// once the market is past Reveal.
	TimeRemaining      *time.Duration     `json:"timeRemaining,omitempty"`
	TimeRemainingLabel string             `json:"timeRemainingLabel"`
	State              domain.ActionState `json:"state"`
	HasCommitment      bool               `json:"hasCommitment"`
	// PositionSide and PositionAmount stay empty while the market is in its
	// commit phase, so views published to the bus never leak a hidden side.
	PositionSide   domain.Side `json:"positionSide,omitempty"`
	PositionAmount uint64      `json:"positionAmount,omitempty"`
	CanCommit      bool        `json:"canCommit"`
	CanReveal      bool        `json:"canReveal"`
	CanClaim       bool        `json:"canClaim"`
	PayoutPreview  *uint64     `json:"payoutPreview,omitempty"`
}

// ViewInput collects what BuildMarketView derives from.
type ViewInput struct {
	Market domain.Market
	// Commitment is the locally stored opening, if any.
	Commitment *domain.Commitment
	// Revealed is the user's latest reveal from history, if any.
	Revealed *domain.HistoryEntry
	// Claimed is the user's claim from history, if any.
	Claimed *domain.HistoryEntry
	Now     time.Time
	FeeBps  uint64
}

// BuildMarketView derives UI state from a ledger snapshot and local data. It
// is pure.
func BuildMarketView(in ViewInput) MarketView {
	m := in.Market
	v := MarketView{
		PoolHidden:    m.Phase < domain.PhaseReveal,
		HasCommitment: in.Commitment != nil,
		CanReveal:     m.Phase == domain.PhaseReveal && in.Commitment != nil,
		CanClaim:      m.Phase >= domain.PhaseResolved && in.Claimed == nil,
	}
	v.CanCommit = m.Phase == domain.PhaseCommit && in.Commitment == nil && !m.HasCommitted

	var deadline int64
	switch m.Phase {
	case domain.PhaseCommit:
		deadline = m.CommitEndTime
	case domain.PhaseReveal:
		deadline = m.RevealEndTime
	}
	if deadline > 0 {
		left := time.Unix(deadline, 0).Sub(in.Now)
		if left < 0 {
			left = 0
		}
		v.TimeRemaining = &left
		v.TimeRemainingLabel = FormatRemaining(left)
	} else {
		v.TimeRemainingLabel = "Ended"
	}

	var side domain.Side
	var amount uint64
	switch {
	case in.Claimed != nil:
		v.State = domain.StateClaimed
		side, amount = in.Claimed.Side, in.Claimed.Amount
		if in.Revealed != nil {
			side, amount = in.Revealed.Side, in.Revealed.Amount
		}
	case in.Commitment != nil:
		v.State = domain.StateCommitted
		side, amount = in.Commitment.Side, in.Commitment.Amount
	case in.Revealed != nil:
		v.State = domain.StateRevealed
		side, amount = in.Revealed.Side, in.Revealed.Amount
	case m.HasCommitted:
		v.State = domain.StateCommitted
	default:
		v.State = domain.StateNoCommitment
	}
	if !v.PoolHidden {
		v.PositionSide, v.PositionAmount = side, amount
	}

	if !v.PoolHidden && v.PositionSide.Valid() && v.PositionAmount > 0 {
		p := PreviewPayout(m, v.PositionSide, v.PositionAmount, in.FeeBps)
		v.PayoutPreview = &p
	}

	if v.PoolHidden {
		m.YesPool, m.NoPool = 0, 0
	}
	v.Market = m
	return v
}

// FormatRemaining renders a countdown the way the market cards show it.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "Ended"
	}
	d = d.Truncate(time.Second)
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	mins := int(d % time.Hour / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	case mins > 0:
		return fmt.Sprintf("%dm", mins)
	default:
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
}
