package service_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/service"
)

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "Ended"},
		{-time.Minute, "Ended"},
		{45 * time.Second, "45s"},
		{12*time.Minute + 30*time.Second, "12m"},
		{3*time.Hour + 5*time.Minute, "3h 5m"},
		{50 * time.Hour, "2d 2h"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, service.FormatRemaining(tt.in), tt.in.String())
	}
}

func TestBuildMarketView(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	base := domain.Market{
		ID:            1,
		CommitEndTime: now.Add(2 * time.Hour).Unix(),
		RevealEndTime: now.Add(3 * time.Hour).Unix(),
		YesPool:       300,
		NoPool:        100,
	}

	t.Run("commit phase hides pools", func(t *testing.T) {
		m := base
		m.Phase = domain.PhaseCommit
		v := service.BuildMarketView(service.ViewInput{Market: m, Now: now})

		assert.True(t, v.PoolHidden)
		assert.Zero(t, v.Market.YesPool)
		assert.Zero(t, v.Market.NoPool)
		assert.True(t, v.CanCommit)
		assert.False(t, v.CanReveal)
		assert.Equal(t, domain.StateNoCommitment, v.State)
		require.NotNil(t, v.TimeRemaining)
		assert.Equal(t, 2*time.Hour, *v.TimeRemaining)
		assert.Equal(t, "2h 0m", v.TimeRemainingLabel)
		assert.Nil(t, v.PayoutPreview)
	})

	t.Run("stored opening allows reveal", func(t *testing.T) {
		m := base
		m.Phase = domain.PhaseReveal
		c := domain.Commitment{MarketID: 1, Side: domain.SideNo, Amount: 100}
		v := service.BuildMarketView(service.ViewInput{Market: m, Commitment: &c, Now: now, FeeBps: 250})

		assert.False(t, v.PoolHidden)
		assert.Equal(t, uint64(300), v.Market.YesPool)
		assert.True(t, v.CanReveal)
		assert.False(t, v.CanCommit)
		assert.Equal(t, domain.StateCommitted, v.State)
		assert.Equal(t, domain.SideNo, v.PositionSide)
		require.NotNil(t, v.PayoutPreview)
		assert.Equal(t, service.EstimatePayout(100, domain.SideNo, domain.SideNo, 100, 300, 250), *v.PayoutPreview)
	})

	t.Run("committed elsewhere blocks commit", func(t *testing.T) {
		m := base
		m.Phase = domain.PhaseCommit
		m.HasCommitted = true
		v := service.BuildMarketView(service.ViewInput{Market: m, Now: now})

		assert.False(t, v.CanCommit)
		assert.Equal(t, domain.StateCommitted, v.State)
		assert.False(t, v.HasCommitment)
	})

	t.Run("resolved market is claimable", func(t *testing.T) {
		m := base
		m.Phase = domain.PhaseResolved
		m.WinnerSide = domain.SideYes
		rev := domain.HistoryEntry{Side: domain.SideYes, Amount: 100}
		v := service.BuildMarketView(service.ViewInput{Market: m, Revealed: &rev, Now: now})

		assert.True(t, v.CanClaim)
		assert.Equal(t, domain.StateRevealed, v.State)
		assert.Nil(t, v.TimeRemaining)
		assert.Equal(t, "Ended", v.TimeRemainingLabel)
		require.NotNil(t, v.PayoutPreview)
		assert.Equal(t, uint64(133), *v.PayoutPreview)
	})

	t.Run("commit phase keeps own side out of the view", func(t *testing.T) {
		m := base
		m.Phase = domain.PhaseCommit
		m.HasCommitted = true
		c := domain.Commitment{MarketID: 1, Side: domain.SideNo, Amount: 100, Salt: "ab"}
		v := service.BuildMarketView(service.ViewInput{Market: m, Commitment: &c, Now: now})

		assert.Equal(t, domain.StateCommitted, v.State)
		assert.True(t, v.HasCommitment)
		assert.False(t, v.PositionSide.Valid())
		assert.Zero(t, v.PositionAmount)

		raw, err := json.Marshal(v)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "positionSide")
		assert.NotContains(t, string(raw), "salt")
	})

	t.Run("claimed market offers no further claim", func(t *testing.T) {
		m := base
		m.Phase = domain.PhaseResolved
		m.WinnerSide = domain.SideYes
		rev := domain.HistoryEntry{Action: domain.ActionReveal, Side: domain.SideYes, Amount: 100}
		claim := domain.HistoryEntry{Action: domain.ActionClaim, Payout: 133}
		v := service.BuildMarketView(service.ViewInput{Market: m, Revealed: &rev, Claimed: &claim, Now: now})

		assert.Equal(t, domain.StateClaimed, v.State)
		assert.False(t, v.CanClaim)
		assert.Equal(t, domain.SideYes, v.PositionSide)
		assert.Equal(t, uint64(100), v.PositionAmount)
	})

	t.Run("deadline passed clamps to zero", func(t *testing.T) {
		m := base
		m.Phase = domain.PhaseReveal
		v := service.BuildMarketView(service.ViewInput{Market: m, Now: now.Add(4 * time.Hour)})

		require.NotNil(t, v.TimeRemaining)
		assert.Zero(t, *v.TimeRemaining)
		assert.Equal(t, "Ended", v.TimeRemainingLabel)
	})
}
