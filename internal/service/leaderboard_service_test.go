package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/store/sqlite"
)

func newLeaderboard(t *testing.T) (*LeaderboardService, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLeaderboardService(db.Leaderboard(), db.History(), discardLogger()), db
}

func TestLeaderboard_AddXPValidates(t *testing.T) {
	svc, _ := newLeaderboard(t)
	ctx := context.Background()

	_, err := svc.AddXP(ctx, "alice", 10, "commit")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.AddXP(ctx, testAddr, 0, "commit")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	st, err := svc.AddXP(ctx, testAddr, 120, "commit")
	require.NoError(t, err)
	assert.Equal(t, int64(120), st.XP)
	assert.Equal(t, 2, st.Level)

	top, err := svc.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, testAddr, top[0].Address)
}

func TestLeaderboard_StatsDefaultsForUnknown(t *testing.T) {
	svc, _ := newLeaderboard(t)
	st, err := svc.Stats(context.Background(), "0x1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Level)
	assert.Zero(t, st.XP)
}

func TestAggregateStats(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	at := func(h int) time.Time { return t0.Add(time.Duration(h) * time.Hour) }

	// Newest first, as the store returns them.
	entries := []domain.HistoryEntry{
		{ID: 7, Action: domain.ActionClaim, Payout: 150, CreatedAt: at(6)},
		{ID: 6, Action: domain.ActionReveal, Amount: 100, Outcome: domain.OutcomePending, CreatedAt: at(5)},
		{ID: 5, Action: domain.ActionReveal, Amount: 100, Outcome: domain.OutcomeWin, CreatedAt: at(4)},
		{ID: 4, Action: domain.ActionReveal, Amount: 100, Outcome: domain.OutcomeWin, CreatedAt: at(3)},
		{ID: 3, Action: domain.ActionReveal, Amount: 100, Outcome: domain.OutcomeLoss, CreatedAt: at(2)},
		{ID: 2, Action: domain.ActionReveal, Amount: 100, Outcome: domain.OutcomeWin, CreatedAt: at(1)},
		{ID: 1, Action: domain.ActionCommit, Amount: 100, CreatedAt: at(0)},
	}
	st := AggregateStats(testAddr, entries)

	assert.Equal(t, 5, st.TotalPredictions)
	assert.Equal(t, uint64(500), st.TotalStaked)
	assert.Equal(t, 3, st.Wins)
	assert.Equal(t, 1, st.Losses)
	assert.Equal(t, 2, st.CurrentStreak)
	assert.Equal(t, 2, st.BestStreak)
	assert.Equal(t, uint64(150), st.TotalWon)
	assert.Equal(t, int64(7), entries[0].ID, "input order untouched")
}

func TestLeaderboard_SettleAndRecompute(t *testing.T) {
	ctx := context.Background()
	svc, db := newLeaderboard(t)
	h := db.History()

	require.NoError(t, h.Record(ctx, domain.HistoryEntry{Address: testAddr, MarketID: 1, Action: domain.ActionReveal, Side: domain.SideYes, Amount: 100}))
	require.NoError(t, h.Record(ctx, domain.HistoryEntry{Address: testAddr, MarketID: 2, Action: domain.ActionReveal, Side: domain.SideNo, Amount: 50}))
	_, err := svc.AddXP(ctx, testAddr, domain.XPReveal, "reveal")
	require.NoError(t, err)

	n, err := svc.Settle(ctx, 1, domain.SideYes)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = svc.Settle(ctx, 2, domain.SideYes)
	require.NoError(t, err)

	updated, err := svc.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	st, err := svc.Stats(ctx, testAddr)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalPredictions)
	assert.Equal(t, 1, st.Wins)
	assert.Equal(t, 1, st.Losses)
	assert.Equal(t, domain.XPReveal, st.XP, "recompute keeps xp")

	hist, err := svc.History(ctx, testAddr, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}
