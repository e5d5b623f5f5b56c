package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// LeaderboardService awards XP, ranks users and derives per-user statistics
// from the action history.
type LeaderboardService struct {
	board   domain.LeaderboardStore
	history domain.HistoryStore
	now     func() time.Time
	logger  *slog.Logger
}

// NewLeaderboardService creates a LeaderboardService.
func NewLeaderboardService(board domain.LeaderboardStore, history domain.HistoryStore, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{
		board:   board,
		history: history,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "leaderboard_service")),
	}
}

// AddXP credits xp to address and returns the updated stats.
func (s *LeaderboardService) AddXP(ctx context.Context, address string, xp int64, action string) (domain.UserStats, error) {
	if !domain.IsShortAddress(address) {
		return domain.UserStats{}, fmt.Errorf("leaderboard_service: %w: invalid address %q", domain.ErrInvalidInput, address)
	}
	if xp <= 0 {
		return domain.UserStats{}, fmt.Errorf("leaderboard_service: %w: xp must be positive", domain.ErrInvalidInput)
	}
	if _, err := s.board.AddXP(ctx, address, xp, action); err != nil {
		return domain.UserStats{}, fmt.Errorf("leaderboard_service: add xp: %w", err)
	}
	return s.Stats(ctx, address)
}

// Top returns the leaderboard, highest XP first.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	entries, err := s.board.Top(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard_service: top: %w", err)
	}
	return entries, nil
}

// Stats returns stats for address. Unknown addresses get zeroed stats at
// level 1.
func (s *LeaderboardService) Stats(ctx context.Context, address string) (domain.UserStats, error) {
	st, err := s.board.GetStats(ctx, address)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.UserStats{Address: address, Level: 1}, nil
	}
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("leaderboard_service: stats: %w", err)
	}
	return st, nil
}

// History returns the action history of address, newest first.
func (s *LeaderboardService) History(ctx context.Context, address string, opts domain.ListOpts) ([]domain.HistoryEntry, error) {
	entries, err := s.history.ListByAddress(ctx, address, opts)
	if err != nil {
		return nil, fmt.Errorf("leaderboard_service: history: %w", err)
	}
	return entries, nil
}

// Settle records the winner of a resolved market against every pending
// reveal.
func (s *LeaderboardService) Settle(ctx context.Context, marketID uint64, winner domain.Side) (int64, error) {
	n, err := s.history.Settle(ctx, marketID, winner)
	if err != nil {
		return 0, fmt.Errorf("leaderboard_service: settle market %d: %w", marketID, err)
	}
	return n, nil
}

// Recompute rebuilds the aggregate stats of address from history.
func (s *LeaderboardService) Recompute(ctx context.Context, address string) (domain.UserStats, error) {
	entries, err := s.history.ListByAddress(ctx, address, domain.ListOpts{})
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("leaderboard_service: recompute %s: %w", address, err)
	}
	st := AggregateStats(address, entries)
	st.UpdatedAt = s.now()
	if err := s.board.SaveStats(ctx, st); err != nil {
		return domain.UserStats{}, fmt.Errorf("leaderboard_service: save stats %s: %w", address, err)
	}
	return s.Stats(ctx, address)
}

// RecomputeAll rebuilds stats for every known address and returns how many
// were updated. A failing address does not stop the rest.
func (s *LeaderboardService) RecomputeAll(ctx context.Context) (int, error) {
	addrs, err := s.board.Addresses(ctx)
	if err != nil {
		return 0, fmt.Errorf("leaderboard_service: list addresses: %w", err)
	}
	var (
		n    int
		errs []error
	)
	for _, a := range addrs {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if _, err := s.Recompute(ctx, a); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	s.logger.InfoContext(ctx, "leaderboard recomputed",
		slog.Int("addresses", len(addrs)),
		slog.Int("updated", n),
	)
	return n, errors.Join(errs...)
}

// AggregateStats folds history entries (any order) into stats. Reveals count
// as predictions and stakes; settled reveals drive wins, losses and streaks
// in chronological order; claim payouts add to the total won.
func AggregateStats(address string, entries []domain.HistoryEntry) domain.UserStats {
	st := domain.UserStats{Address: address}

	// Oldest first for streaks.
	ordered := make([]domain.HistoryEntry, len(entries))
	copy(ordered, entries)
	sortByTime(ordered)

	for _, e := range ordered {
		switch e.Action {
		case domain.ActionReveal:
			st.TotalPredictions++
			st.TotalStaked += e.Amount
			switch e.Outcome {
			case domain.OutcomeWin:
				st.Wins++
				st.CurrentStreak++
				if st.CurrentStreak > st.BestStreak {
					st.BestStreak = st.CurrentStreak
				}
			case domain.OutcomeLoss:
				st.Losses++
				st.CurrentStreak = 0
			}
		case domain.ActionClaim:
			st.TotalWon += e.Payout
		}
	}
	return st
}

func sortByTime(entries []domain.HistoryEntry) {
	// Insertion sort keeps equal timestamps in id order and the input is
	// usually already reverse sorted.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && before(entries[j], entries[j-1]); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func before(a, b domain.HistoryEntry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
