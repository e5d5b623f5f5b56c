package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

var _ domain.LeaderboardStore = (*LeaderboardStore)(nil)

// LeaderboardStore implements domain.LeaderboardStore.
type LeaderboardStore struct {
	db *sql.DB
}

// AddXP credits xp to address, records the grant, and returns the new total.
func (s *LeaderboardStore) AddXP(ctx context.Context, address string, xp int64, action string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin add xp: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	const upsert = `
INSERT INTO user_stats (address, xp, updated_ms) VALUES (?, ?, ?)
ON CONFLICT(address) DO UPDATE SET xp = xp + excluded.xp, updated_ms = excluded.updated_ms`
	if _, err := tx.ExecContext(ctx, upsert, address, xp, now); err != nil {
		return 0, fmt.Errorf("sqlite: add xp for %s: %w", address, err)
	}

	var total int64
	if err := tx.QueryRowContext(ctx, `SELECT xp FROM user_stats WHERE address = ?`, address).Scan(&total); err != nil {
		return 0, fmt.Errorf("sqlite: read xp for %s: %w", address, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE user_stats SET level = ? WHERE address = ?`,
		domain.LevelFor(total).Number, address); err != nil {
		return 0, fmt.Errorf("sqlite: update level for %s: %w", address, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO xp_events (address, xp, action, created_ms) VALUES (?, ?, ?, ?)`,
		address, xp, action, now); err != nil {
		return 0, fmt.Errorf("sqlite: record xp event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit add xp: %w", err)
	}
	return total, nil
}

// SaveStats upserts the aggregate counters for stats.Address. XP and level
// are owned by AddXP and left untouched.
func (s *LeaderboardStore) SaveStats(ctx context.Context, st domain.UserStats) error {
	staked, err := toInt64("total staked", st.TotalStaked)
	if err != nil {
		return err
	}
	won, err := toInt64("total won", st.TotalWon)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO user_stats (address, total_predictions, wins, losses, total_staked, total_won,
                        current_streak, best_streak, updated_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(address) DO UPDATE SET
    total_predictions = excluded.total_predictions,
    wins = excluded.wins,
    losses = excluded.losses,
    total_staked = excluded.total_staked,
    total_won = excluded.total_won,
    current_streak = excluded.current_streak,
    best_streak = excluded.best_streak,
    updated_ms = excluded.updated_ms`
	_, err = s.db.ExecContext(ctx, q, st.Address, st.TotalPredictions, st.Wins, st.Losses,
		staked, won, st.CurrentStreak, st.BestStreak, msOf(st.UpdatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: save stats for %s: %w", st.Address, err)
	}
	return nil
}

// GetStats returns the stats row for address or domain.ErrNotFound.
func (s *LeaderboardStore) GetStats(ctx context.Context, address string) (domain.UserStats, error) {
	const q = `
SELECT address, xp, level, total_predictions, wins, losses, total_staked, total_won,
       current_streak, best_streak, updated_ms
FROM user_stats WHERE address = ?`
	var (
		st          domain.UserStats
		staked, won int64
		ms          int64
	)
	err := s.db.QueryRowContext(ctx, q, address).Scan(&st.Address, &st.XP, &st.Level,
		&st.TotalPredictions, &st.Wins, &st.Losses, &staked, &won,
		&st.CurrentStreak, &st.BestStreak, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserStats{}, fmt.Errorf("sqlite: stats for %s: %w", address, domain.ErrNotFound)
	}
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("sqlite: get stats for %s: %w", address, err)
	}
	st.TotalStaked = uint64(staked)
	st.TotalWon = uint64(won)
	st.UpdatedAt = time.UnixMilli(ms)
	return st, nil
}

// Top returns up to limit entries ranked by XP.
func (s *LeaderboardStore) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT address, xp, level, wins FROM user_stats ORDER BY xp DESC, address LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: leaderboard: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.Address, &e.XP, &e.Level, &e.Wins); err != nil {
			return nil, fmt.Errorf("sqlite: scan leaderboard: %w", err)
		}
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: leaderboard rows: %w", err)
	}
	return out, nil
}

// Addresses returns every address seen in history or stats.
func (s *LeaderboardStore) Addresses(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT address FROM history UNION SELECT address FROM user_stats ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list addresses: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("sqlite: scan address: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
