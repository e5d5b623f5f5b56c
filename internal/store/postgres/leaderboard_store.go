package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

var _ domain.LeaderboardStore = (*LeaderboardStore)(nil)

// LeaderboardStore implements domain.LeaderboardStore using PostgreSQL.
type LeaderboardStore struct {
	pool *pgxpool.Pool
}

// NewLeaderboardStore creates a new LeaderboardStore backed by the given pool.
func NewLeaderboardStore(pool *pgxpool.Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
}

// AddXP credits xp, records the grant and returns the new total, all in one
// transaction so concurrent grants never lose an update.
func (s *LeaderboardStore) AddXP(ctx context.Context, address string, xp int64, action string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin add xp: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsert = `
		INSERT INTO user_stats (address, xp, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (address) DO UPDATE SET
			xp = user_stats.xp + EXCLUDED.xp,
			updated_at = NOW()
		RETURNING xp`
	var total int64
	if err := tx.QueryRow(ctx, upsert, address, xp).Scan(&total); err != nil {
		return 0, fmt.Errorf("postgres: add xp for %s: %w", address, err)
	}
	if _, err := tx.Exec(ctx, `UPDATE user_stats SET level = $1 WHERE address = $2`,
		domain.LevelFor(total).Number, address); err != nil {
		return 0, fmt.Errorf("postgres: update level for %s: %w", address, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO xp_events (address, xp, action) VALUES ($1, $2, $3)`,
		address, xp, action); err != nil {
		return 0, fmt.Errorf("postgres: record xp event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit add xp: %w", err)
	}
	return total, nil
}

// SaveStats upserts the aggregate counters. XP and level stay with AddXP.
func (s *LeaderboardStore) SaveStats(ctx context.Context, st domain.UserStats) error {
	staked, err := bigint("total staked", st.TotalStaked)
	if err != nil {
		return err
	}
	won, err := bigint("total won", st.TotalWon)
	if err != nil {
		return err
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	const query = `
		INSERT INTO user_stats (address, total_predictions, wins, losses, total_staked, total_won,
		                        current_streak, best_streak, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (address) DO UPDATE SET
			total_predictions = EXCLUDED.total_predictions,
			wins              = EXCLUDED.wins,
			losses            = EXCLUDED.losses,
			total_staked      = EXCLUDED.total_staked,
			total_won         = EXCLUDED.total_won,
			current_streak    = EXCLUDED.current_streak,
			best_streak       = EXCLUDED.best_streak,
			updated_at        = EXCLUDED.updated_at`
	_, err = s.pool.Exec(ctx, query, st.Address, st.TotalPredictions, st.Wins, st.Losses,
		staked, won, st.CurrentStreak, st.BestStreak, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save stats for %s: %w", st.Address, err)
	}
	return nil
}

// GetStats returns the stats row for address or domain.ErrNotFound.
func (s *LeaderboardStore) GetStats(ctx context.Context, address string) (domain.UserStats, error) {
	const query = `
		SELECT address, xp, level, total_predictions, wins, losses, total_staked, total_won,
		       current_streak, best_streak, updated_at
		FROM user_stats WHERE address = $1`
	var (
		st          domain.UserStats
		staked, won int64
	)
	err := s.pool.QueryRow(ctx, query, address).Scan(&st.Address, &st.XP, &st.Level,
		&st.TotalPredictions, &st.Wins, &st.Losses, &staked, &won,
		&st.CurrentStreak, &st.BestStreak, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserStats{}, fmt.Errorf("postgres: stats for %s: %w", address, domain.ErrNotFound)
	}
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("postgres: get stats for %s: %w", address, err)
	}
	st.TotalStaked = uint64(staked)
	st.TotalWon = uint64(won)
	return st, nil
}

// Top returns up to limit entries ranked by XP.
func (s *LeaderboardStore) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT RANK() OVER (ORDER BY xp DESC), address, xp, level, wins
		FROM user_stats ORDER BY xp DESC, address LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: leaderboard: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaderboardEntry
	for rows.Next() {
		var (
			e    domain.LeaderboardEntry
			rank int64
		)
		if err := rows.Scan(&rank, &e.Address, &e.XP, &e.Level, &e.Wins); err != nil {
			return nil, fmt.Errorf("postgres: scan leaderboard: %w", err)
		}
		e.Rank = int(rank)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: leaderboard rows: %w", err)
	}
	return out, nil
}

// Addresses returns every address seen in history or stats.
func (s *LeaderboardStore) Addresses(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address FROM history UNION SELECT address FROM user_stats ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list addresses: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("postgres: scan address: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
