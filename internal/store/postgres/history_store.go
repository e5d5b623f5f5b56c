package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

var _ domain.HistoryStore = (*HistoryStore)(nil)

// HistoryStore implements domain.HistoryStore using PostgreSQL.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a new HistoryStore backed by the given pool.
func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

const historyCols = `id, address, market_id, action, side, amount, payout, outcome, question, tx_hash, created_at`

func bigint(field string, v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("postgres: %s %d out of range: %w", field, v, domain.ErrInvalidInput)
	}
	return int64(v), nil
}

// Record appends an entry.
func (s *HistoryStore) Record(ctx context.Context, e domain.HistoryEntry) error {
	marketID, err := bigint("market id", e.MarketID)
	if err != nil {
		return err
	}
	amount, err := bigint("amount", e.Amount)
	if err != nil {
		return err
	}
	payout, err := bigint("payout", e.Payout)
	if err != nil {
		return err
	}
	if e.Outcome == "" {
		e.Outcome = domain.OutcomePending
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	const query = `
		INSERT INTO history (address, market_id, action, side, amount, payout, outcome, question, tx_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = s.pool.Exec(ctx, query,
		e.Address, marketID, string(e.Action), int16(e.Side), amount, payout,
		string(e.Outcome), e.Question, e.TxHash, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record %s on market %d: %w", e.Action, e.MarketID, err)
	}
	return nil
}

// ListByAddress returns entries for address, newest first.
func (s *HistoryStore) ListByAddress(ctx context.Context, address string, opts domain.ListOpts) ([]domain.HistoryEntry, error) {
	query, args := newListQuery(`SELECT `+historyCols+` FROM history WHERE address = $1`, address).
		build("created_at", opts)
	return s.query(ctx, "list history", query, args...)
}

// LatestReveal returns the newest reveal by address on marketID.
func (s *HistoryStore) LatestReveal(ctx context.Context, address string, marketID uint64) (domain.HistoryEntry, error) {
	return s.latest(ctx, address, marketID, domain.ActionReveal)
}

// LatestClaim returns the newest claim by address on marketID.
func (s *HistoryStore) LatestClaim(ctx context.Context, address string, marketID uint64) (domain.HistoryEntry, error) {
	return s.latest(ctx, address, marketID, domain.ActionClaim)
}

func (s *HistoryStore) latest(ctx context.Context, address string, marketID uint64, action domain.ActionKind) (domain.HistoryEntry, error) {
	id, err := bigint("market id", marketID)
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	const query = `SELECT ` + historyCols + ` FROM history
		WHERE address = $1 AND market_id = $2 AND action = $3
		ORDER BY created_at DESC, id DESC LIMIT 1`
	e, err := scanHistory(s.pool.QueryRow(ctx, query, address, id, string(action)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.HistoryEntry{}, fmt.Errorf("postgres: %s by %s on %d: %w", action, address, marketID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("postgres: latest %s: %w", action, err)
	}
	return e, nil
}

// Settle marks pending reveals on marketID as win or loss.
func (s *HistoryStore) Settle(ctx context.Context, marketID uint64, winner domain.Side) (int64, error) {
	id, err := bigint("market id", marketID)
	if err != nil {
		return 0, err
	}
	const query = `
		UPDATE history
		SET outcome = CASE WHEN side = $1 THEN 'win' ELSE 'loss' END
		WHERE market_id = $2 AND action = $3 AND outcome = 'pending'`
	tag, err := s.pool.Exec(ctx, query, int16(winner), id, string(domain.ActionReveal))
	if err != nil {
		return 0, fmt.Errorf("postgres: settle market %d: %w", marketID, err)
	}
	return tag.RowsAffected(), nil
}

// ListBefore returns up to limit entries older than the cutoff, oldest first.
func (s *HistoryStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.HistoryEntry, error) {
	query := `SELECT ` + historyCols + ` FROM history WHERE created_at < $1 ORDER BY created_at, id`
	args := []any{before}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.query(ctx, "list history before", query, args...)
}

// DeleteBefore removes entries older than the cutoff.
func (s *HistoryStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM history WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete history: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *HistoryStore) query(ctx context.Context, op, query string, args ...any) ([]domain.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan history: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return out, nil
}

func scanHistory(row pgx.Row) (domain.HistoryEntry, error) {
	var (
		e                        domain.HistoryEntry
		marketID, amount, payout int64
		side                     int16
		action, outcome          string
	)
	err := row.Scan(&e.ID, &e.Address, &marketID, &action, &side, &amount, &payout,
		&outcome, &e.Question, &e.TxHash, &e.CreatedAt)
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	e.MarketID = uint64(marketID)
	e.Action = domain.ActionKind(action)
	e.Side = domain.Side(side)
	e.Amount = uint64(amount)
	e.Payout = uint64(payout)
	e.Outcome = domain.Outcome(outcome)
	return e, nil
}
