package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

var _ domain.HistoryStore = (*HistoryStore)(nil)

// HistoryStore implements domain.HistoryStore.
type HistoryStore struct {
	db *sql.DB
}

const historyCols = `id, address, market_id, action, side, amount, payout, outcome, question, tx_hash, created_ms`

// Record appends a history entry. A zero CreatedAt is stamped with now and an
// empty Outcome becomes pending.
func (s *HistoryStore) Record(ctx context.Context, e domain.HistoryEntry) error {
	marketID, err := toInt64("market id", e.MarketID)
	if err != nil {
		return err
	}
	amount, err := toInt64("amount", e.Amount)
	if err != nil {
		return err
	}
	payout, err := toInt64("payout", e.Payout)
	if err != nil {
		return err
	}
	if e.Outcome == "" {
		e.Outcome = domain.OutcomePending
	}
	const q = `
INSERT INTO history (address, market_id, action, side, amount, payout, outcome, question, tx_hash, created_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		e.Address, marketID, string(e.Action), int(e.Side), amount, payout,
		string(e.Outcome), e.Question, e.TxHash, msOf(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record %s on market %d: %w", e.Action, e.MarketID, err)
	}
	return nil
}

// ListByAddress returns entries for address, newest first.
func (s *HistoryStore) ListByAddress(ctx context.Context, address string, opts domain.ListOpts) ([]domain.HistoryEntry, error) {
	query := `SELECT ` + historyCols + ` FROM history WHERE address = ?`
	args := []any{address}
	if opts.Since != nil {
		query += ` AND created_ms >= ?`
		args = append(args, opts.Since.UnixMilli())
	}
	if opts.Until != nil {
		query += ` AND created_ms <= ?`
		args = append(args, opts.Until.UnixMilli())
	}
	query += ` ORDER BY created_ms DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Offset)
		}
	}
	return s.query(ctx, "list history", query, args...)
}

// LatestReveal returns the newest reveal entry for (address, marketID) or
// domain.ErrNotFound.
func (s *HistoryStore) LatestReveal(ctx context.Context, address string, marketID uint64) (domain.HistoryEntry, error) {
	return s.latest(ctx, address, marketID, domain.ActionReveal)
}

// LatestClaim returns the newest claim entry for (address, marketID) or
// domain.ErrNotFound.
func (s *HistoryStore) LatestClaim(ctx context.Context, address string, marketID uint64) (domain.HistoryEntry, error) {
	return s.latest(ctx, address, marketID, domain.ActionClaim)
}

func (s *HistoryStore) latest(ctx context.Context, address string, marketID uint64, action domain.ActionKind) (domain.HistoryEntry, error) {
	id, err := toInt64("market id", marketID)
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	const q = `SELECT ` + historyCols + ` FROM history
WHERE address = ? AND market_id = ? AND action = ?
ORDER BY created_ms DESC, id DESC LIMIT 1`
	e, err := scanHistory(s.db.QueryRowContext(ctx, q, address, id, string(action)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HistoryEntry{}, fmt.Errorf("sqlite: %s by %s on %d: %w", action, address, marketID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("sqlite: latest %s: %w", action, err)
	}
	return e, nil
}

// Settle marks pending reveals on marketID as win or loss.
func (s *HistoryStore) Settle(ctx context.Context, marketID uint64, winner domain.Side) (int64, error) {
	id, err := toInt64("market id", marketID)
	if err != nil {
		return 0, err
	}
	const q = `
UPDATE history
SET outcome = CASE WHEN side = ? THEN 'win' ELSE 'loss' END
WHERE market_id = ? AND action = ? AND outcome = 'pending'`
	res, err := s.db.ExecContext(ctx, q, int(winner), id, string(domain.ActionReveal))
	if err != nil {
		return 0, fmt.Errorf("sqlite: settle market %d: %w", marketID, err)
	}
	return res.RowsAffected()
}

// ListBefore returns up to limit entries created before the cutoff, oldest
// first.
func (s *HistoryStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.HistoryEntry, error) {
	query := `SELECT ` + historyCols + ` FROM history WHERE created_ms < ? ORDER BY created_ms, id`
	args := []any{before.UnixMilli()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.query(ctx, "list history before", query, args...)
}

// DeleteBefore removes entries created before the cutoff.
func (s *HistoryStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE created_ms < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete history: %w", err)
	}
	return res.RowsAffected()
}

func (s *HistoryStore) query(ctx context.Context, op, query string, args ...any) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan history: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %s rows: %w", op, err)
	}
	return out, nil
}

func scanHistory(r rowScanner) (domain.HistoryEntry, error) {
	var (
		e                            domain.HistoryEntry
		marketID, amount, payout, ms int64
		side                         int
		action, outcome              string
	)
	err := r.Scan(&e.ID, &e.Address, &marketID, &action, &side, &amount, &payout,
		&outcome, &e.Question, &e.TxHash, &ms)
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	e.MarketID = uint64(marketID)
	e.Action = domain.ActionKind(action)
	e.Side = domain.Side(side)
	e.Amount = uint64(amount)
	e.Payout = uint64(payout)
	e.Outcome = domain.Outcome(outcome)
	e.CreatedAt = time.UnixMilli(ms)
	return e, nil
}
