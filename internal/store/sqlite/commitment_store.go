package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

var _ domain.CommitmentStore = (*CommitmentStore)(nil)

// CommitmentStore implements domain.CommitmentStore. A Put for an existing
// market replaces the previous record.
type CommitmentStore struct {
	db *sql.DB
}

// Put inserts or replaces the commitment for c.MarketID.
func (s *CommitmentStore) Put(ctx context.Context, c domain.Commitment) error {
	amount, err := toInt64("amount", c.Amount)
	if err != nil {
		return err
	}
	marketID, err := toInt64("market id", c.MarketID)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO commitments (market_id, side, amount, salt, commit_hash, created_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(market_id) DO UPDATE SET
    side = excluded.side,
    amount = excluded.amount,
    salt = excluded.salt,
    commit_hash = excluded.commit_hash,
    created_ms = excluded.created_ms`
	if _, err := s.db.ExecContext(ctx, q, marketID, int(c.Side), amount, c.Salt, c.CommitHash, c.Timestamp); err != nil {
		return fmt.Errorf("sqlite: put commitment %d: %w", c.MarketID, err)
	}
	return nil
}

// Get returns the commitment for marketID or domain.ErrNotFound.
func (s *CommitmentStore) Get(ctx context.Context, marketID uint64) (domain.Commitment, error) {
	id, err := toInt64("market id", marketID)
	if err != nil {
		return domain.Commitment{}, err
	}
	const q = `SELECT market_id, side, amount, salt, commit_hash, created_ms FROM commitments WHERE market_id = ?`
	c, err := scanCommitment(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Commitment{}, fmt.Errorf("sqlite: commitment %d: %w", marketID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Commitment{}, fmt.Errorf("sqlite: get commitment %d: %w", marketID, err)
	}
	return c, nil
}

// Remove deletes the commitment for marketID. Absent keys are not an error.
func (s *CommitmentStore) Remove(ctx context.Context, marketID uint64) error {
	id, err := toInt64("market id", marketID)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM commitments WHERE market_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: remove commitment %d: %w", marketID, err)
	}
	return nil
}

// Clear deletes every commitment.
func (s *CommitmentStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM commitments`); err != nil {
		return fmt.Errorf("sqlite: clear commitments: %w", err)
	}
	return nil
}

// List returns all commitments ordered by market id.
func (s *CommitmentStore) List(ctx context.Context) ([]domain.Commitment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT market_id, side, amount, salt, commit_hash, created_ms FROM commitments ORDER BY market_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list commitments: %w", err)
	}
	defer rows.Close()

	var out []domain.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan commitment: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list commitments rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommitment(r rowScanner) (domain.Commitment, error) {
	var (
		c              domain.Commitment
		id, amount, ms int64
		side           int
	)
	if err := r.Scan(&id, &side, &amount, &c.Salt, &c.CommitHash, &ms); err != nil {
		return domain.Commitment{}, err
	}
	c.MarketID = uint64(id)
	c.Side = domain.Side(side)
	c.Amount = uint64(amount)
	c.Timestamp = ms
	return c, nil
}
