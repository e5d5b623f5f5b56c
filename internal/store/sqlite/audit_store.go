package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

var _ domain.AuditStore = (*AuditStore)(nil)

// AuditStore implements domain.AuditStore.
type AuditStore struct {
	db *sql.DB
}

// Log appends an entry with detail stored as JSON text.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (event, detail, created_ms) VALUES (?, ?, ?)`,
		event, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query := `SELECT id, event, detail, created_ms FROM audit_log WHERE 1=1`
	var args []any
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
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e      domain.AuditEntry
			detail sql.NullString
			ms     int64
		)
		if err := rows.Scan(&e.ID, &e.Event, &detail, &ms); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail: %w", err)
			}
		}
		e.CreatedAt = time.UnixMilli(ms)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries rows: %w", err)
	}
	return out, nil
}

// DeleteBefore prunes entries older than the cutoff.
func (s *AuditStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_ms < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune audit log: %w", err)
	}
	return res.RowsAffected()
}
