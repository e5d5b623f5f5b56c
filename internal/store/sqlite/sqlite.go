// Package sqlite implements the commitment, history, leaderboard and audit
// stores on a single embedded SQLite database (pure Go, no cgo). It is the
// default backend for a single-wallet client.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/darkpool/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS commitments (
    market_id   INTEGER PRIMARY KEY,
    side        INTEGER NOT NULL,
    amount      INTEGER NOT NULL,
    salt        TEXT    NOT NULL,
    commit_hash TEXT    NOT NULL,
    created_ms  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS history (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    address    TEXT    NOT NULL,
    market_id  INTEGER NOT NULL,
    action     TEXT    NOT NULL,
    side       INTEGER NOT NULL DEFAULT 0,
    amount     INTEGER NOT NULL DEFAULT 0,
    payout     INTEGER NOT NULL DEFAULT 0,
    outcome    TEXT    NOT NULL DEFAULT 'pending',
    question   TEXT    NOT NULL DEFAULT '',
    tx_hash    TEXT    NOT NULL DEFAULT '',
    created_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS user_stats (
    address           TEXT PRIMARY KEY,
    xp                INTEGER NOT NULL DEFAULT 0,
    level             INTEGER NOT NULL DEFAULT 1,
    total_predictions INTEGER NOT NULL DEFAULT 0,
    wins              INTEGER NOT NULL DEFAULT 0,
    losses            INTEGER NOT NULL DEFAULT 0,
    total_staked      INTEGER NOT NULL DEFAULT 0,
    total_won         INTEGER NOT NULL DEFAULT 0,
    current_streak    INTEGER NOT NULL DEFAULT 0,
    best_streak       INTEGER NOT NULL DEFAULT 0,
    updated_ms        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS xp_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    address    TEXT    NOT NULL,
    xp         INTEGER NOT NULL,
    action     TEXT    NOT NULL,
    created_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    event      TEXT    NOT NULL,
    detail     TEXT,
    created_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_address ON history(address, created_ms DESC);
CREATE INDEX IF NOT EXISTS idx_history_market  ON history(market_id, action);
CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_ms);
CREATE INDEX IF NOT EXISTS idx_user_stats_xp   ON user_stats(xp DESC);
`

// DB wraps a SQLite handle. One DB serves every store role.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// SQLite is single-writer; one connection also keeps :memory: coherent.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the underlying handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Commitments returns the CommitmentStore view of the database.
func (d *DB) Commitments() *CommitmentStore { return &CommitmentStore{db: d.db} }

// History returns the HistoryStore view of the database.
func (d *DB) History() *HistoryStore { return &HistoryStore{db: d.db} }

// Leaderboard returns the LeaderboardStore view of the database.
func (d *DB) Leaderboard() *LeaderboardStore { return &LeaderboardStore{db: d.db} }

// Audit returns the AuditStore view of the database.
func (d *DB) Audit() *AuditStore { return &AuditStore{db: d.db} }

// toInt64 rejects values SQLite's signed INTEGER cannot hold.
func toInt64(field string, v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("sqlite: %s %d out of range: %w", field, v, domain.ErrInvalidInput)
	}
	return int64(v), nil
}

func msOf(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}
