// Package execlog persists the execution audit trail in SQLite.
//
// Attempt records are append-only: written exactly once per fan-out round and
// never updated. Later order state changes pushed by venues land in a separate
// order_updates table, so the audit trail stays immutable while the latest
// update remains queryable.
package execlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dexrelay/internal/domain"

	_ "github.com/glebarez/go-sqlite"
	"github.com/shopspring/decimal"
)

// Store handles persistent storage of execution records in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens the execution log database with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	// No UPDATE path exists for this table anywhere in the codebase.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS execution_attempts (
			id TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			venue TEXT NOT NULL,
			symbol TEXT NOT NULL,
			status TEXT NOT NULL,
			filled TEXT NOT NULL,
			remaining TEXT NOT NULL,
			raw TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			latency_ms INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create attempts table: %w", err)
	}
	if _, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_fingerprint ON execution_attempts (fingerprint);`); err != nil {
		return nil, fmt.Errorf("failed to create attempts index: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS order_updates (
			id INTEGER PRIMARY KEY,
			venue TEXT NOT NULL,
			order_id TEXT NOT NULL,
			status TEXT NOT NULL,
			filled TEXT NOT NULL,
			remaining TEXT NOT NULL,
			ts INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create updates table: %w", err)
	}
	if _, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_updates_order ON order_updates (venue, order_id);`); err != nil {
		return nil, fmt.Errorf("failed to create updates index: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveAttempt appends one attempt record.
func (s *Store) SaveAttempt(ctx context.Context, attempt domain.ExecutionAttempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_attempts
			(id, fingerprint, venue, symbol, status, filled, remaining, raw, error, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID,
		attempt.SignalFingerprint,
		attempt.Venue,
		attempt.Symbol,
		string(attempt.Status),
		attempt.Filled.String(),
		attempt.Remaining.String(),
		attempt.Raw,
		attempt.Error,
		attempt.Latency.Milliseconds(),
		attempt.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

// ListAttempts returns every attempt for a fingerprint, oldest first.
func (s *Store) ListAttempts(ctx context.Context, fingerprint string) ([]domain.ExecutionAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fingerprint, venue, symbol, status, filled, remaining, raw, error, latency_ms, created_at
		 FROM execution_attempts WHERE fingerprint = ? ORDER BY created_at ASC, id ASC`,
		fingerprint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.ExecutionAttempt
	for rows.Next() {
		var a domain.ExecutionAttempt
		var status, filled, remaining string
		var latencyMS, createdAt int64

		if err := rows.Scan(&a.ID, &a.SignalFingerprint, &a.Venue, &a.Symbol, &status,
			&filled, &remaining, &a.Raw, &a.Error, &latencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}

		a.Status = domain.AttemptStatus(status)
		if a.Filled, err = decimal.NewFromString(filled); err != nil {
			return nil, fmt.Errorf("bad filled value %q: %w", filled, err)
		}
		if a.Remaining, err = decimal.NewFromString(remaining); err != nil {
			return nil, fmt.Errorf("bad remaining value %q: %w", remaining, err)
		}
		a.Latency = time.Duration(latencyMS) * time.Millisecond
		a.CreatedAt = time.UnixMilli(createdAt)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return attempts, nil
}

// SaveOrderUpdate appends one pushed order state change.
func (s *Store) SaveOrderUpdate(ctx context.Context, update domain.OrderUpdate) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO order_updates (venue, order_id, status, filled, remaining, ts)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		update.Venue,
		update.OrderID,
		update.Status,
		update.Filled.String(),
		update.Remaining.String(),
		update.Ts.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order update: %w", err)
	}
	return nil
}

// LatestOrderUpdate returns the most recent pushed state for an order, or nil
// when the venue never pushed anything for it.
func (s *Store) LatestOrderUpdate(ctx context.Context, venue, orderID string) (*domain.OrderUpdate, error) {
	var u domain.OrderUpdate
	var filled, remaining string
	var ts int64

	err := s.db.QueryRowContext(ctx,
		`SELECT venue, order_id, status, filled, remaining, ts
		 FROM order_updates WHERE venue = ? AND order_id = ?
		 ORDER BY ts DESC, id DESC LIMIT 1`,
		venue, orderID,
	).Scan(&u.Venue, &u.OrderID, &u.Status, &filled, &remaining, &ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order update: %w", err)
	}

	if u.Filled, err = decimal.NewFromString(filled); err != nil {
		return nil, fmt.Errorf("bad filled value %q: %w", filled, err)
	}
	if u.Remaining, err = decimal.NewFromString(remaining); err != nil {
		return nil, fmt.Errorf("bad remaining value %q: %w", remaining, err)
	}
	u.Ts = time.UnixMilli(ts)
	return &u, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
