// Package ledger is the durable, transactional record of users, challenge
// plans, active challenges, trades, violations, payouts, and scaling
// steps. It is the only package permitted to mutate challenge state; the
// rule engine (internal/rules) and orchestrator (internal/orchestrator)
// both operate through it.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx, so the query methods
// below can run either standalone (auto-commit) or inside a transaction
// started by WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps the underlying *sql.DB with the connection settings the
// teacher's pkg/db.Database uses: a single connection, since
// modernc.org/sqlite serializes writers anyway and a pool just adds lock
// contention for a WAL-mode single-file database.
type Store struct {
	DB *sql.DB
}

// Open creates the database directory if needed and opens the sqlite file.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ledger: create db dir: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Store{DB: sqlDB}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

// WithTx runs fn inside a single database transaction, committing on
// success and rolling back on error or panic. A challenge transition's
// status update, violation/scaling-step record, and role change must land
// together or not at all (§4.5, §5) — callers pass the *sql.Tx to the
// matching *Tx query methods instead of the auto-commit ones.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger: commit tx: %w", err)
	}
	return nil
}
