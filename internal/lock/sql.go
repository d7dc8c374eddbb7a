package lock

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLLock is a Lock backed by a SQLite database, suitable for multiple
// processes sharing one repository (e.g. several CLI invocations
// against the same filesystem storage root). It plays the role
// ocfl-java's H2-backed lock plays for that library: a single row per
// object ID, held with a write transaction for the duration of the
// caller's critical section.
//
// SQLite has no SELECT ... FOR UPDATE; the transaction's INSERT of the
// lock row takes the database's write lock before fn runs, which is
// the closest equivalent to H2ObjectLock's row-level lock and is
// sufficient here because every lock row lives in the same database
// and contention is expected to be short-lived.
type SQLLock struct {
	db *sql.DB
}

// NewSQLLock opens (creating if necessary) a SQLite database at path
// and prepares its lock table.
func NewSQLLock(path string) (*SQLLock, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("lock: open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ocfl_object_lock (
		object_id TEXT PRIMARY KEY,
		locked_at TIMESTAMP
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("lock: create lock table: %w", err)
	}

	return &SQLLock{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLLock) Close() error {
	return s.db.Close()
}

// DoInWriteLock implements Lock. It mirrors H2ObjectLock.doInWriteLock:
// set a busy timeout for this attempt, open a transaction, upsert the
// lock row (which takes the write lock), run fn, then commit to
// release the transaction-level lock. The BEGIN IMMEDIATE issued
// inside the already-open transaction is tolerated when SQLite rejects
// it as nested.
func (s *SQLLock) DoInWriteLock(ctx context.Context, objectID string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", timeout.Milliseconds())); err != nil {
		return fmt.Errorf("lock: set busy timeout: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("lock: begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil && !isAlreadyInTransaction(err) {
		tx.Rollback()
		if isBusy(err) {
			return failedToAcquire(objectID, err)
		}
		return fmt.Errorf("lock: begin immediate: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO ocfl_object_lock (object_id, locked_at) VALUES (?, CURRENT_TIMESTAMP)`, objectID); err != nil {
		tx.Rollback()
		if isBusy(err) {
			return failedToAcquire(objectID, err)
		}
		return fmt.Errorf("lock: create lock row for %q: %w", objectID, err)
	}

	row := tx.QueryRowContext(ctx, `SELECT object_id FROM ocfl_object_lock WHERE object_id = ?`, objectID)
	var got string
	if err := row.Scan(&got); err != nil {
		tx.Rollback()
		return failedToAcquire(objectID, err)
	}

	fnErr := fn(ctx)

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("lock: commit releasing lock for %q: %w", objectID, err)
	}

	return fnErr
}

func isBusy(err error) bool {
	return err != nil && (strings.Contains(strings.ToLower(err.Error()), "busy") ||
		strings.Contains(strings.ToLower(err.Error()), "locked"))
}

func isAlreadyInTransaction(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "within a transaction")
}
