package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLLocker coordinates through a shared SQL store. The single-statement
// conditional writes below are what make the at-most-one-owner invariant
// hold across processes; the client never reads then writes.
type SQLLocker struct {
	db *sql.DB
}

// NewSQLLocker creates a locker over the shared database.
func NewSQLLocker(db *sql.DB) *SQLLocker {
	return &SQLLocker{db: db}
}

// Migrate creates the locks table if it does not exist.
func (l *SQLLocker) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS locks (
		name TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("lock migration failed: %w", err)
	}
	return nil
}

// Mode implements Locker.
func (l *SQLLocker) Mode() string { return "sql" }

// Acquire implements Locker. The insert succeeds when no row exists;
// the conflict branch steals the row only when the previous owner's
// lease has expired. Both paths are one atomic statement.
func (l *SQLLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (AcquireResult, error) {
	token := uuid.New().String()
	now := time.Now().UnixMilli()
	expires := now + ttl.Milliseconds()

	res, err := l.db.ExecContext(ctx,
		`INSERT INTO locks(name,owner,expires_at) VALUES (?,?,?)
		 ON CONFLICT(name) DO UPDATE SET owner=excluded.owner, expires_at=excluded.expires_at
		 WHERE locks.expires_at<=?`,
		name, token, expires, now)
	if err != nil {
		return AcquireResult{Reason: ReasonUnavailable}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return AcquireResult{Reason: ReasonUnavailable}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if affected == 0 {
		return AcquireResult{Reason: ReasonBusy}, nil
	}
	return AcquireResult{Granted: true, Token: token}, nil
}

// Extend implements Locker.
func (l *SQLLocker) Extend(ctx context.Context, name, token string, ttl time.Duration) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := l.db.ExecContext(ctx,
		`UPDATE locks SET expires_at=? WHERE name=? AND owner=? AND expires_at>?`,
		now+ttl.Milliseconds(), name, token, now)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Release implements Locker. Deleting only the caller's own row keeps
// a stale owner from releasing a lock it no longer holds.
func (l *SQLLocker) Release(ctx context.Context, name, token string) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM locks WHERE name=? AND owner=?`, name, token)
	return err
}
