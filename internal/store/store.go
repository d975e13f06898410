// Package store implements the SQLite content store for episodes,
// characters, and places.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a create collides with an existing
	// record. The wrapped message always contains "already exists" so
	// callers matching on the reported text keep working.
	ErrDuplicate = errors.New("already exists")
)

// Store wraps the SQLite database with typed CRUD calls.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database at path with foreign keys on.
// Use ":memory:" for an in-process database.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", path)
	if path == ":memory:" {
		// A named in-memory database keeps every Open isolated while
		// still sharing across pooled connections.
		dsn = fmt.Sprintf("file:mem-%s?mode=memory&cache=shared", uuid.New().String())
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent tool calls.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for collaborators that share the
// database, such as the lock table.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS characters (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS places (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
