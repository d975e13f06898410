package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func scanEpisode(row interface{ Scan(...any) error }) (Episode, error) {
	var e Episode
	var created int64
	err := row.Scan(&e.ID, &e.Title, &e.Content, &e.Summary, &created)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.CreatedAt = time.UnixMilli(created)
	return e, nil
}

// CreateEpisode inserts a new episode. Returns ErrDuplicate if the id
// is already taken.
func (s *Store) CreateEpisode(ctx context.Context, e Episode) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO episodes(id,title,content,summary,created_at) VALUES (?,?,?,?,?)`,
		e.ID, e.Title, e.Content, e.Summary, created.UnixMilli())
	if isUniqueViolation(err) {
		return fmt.Errorf("episode %q %w", e.ID, ErrDuplicate)
	}
	return err
}

// GetEpisode fetches one episode by id.
func (s *Store) GetEpisode(ctx context.Context, id string) (Episode, error) {
	return scanEpisode(s.db.QueryRowContext(ctx,
		`SELECT id,title,content,summary,created_at FROM episodes WHERE id=?`, id))
}

// ListEpisodes returns episodes newest-first, capped at limit.
// A non-positive limit returns everything.
func (s *Store) ListEpisodes(ctx context.Context, limit int) ([]Episode, error) {
	query := `SELECT id,title,content,summary,created_at FROM episodes ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	episodes := []Episode{}
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, e)
	}
	return episodes, rows.Err()
}
