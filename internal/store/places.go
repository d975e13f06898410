package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func scanPlace(row interface{ Scan(...any) error }) (Place, error) {
	var p Place
	var created, updated int64
	err := row.Scan(&p.ID, &p.Name, &p.Description, &created, &updated)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.CreatedAt = time.UnixMilli(created)
	p.UpdatedAt = time.UnixMilli(updated)
	return p, nil
}

// CreatePlace inserts a new place. Returns ErrDuplicate if a place
// with the same name exists.
func (s *Store) CreatePlace(ctx context.Context, p Place) (Place, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := nowUnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO places(id,name,description,created_at,updated_at) VALUES (?,?,?,?,?)`,
		p.ID, p.Name, p.Description, now, now)
	if isUniqueViolation(err) {
		return Place{}, fmt.Errorf("place %q %w", p.Name, ErrDuplicate)
	}
	if err != nil {
		return Place{}, err
	}
	p.CreatedAt = time.UnixMilli(now)
	p.UpdatedAt = time.UnixMilli(now)
	return p, nil
}

// UpdatePlace updates the description of the place with the given
// name. Returns ErrNotFound if no such place exists.
func (s *Store) UpdatePlace(ctx context.Context, p Place) (Place, error) {
	now := nowUnixMilli()
	res, err := s.db.ExecContext(ctx,
		`UPDATE places SET description=?, updated_at=? WHERE name=?`,
		p.Description, now, p.Name)
	if err != nil {
		return Place{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Place{}, err
	}
	if affected == 0 {
		return Place{}, fmt.Errorf("place %q %w", p.Name, ErrNotFound)
	}
	return s.GetPlace(ctx, p.Name)
}

// GetPlace fetches one place by name.
func (s *Store) GetPlace(ctx context.Context, name string) (Place, error) {
	return scanPlace(s.db.QueryRowContext(ctx,
		`SELECT id,name,description,created_at,updated_at FROM places WHERE name=?`, name))
}

// ListPlaces returns all places ordered by name.
func (s *Store) ListPlaces(ctx context.Context) ([]Place, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,name,description,created_at,updated_at FROM places ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	places := []Place{}
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, err
		}
		places = append(places, p)
	}
	return places, rows.Err()
}
