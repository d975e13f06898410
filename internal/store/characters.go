package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func scanCharacter(row interface{ Scan(...any) error }) (Character, error) {
	var c Character
	var created, updated int64
	err := row.Scan(&c.ID, &c.Name, &c.Description, &created, &updated)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.CreatedAt = time.UnixMilli(created)
	c.UpdatedAt = time.UnixMilli(updated)
	return c, nil
}

// CreateCharacter inserts a new character. Returns ErrDuplicate if a
// character with the same name exists.
func (s *Store) CreateCharacter(ctx context.Context, c Character) (Character, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := nowUnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO characters(id,name,description,created_at,updated_at) VALUES (?,?,?,?,?)`,
		c.ID, c.Name, c.Description, now, now)
	if isUniqueViolation(err) {
		return Character{}, fmt.Errorf("character %q %w", c.Name, ErrDuplicate)
	}
	if err != nil {
		return Character{}, err
	}
	c.CreatedAt = time.UnixMilli(now)
	c.UpdatedAt = time.UnixMilli(now)
	return c, nil
}

// UpdateCharacter updates the description of the character with the
// given name. Returns ErrNotFound if no such character exists.
func (s *Store) UpdateCharacter(ctx context.Context, c Character) (Character, error) {
	now := nowUnixMilli()
	res, err := s.db.ExecContext(ctx,
		`UPDATE characters SET description=?, updated_at=? WHERE name=?`,
		c.Description, now, c.Name)
	if err != nil {
		return Character{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Character{}, err
	}
	if affected == 0 {
		return Character{}, fmt.Errorf("character %q %w", c.Name, ErrNotFound)
	}
	return s.GetCharacter(ctx, c.Name)
}

// GetCharacter fetches one character by name.
func (s *Store) GetCharacter(ctx context.Context, name string) (Character, error) {
	return scanCharacter(s.db.QueryRowContext(ctx,
		`SELECT id,name,description,created_at,updated_at FROM characters WHERE name=?`, name))
}

// ListCharacters returns all characters ordered by name.
func (s *Store) ListCharacters(ctx context.Context) ([]Character, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,name,description,created_at,updated_at FROM characters ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	characters := []Character{}
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		characters = append(characters, c)
	}
	return characters, rows.Err()
}
