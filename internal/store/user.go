package store

import (
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/interviewer/internal/model"
)

// CreateUser creates an anonymous profile with the given alias.
func (s *Store) CreateUser(alias string) (*model.User, error) {
	u := &model.User{
		ID:        uuid.NewString(),
		Alias:     alias,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO users (id, alias, created_at) VALUES (?, ?, ?)`,
		u.ID, u.Alias, u.CreatedAt,
	)
	if err != nil {
		slog.Error("failed to create user", "alias", alias, "error", err)
		return nil, err
	}
	slog.Info("created user", "id", u.ID, "alias", u.Alias)
	return u, nil
}

// GetUserByID returns a user by ID, or nil if there is none.
func (s *Store) GetUserByID(id string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(
		`SELECT id, alias, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Alias, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserCount returns the total number of users.
func (s *Store) UserCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
