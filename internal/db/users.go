package db

import (
	"context"
	"fmt"

	"github.com/bidverse/bidverse/internal/models"
)

// CreateUser inserts a new user
func (s *Store) CreateUser(ctx context.Context, username, passwordHash, email string) (*models.User, error) {
	user := &models.User{}
	err := s.q.QueryRow(ctx,
		"INSERT INTO users (username, password_hash, email) VALUES ($1, $2, $3) RETURNING id, username, password_hash, email, created_at",
		username, passwordHash, email).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Email, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := s.q.QueryRow(ctx,
		"SELECT id, username, password_hash, email, created_at FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Email, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUser retrieves a user by id
func (s *Store) GetUser(ctx context.Context, id int) (*models.User, error) {
	user := &models.User{}
	err := s.q.QueryRow(ctx,
		"SELECT id, username, password_hash, email, created_at FROM users WHERE id = $1",
		id).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Email, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return user, nil
}
