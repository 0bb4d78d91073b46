package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lintsai/ai-customer-service/internal/models"
)

// PostgresUserStore keeps user records in the users table.
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

func NewPostgresUserStore(pool *pgxpool.Pool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

func (s *PostgresUserStore) CreateUser(ctx context.Context, user *models.User) error {
	const query = `INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.Contains(pgErr.ConstraintName, "email") {
				return ErrEmailExists
			}
			return ErrUserExists
		}
		return fmt.Errorf("auth: insert user: %w", err)
	}

	return nil
}

// FindByIdentifier looks a user up by username or email.
func (s *PostgresUserStore) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	const query = `SELECT id, username, email, password_hash, created_at, updated_at
FROM users
WHERE LOWER(username) = LOWER($1) OR (email <> '' AND LOWER(email) = LOWER($1))`

	var user models.User
	err := s.pool.QueryRow(ctx, query, strings.TrimSpace(identifier)).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("auth: query user: %w", err)
	}

	return &user, nil
}

func (s *PostgresUserStore) TouchUpdatedAt(ctx context.Context, userID string, at time.Time) error {
	if _, err := s.pool.Exec(ctx, `UPDATE users SET updated_at = $2 WHERE id = $1`, userID, at); err != nil {
		return fmt.Errorf("auth: touch user: %w", err)
	}
	return nil
}
