package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jmougeot/alarm-server/internal/store"
)

func scanUser(row pgx.Row) (store.User, error) {
	var u store.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

// CreateUser inserts a new user. The unique username constraint is the sole
// source of conflict detection; ErrUsernameTaken is returned on violation.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (store.User, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2)
		 RETURNING id, username, password_hash, created_at`,
		username, passwordHash,
	)
	u, err := scanUser(row)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.User{}, store.ErrUsernameTaken
		}
		return store.User{}, fail("create user", err)
	}
	return u, nil
}

// FindUserByUsername looks up a user by their unique, case-sensitive username.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (store.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = $1`,
		username,
	)
	u, err := scanUser(row)
	if err != nil {
		return store.User{}, wrapNotFound(err)
	}
	return u, nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (store.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = $1`,
		id,
	)
	u, err := scanUser(row)
	if err != nil {
		return store.User{}, wrapNotFound(err)
	}
	return u, nil
}
