package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmougeot/alarm-server/internal/auth"
	"github.com/jmougeot/alarm-server/internal/config"
)

// IsFirstRun returns true when the users table has no rows.
func IsFirstRun(ctx context.Context, db *pgxpool.Pool) (bool, error) {
	var count int
	err := db.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check first run: %w", err)
	}
	return count == 0, nil
}

// RunFirstInit seeds the database with a single owner account on an empty
// installation. Unlike a chat server's bootstrap, there is no server-wide
// config row, default role, or default channel set to create: an alarm
// server's only global state is its set of users, and pages are created by
// users afterward, not seeded.
func RunFirstInit(ctx context.Context, db *pgxpool.Pool, cfg *config.Config) error {
	if cfg.InitOwnerUsername == "" || cfg.InitOwnerPassword == "" {
		return fmt.Errorf("INIT_OWNER_USERNAME and INIT_OWNER_PASSWORD must be set for first-run initialization")
	}

	if err := auth.ValidateUsername(cfg.InitOwnerUsername); err != nil {
		return fmt.Errorf("invalid INIT_OWNER_USERNAME: %w", err)
	}

	hash, err := auth.HashPassword(
		cfg.InitOwnerPassword,
		cfg.Argon2Memory,
		cfg.Argon2Iterations,
		cfg.Argon2Parallelism,
		cfg.Argon2SaltLength,
		cfg.Argon2KeyLength,
	)
	if err != nil {
		return fmt.Errorf("hash owner password: %w", err)
	}

	_, err = db.Exec(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2)`,
		cfg.InitOwnerUsername, hash,
	)
	if err != nil {
		return fmt.Errorf("insert owner user: %w", err)
	}

	return nil
}
