package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// txBeginner is satisfied by *pgxpool.Pool and by the in-test fakeAlarmPool in
// alarms_test.go, so a Store can be built in tests without a live database.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithTx opens a transaction, runs fn against it, and commits on success. An
// error from fn (or from Begin/Commit) rolls the transaction back; the
// deferred Rollback after a successful Commit is a no-op, pgx documents this
// explicitly so callers don't need their own commit/rollback bookkeeping.
// Every multi-statement mutation in this package — group creation plus its
// first membership row, a permission upsert that first re-checks page
// ownership — goes through this helper rather than issuing bare pool.Exec calls.
func WithTx(ctx context.Context, pool txBeginner, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
