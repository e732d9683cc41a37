package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/jmougeot/alarm-server/internal/store"
)

// Store is the pgx/v5-backed implementation of store.Store. Multi-statement
// mutations (group creation plus its first membership row, a permission
// upsert that re-checks ownership first) run inside a transaction via
// WithTx; single-statement mutations rely on Postgres's own per-statement
// atomicity. Authorization reads that gate a mutation (resolveVerdict in
// internal/gateway/dispatcher.go) are separate calls made immediately
// beforehand, not wrapped in the mutation's transaction — see
// internal/store.Store's docstring for why that is the intended shape.
type Store struct {
	pool dbPool
	log  zerolog.Logger
}

// NewStore wraps an already-connected pool. Callers are expected to have run
// Connect and Migrate first.
func NewStore(pool *pgxpool.Pool, logger zerolog.Logger) *Store {
	return &Store{pool: pool, log: logger.With().Str("component", "store").Logger()}
}

var _ store.Store = (*Store)(nil)

// queryRower is satisfied by both *pgxpool.Pool and pgx.Tx, letting scan helpers
// run against either a pooled connection or an in-flight transaction.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// dbPool is the subset of *pgxpool.Pool the Store depends on: running
// queries directly and opening transactions via WithTx. Tests in this
// package satisfy it with an in-memory fake instead of a live database,
// the same way internal/gateway and internal/api fake store.Store.
type dbPool interface {
	queryRower
	txBeginner
}

func wrapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func fail(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
