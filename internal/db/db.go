package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bidverse/bidverse/internal/autobid"
)

// Querier is the subset of pgx shared by a pool and a transaction, so every
// store method works both standalone and inside InTx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store runs queries against a Querier. The zero value is not usable; obtain
// one from NewDB or inside InTx.
type Store struct {
	q Querier
}

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
	Store
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool, Store: Store{q: pool}}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// InTx runs fn inside a transaction. When the store is already
// transactional, pgx turns the nested Begin into a savepoint.
func (s *Store) InTx(ctx context.Context, fn func(autobid.Store) error) error {
	tx, err := s.q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Store{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time check that Store satisfies the executor's port
var _ autobid.Store = (*Store)(nil)
