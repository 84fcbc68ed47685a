package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/readerd/oauth/storage"
)

// DB is the subset of pgx operations the store needs. It is satisfied by
// *pgxpool.Pool, pgx.Tx, and pgxmock pools, which lets WithTransaction reuse
// every query against a transaction and tests run against a mock.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements storage.Store on PostgreSQL
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a postgres-backed store
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

var _ storage.Store = (*Store)(nil)

// Connect opens a pgx connection pool, verifies it with a ping, and returns a
// store bound to it. Callers own the pool lifetime; close it with pool.Close.
func Connect(ctx context.Context, connString string, logger *slog.Logger) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	return New(pool, logger), pool, nil
}

// WithTransaction runs fn against a transactional store view and commits iff
// fn returns nil. Nested calls open savepoints (pgx.Tx.Begin semantics).
func (s *Store) WithTransaction(ctx context.Context, fn func(storage.Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txStore := &Store{db: tx, logger: s.logger}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// mapErr translates pgx sentinel errors into storage sentinels
func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}
