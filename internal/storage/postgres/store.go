// Package postgres provides the PostgreSQL-backed implementation of the
// storage.Storage interface.
//
// It uses pgx v5 with connection pooling (pgxpool). Every mutating
// operation runs inside a single transaction; the reorder engine
// additionally locks the moved issue's row with SELECT ... FOR UPDATE.
// The backend assumes read-committed isolation or stricter — sibling rows
// shifted during a reorder are protected by the transaction's write-write
// conflict detection rather than explicit locks.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskboard/taskboard/internal/storage"
)

// pool defines the interface for database operations.
// This interface is satisfied by *pgxpool.Pool and can be mocked for testing.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
	Ping(ctx context.Context) error
}

// Store implements storage.Storage over PostgreSQL.
type Store struct {
	conn pool
	opts *options
}

var _ storage.Storage = (*Store)(nil)

// New creates a Store with the given options. Call Connect before use.
func New(opts ...Option) *Store {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Store{opts: o}
}

// Connect establishes the connection pool and verifies connectivity.
func (s *Store) Connect(ctx context.Context) error {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}

	if err := s.opts.validate(); err != nil {
		return fmt.Errorf("invalid postgres configuration: %w", err)
	}

	config, err := pgxpool.ParseConfig(s.opts.connectionString())
	if err != nil {
		return fmt.Errorf("failed to parse postgres connection string: %w", err)
	}
	if s.opts.poolMaxConnections != nil {
		config.MaxConns = *s.opts.poolMaxConnections
	}
	if s.opts.poolMinConnections != nil {
		config.MinConns = *s.opts.poolMinConnections
	}
	if s.opts.poolMaxConnectionLifetime != nil {
		config.MaxConnLifetime = *s.opts.poolMaxConnectionLifetime
	}

	conn, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create postgres connection pool: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	s.conn = conn
	return nil
}

// Close releases the connection pool.
func (s *Store) Close(_ context.Context) error {
	if s.conn == nil {
		return nil
	}
	s.conn.Close()
	s.conn = nil
	return nil
}

// Init creates the schema if it does not exist. All statements run in one
// transaction and are idempotent, safe to run at every startup.
func (s *Store) Init(ctx context.Context) error {
	if s.conn == nil {
		return errNotConnected
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return wrapTransactionError("init", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // No-op if committed

	for _, stmt := range createStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute create statement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapTransactionError("init", err)
	}
	return nil
}
