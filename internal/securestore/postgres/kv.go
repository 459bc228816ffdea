// Package postgres contains a PostgreSQL implementation of the secure
// key-value store, for synced/hosted deployments of the vault.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medvault/medvault/internal/errs"
)

// PgxPool is a minimal abstraction over a Postgres connection pool.
// It is implemented by *pgxpool.Pool and pgxmock.PgxPoolIface.
type PgxPool interface {
	// Exec executes a SQL command and returns the command tag.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// QueryRow executes a query expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// Close shuts down the pool and frees resources.
	Close()
}

// DB wraps pgxpool.Pool to satisfy the store constructor and allow testing.
type DB struct{ Pool PgxPool }

// New creates a new connection pool for the given DSN.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
	}
	return &DB{Pool: pool}, nil
}

// Close closes the underlying pool.
func (db *DB) Close() { db.Pool.Close() }

// KV implements securestore.Store on a vault_kv table.
type KV struct{ db *DB }

// NewKV constructs the Postgres-backed store.
func NewKV(db *DB) *KV { return &KV{db: db} }

// Get returns the value under key.
func (s *KV) Get(ctx context.Context, key string) (string, error) {
	const q = `SELECT v FROM vault_kv WHERE k=$1`
	var v string
	if err := s.db.Pool.QueryRow(ctx, q, key).Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errs.ErrNotFound
		}
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
	}
	return v, nil
}

// Set upserts the value under key.
func (s *KV) Set(ctx context.Context, key, value string) error {
	const q = `
INSERT INTO vault_kv (k, v, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (k) DO UPDATE SET v=EXCLUDED.v, updated_at=now()`
	if _, err := s.db.Pool.Exec(ctx, q, key, value); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
	}
	return nil
}

// Delete removes the value under key; absence is not an error.
func (s *KV) Delete(ctx context.Context, key string) error {
	const q = `DELETE FROM vault_kv WHERE k=$1`
	if _, err := s.db.Pool.Exec(ctx, q, key); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
	}
	return nil
}
