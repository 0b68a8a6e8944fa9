// Package storage provides the PostgreSQL storage layer for Beacon.
//
// It reads the append-only campaign event log, the run-record projection
// maintained by the external execution engine, and the campaign status owned
// by the governance collaborator. The only write is appending events.
//
// The connection pool is process-wide, small, and created lazily on first
// use so that a missing or unreachable database degrades reads instead of
// failing startup.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultMaxConns bounds the pool. Beacon is a read-heavy, low-QPS surface.
const DefaultMaxConns = 4

// DB is the PostgreSQL implementation of Store.
type DB struct {
	cfg    *pgxpool.Config // nil when no DSN is configured
	logger *slog.Logger

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// New parses the DSN and returns a DB whose pool is created on first use.
// An empty DSN yields a DB that reports ErrUnavailable for every call.
func New(dsn string, maxConns int, logger *slog.Logger) (*DB, error) {
	db := &DB{logger: logger}
	if dsn == "" {
		return db, nil
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse DSN: %w", err)
	}
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}
	cfg.MaxConns = int32(maxConns) //nolint:gosec // bounded by config validation
	db.cfg = cfg
	return db, nil
}

// acquirePool returns the shared pool, creating it on the first call.
func (db *DB) acquirePool(ctx context.Context) (*pgxpool.Pool, error) {
	if db.cfg == nil {
		return nil, fmt.Errorf("storage: database not configured: %w", ErrUnavailable)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.pool != nil {
		return db.pool, nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, db.cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w: %w", ErrUnavailable, err)
	}
	db.logger.Debug("storage: pool created", "max_conns", db.cfg.MaxConns)
	db.pool = pool
	return pool, nil
}

// Driver names the backend for health reporting.
func (db *DB) Driver() string { return "postgres" }

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	pool, err := db.acquirePool(ctx)
	if err != nil {
		return err
	}
	if err := pool.Ping(ctx); err != nil {
		return Classify("ping", err)
	}
	return nil
}

// Close shuts down the pool if it was ever created.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.pool != nil {
		db.pool.Close()
		db.pool = nil
	}
	return nil
}
