// Package sqlite provides the SQLite-backed storage layer used in lite mode:
// local development, single-node deployments and hermetic tests. It
// implements storage.Store with the same ordering and error taxonomy as the
// PostgreSQL backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/ashita-ai/beacon/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store persists the event log, run projection and campaign statuses in SQLite.
type Store struct {
	sqlDB  *sql.DB
	logger *slog.Logger
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (creating if needed) the SQLite database at path. Migrations are
// applied separately through RunMigrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}
	sqlDB, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: ping db: %w: %w", storage.ErrUnavailable, err)
	}
	return NewFromDB(sqlDB, logger), nil
}

// DSN builds the driver connection string for path with the pragmas the
// store relies on.
func DSN(path string) string {
	return "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
}

// NewFromDB wraps an existing handle. Used by tests to inject driver failures.
func NewFromDB(sqlDB *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{sqlDB: sqlDB, logger: logger}
}

// Driver names the backend for health reporting.
func (s *Store) Driver() string { return "sqlite" }

// Ping checks the handle is usable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.sqlDB.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
