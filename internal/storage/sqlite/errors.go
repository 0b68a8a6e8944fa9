package sqlite

import (
	"errors"
	"fmt"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/ashita-ai/beacon/internal/storage"
)

// classify maps SQLite driver errors onto the storage taxonomy. Generic SQL
// errors (syntax, missing table or column) and type mismatches are
// malformed queries; everything else, including busy and I/O errors, is
// unavailability.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrUnavailable) || errors.Is(err, storage.ErrMalformedQuery) || errors.Is(err, storage.ErrNotFound) {
		return err
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_ERROR, sqlite3lib.SQLITE_MISMATCH, sqlite3lib.SQLITE_RANGE:
			return fmt.Errorf("storage: %s: %w: %w", op, storage.ErrMalformedQuery, err)
		}
	}
	return fmt.Errorf("storage: %s: %w: %w", op, storage.ErrUnavailable, err)
}
