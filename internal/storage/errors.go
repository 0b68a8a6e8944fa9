package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrUnavailable means the store is unconfigured, unreachable or timed out.
	// Read paths degrade to a neutral default on it.
	ErrUnavailable = errors.New("storage: unavailable")

	// ErrMalformedQuery means the store rejected the query itself. It is a
	// programmer error and is logged at error level even where reads degrade.
	ErrMalformedQuery = errors.New("storage: malformed query")

	// ErrWriteFailed wraps every append failure. Callers must assume the event
	// was not recorded.
	ErrWriteFailed = errors.New("storage: write failed")

	// ErrInvalidEvent is returned when a mandatory event column is empty.
	ErrInvalidEvent = errors.New("storage: invalid event")
)

// Classify attaches the taxonomy sentinel to a Postgres driver error. Errors
// already carrying a sentinel are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrMalformedQuery) || errors.Is(err, ErrNotFound) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "42"), // syntax error or access rule violation
			strings.HasPrefix(pgErr.Code, "22"): // data exception
			return fmt.Errorf("storage: %s: %w: %w", op, ErrMalformedQuery, err)
		default:
			// Connection exceptions (08), operator intervention (57),
			// insufficient resources (53) and anything else server-side.
			return fmt.Errorf("storage: %s: %w: %w", op, ErrUnavailable, err)
		}
	}
	return fmt.Errorf("storage: %s: %w: %w", op, ErrUnavailable, err)
}

// IsUnavailable reports whether err means the store could not be reached.
func IsUnavailable(err error) bool {
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
