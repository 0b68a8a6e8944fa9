package storage

import (
	"context"
	"io/fs"

	"github.com/ashita-ai/beacon/internal/model"
)

// Store is implemented by every backend (PostgreSQL here, SQLite in
// storage/sqlite). Consumers depend on the narrower interfaces they need.
type Store interface {
	AppendEvent(ctx context.Context, e model.NewEvent) (model.Event, error)
	LatestEventByTypes(ctx context.Context, campaignID string, types []model.EventType) (model.Event, bool, error)
	ListEventsByType(ctx context.Context, campaignID string, eventType model.EventType, limit int) ([]model.Event, error)
	ListEventsByRunIDs(ctx context.Context, campaignID string, runIDs []string, types []model.EventType) ([]model.Event, error)

	LatestRunForCampaign(ctx context.Context, campaignID string) (model.RunRecord, bool, error)

	GetCampaign(ctx context.Context, id string) (model.Campaign, error)

	RunMigrations(ctx context.Context, migrationsFS fs.FS) error
	Ping(ctx context.Context) error
	Driver() string
	Close() error
}

// MaxListLimit caps list queries regardless of caller input.
const MaxListLimit = 1000

// ClampLimit bounds limit to [1, MaxListLimit], using def for non-positive values.
func ClampLimit(limit, def int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit
}

// EventTypeStrings converts types for driver parameters.
func EventTypeStrings(types []model.EventType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// ValidateNewEvent enforces the mandatory columns of the event log.
func ValidateNewEvent(e model.NewEvent) error {
	if e.EventType == "" || e.EntityType == "" || e.EntityID == "" {
		return ErrInvalidEvent
	}
	return nil
}
