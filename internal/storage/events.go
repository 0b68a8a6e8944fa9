package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/beacon/internal/model"
)

const eventColumns = `seq, id, event_type, entity_type, entity_id, payload, created_at`

// AppendEvent writes a single event with a fresh ID and timestamp. Existing
// rows are never touched. Any store failure wraps ErrWriteFailed.
func (db *DB) AppendEvent(ctx context.Context, e model.NewEvent) (model.Event, error) {
	if err := ValidateNewEvent(e); err != nil {
		return model.Event{}, err
	}
	evt := model.Event{
		ID:         uuid.New(),
		EventType:  e.EventType,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Payload:    e.Payload,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	if evt.Payload == nil {
		evt.Payload = map[string]any{}
	}

	pool, err := db.acquirePool(ctx)
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	err = WithRetry(ctx, appendMaxRetries, appendBaseDelay, func() error {
		return pool.QueryRow(ctx,
			`INSERT INTO campaign_events (id, event_type, entity_type, entity_id, payload, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING seq`,
			evt.ID, string(evt.EventType), evt.EntityType, evt.EntityID, evt.Payload, evt.CreatedAt,
		).Scan(&evt.Seq)
	})
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: %w", ErrWriteFailed, Classify("append event", err))
	}
	return evt, nil
}

// LatestEventByTypes returns the newest execution event of one of the given
// types correlated to the campaign through the payload campaignId. Ties on
// created_at fall back to insertion order.
func (db *DB) LatestEventByTypes(ctx context.Context, campaignID string, types []model.EventType) (model.Event, bool, error) {
	if len(types) == 0 {
		return model.Event{}, false, nil
	}
	pool, err := db.acquirePool(ctx)
	if err != nil {
		return model.Event{}, false, err
	}
	rows, err := pool.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM campaign_events
		 WHERE entity_type = $1 AND payload->>'campaignId' = $2 AND event_type = ANY($3)
		 ORDER BY created_at DESC, seq DESC
		 LIMIT 1`,
		model.EntityTypeCampaignRun, campaignID, EventTypeStrings(types),
	)
	if err != nil {
		return model.Event{}, false, Classify("latest event by types", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return model.Event{}, false, Classify("latest event by types", err)
	}
	if len(events) == 0 {
		return model.Event{}, false, nil
	}
	return events[0], true, nil
}

// ListEventsByType returns up to limit events of one type (legacy aliases
// included) for the campaign, newest first.
func (db *DB) ListEventsByType(ctx context.Context, campaignID string, eventType model.EventType, limit int) ([]model.Event, error) {
	limit = ClampLimit(limit, 50)
	pool, err := db.acquirePool(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM campaign_events
		 WHERE entity_type = $1 AND payload->>'campaignId' = $2 AND event_type = ANY($3)
		 ORDER BY created_at DESC, seq DESC
		 LIMIT $4`,
		model.EntityTypeCampaignRun, campaignID, EventTypeStrings(model.EventTypeAliases(eventType)), limit,
	)
	if err != nil {
		return nil, Classify("list events by type", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, Classify("list events by type", err)
	}
	return events, nil
}

// ListEventsByRunIDs returns events of the given types whose entity_id is one
// of runIDs, newest first.
func (db *DB) ListEventsByRunIDs(ctx context.Context, campaignID string, runIDs []string, types []model.EventType) ([]model.Event, error) {
	if len(runIDs) == 0 || len(types) == 0 {
		return nil, nil
	}
	pool, err := db.acquirePool(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM campaign_events
		 WHERE entity_type = $1 AND payload->>'campaignId' = $2
		   AND entity_id = ANY($3) AND event_type = ANY($4)
		 ORDER BY created_at DESC, seq DESC`,
		model.EntityTypeCampaignRun, campaignID, runIDs, EventTypeStrings(types),
	)
	if err != nil {
		return nil, Classify("list events by run ids", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, Classify("list events by run ids", err)
	}
	return events, nil
}

func scanEvents(rows pgx.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(
			&e.Seq, &e.ID, &e.EventType, &e.EntityType, &e.EntityID, &e.Payload, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return events, nil
}
