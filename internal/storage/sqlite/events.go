package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/beacon/internal/model"
	"github.com/ashita-ai/beacon/internal/storage"
)

const eventColumns = `seq, id, event_type, entity_type, entity_id, payload, created_at`

// AppendEvent writes a single event with a fresh ID and timestamp.
func (s *Store) AppendEvent(ctx context.Context, e model.NewEvent) (model.Event, error) {
	if err := storage.ValidateNewEvent(e); err != nil {
		return model.Event{}, err
	}
	evt := model.Event{
		ID:         uuid.New(),
		EventType:  e.EventType,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Payload:    e.Payload,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	if evt.Payload == nil {
		evt.Payload = map[string]any{}
	}
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: marshal payload: %w", storage.ErrWriteFailed, err)
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO campaign_events (id, event_type, entity_type, entity_id, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		evt.ID.String(), string(evt.EventType), evt.EntityType, evt.EntityID, string(payload), toMillis(evt.CreatedAt),
	)
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: %w", storage.ErrWriteFailed, classify("append event", err))
	}
	if evt.Seq, err = res.LastInsertId(); err != nil {
		return model.Event{}, fmt.Errorf("%w: %w", storage.ErrWriteFailed, classify("append event", err))
	}
	return evt, nil
}

// LatestEventByTypes returns the newest execution event of one of the given
// types for the campaign, breaking created_at ties by insertion order.
func (s *Store) LatestEventByTypes(ctx context.Context, campaignID string, types []model.EventType) (model.Event, bool, error) {
	if len(types) == 0 {
		return model.Event{}, false, nil
	}
	args := []any{model.EntityTypeCampaignRun, campaignID}
	args = appendStrings(args, storage.EventTypeStrings(types))

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+eventColumns+`
		 FROM campaign_events
		 WHERE entity_type = ? AND json_extract(payload, '$.campaignId') = ?
		   AND event_type IN (`+placeholders(len(types))+`)
		 ORDER BY created_at DESC, seq DESC
		 LIMIT 1`, args...,
	)
	if err != nil {
		return model.Event{}, false, classify("latest event by types", err)
	}
	defer func() { _ = rows.Close() }()

	events, err := scanEvents(rows)
	if err != nil {
		return model.Event{}, false, classify("latest event by types", err)
	}
	if len(events) == 0 {
		return model.Event{}, false, nil
	}
	return events[0], true, nil
}

// ListEventsByType returns up to limit events of one type (legacy aliases
// included) for the campaign, newest first.
func (s *Store) ListEventsByType(ctx context.Context, campaignID string, eventType model.EventType, limit int) ([]model.Event, error) {
	limit = storage.ClampLimit(limit, 50)
	types := storage.EventTypeStrings(model.EventTypeAliases(eventType))
	args := []any{model.EntityTypeCampaignRun, campaignID}
	args = appendStrings(args, types)
	args = append(args, limit)

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+eventColumns+`
		 FROM campaign_events
		 WHERE entity_type = ? AND json_extract(payload, '$.campaignId') = ?
		   AND event_type IN (`+placeholders(len(types))+`)
		 ORDER BY created_at DESC, seq DESC
		 LIMIT ?`, args...,
	)
	if err != nil {
		return nil, classify("list events by type", err)
	}
	defer func() { _ = rows.Close() }()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, classify("list events by type", err)
	}
	return events, nil
}

// ListEventsByRunIDs returns events of the given types whose entity_id is one
// of runIDs, newest first.
func (s *Store) ListEventsByRunIDs(ctx context.Context, campaignID string, runIDs []string, types []model.EventType) ([]model.Event, error) {
	if len(runIDs) == 0 || len(types) == 0 {
		return nil, nil
	}
	args := []any{model.EntityTypeCampaignRun, campaignID}
	args = appendStrings(args, runIDs)
	args = appendStrings(args, storage.EventTypeStrings(types))

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+eventColumns+`
		 FROM campaign_events
		 WHERE entity_type = ? AND json_extract(payload, '$.campaignId') = ?
		   AND entity_id IN (`+placeholders(len(runIDs))+`)
		   AND event_type IN (`+placeholders(len(types))+`)
		 ORDER BY created_at DESC, seq DESC`, args...,
	)
	if err != nil {
		return nil, classify("list events by run ids", err)
	}
	defer func() { _ = rows.Close() }()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, classify("list events by run ids", err)
	}
	return events, nil
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var (
			e         model.Event
			id        string
			eventType string
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&e.Seq, &id, &eventType, &e.EntityType, &e.EntityID, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse event id %q: %w", id, err)
		}
		e.ID = parsed
		e.EventType = model.EventType(eventType)
		e.CreatedAt = fromMillis(createdAt)
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of event %s: %w", id, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func appendStrings(args []any, values []string) []any {
	for _, v := range values {
		args = append(args, v)
	}
	return args
}
