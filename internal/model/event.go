package model

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// EventType is the tag of an execution event emitted by the engine.
type EventType string

const (
	// Run lifecycle events.
	EventRunStarted   EventType = "run.started"
	EventRunRunning   EventType = "run.running"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"

	// Stage events.
	EventStageStarted   EventType = "stage.started"
	EventStageCompleted EventType = "stage.completed"
)

// EntityTypeCampaignRun is the entity type of every execution event.
const EntityTypeCampaignRun = "campaign_run"

// legacyAliases maps older engine event names onto their canonical type.
var legacyAliases = map[EventType]EventType{
	"campaign.run.started":     EventRunStarted,
	"campaign.run.running":     EventRunRunning,
	"campaign.run.completed":   EventRunCompleted,
	"campaign.run.failed":      EventRunFailed,
	"campaign.stage.started":   EventStageStarted,
	"campaign.stage.completed": EventStageCompleted,
}

// CanonicalEventType returns the canonical type for t. Unknown types are
// returned unchanged.
func CanonicalEventType(t EventType) EventType {
	if c, ok := legacyAliases[t]; ok {
		return c
	}
	return t
}

// EventTypeAliases expands canonical types into themselves plus every legacy
// alias, preserving input order. Used to build store query candidate sets.
func EventTypeAliases(types ...EventType) []EventType {
	out := make([]EventType, 0, len(types)*2)
	for _, t := range types {
		out = append(out, t)
		for alias, canonical := range legacyAliases {
			if canonical == t {
				out = append(out, alias)
			}
		}
	}
	return out
}

// Payload keys written by the execution engine.
const (
	PayloadCampaignID        = "campaignId"
	PayloadRunID             = "runId"
	PayloadStage             = "stage"
	PayloadPhase             = "phase"
	PayloadCount             = "count"
	PayloadConfidence        = "confidence"
	PayloadErrorMessage      = "errorMessage"
	PayloadTerminationReason = "terminationReason"
)

// Event is an immutable fact in the append-only campaign event log.
// Source of truth. Never mutated or deleted.
type Event struct {
	Seq        int64          `json:"-"`
	ID         uuid.UUID      `json:"id"`
	EventType  EventType      `json:"event_type"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewEvent is the caller-supplied part of an event. The store assigns ID and
// CreatedAt.
type NewEvent struct {
	EventType  EventType      `json:"event_type"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// PayloadString returns a string payload field, or "" if absent or not a string.
func (e Event) PayloadString(key string) string {
	if v, ok := e.Payload[key].(string); ok {
		return v
	}
	return ""
}

// PayloadInt returns an integral payload field. JSON numbers decode as
// float64; fractional, out-of-range and non-numeric values report ok=false.
func (e Event) PayloadInt(key string) (int64, bool) {
	switch v := e.Payload[key].(type) {
	case float64:
		// -2^63 is exact in float64; 2^63 is the first value past MaxInt64.
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	default:
		return 0, false
	}
}

// RunID returns the run this event belongs to. entity_id is authoritative;
// the payload runId is only consulted when entity_id is empty.
func (e Event) RunID() string {
	if e.EntityID != "" {
		return e.EntityID
	}
	return e.PayloadString(PayloadRunID)
}

// StageName returns the stage carried by the payload, preferring "stage" over
// "phase".
func (e Event) StageName() string {
	if s := e.PayloadString(PayloadStage); s != "" {
		return s
	}
	return e.PayloadString(PayloadPhase)
}
