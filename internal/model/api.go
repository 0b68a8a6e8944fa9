package model

import (
	"fmt"
	"time"
)

// Field limits for ingested events.
const (
	MaxEventTypeLen  = 128
	MaxEntityTypeLen = 64
	MaxEntityIDLen   = 255
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta is attached to every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail carries a machine-readable code and a user-facing message.
// Messages never include raw store or upstream error text.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeNotConfigured       = "NOT_CONFIGURED"
	ErrCodeUpstreamTimeout     = "UPSTREAM_TIMEOUT"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeInternalError       = "INTERNAL_ERROR"
	ErrCodeRateLimited         = "RATE_LIMITED"
)

// AppendEventRequest is the request body for POST /v1/events.
type AppendEventRequest struct {
	EventType  string         `json:"event_type"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// Validate checks the mandatory event columns. The log has no defaults for
// any of them.
func (r AppendEventRequest) Validate() error {
	switch {
	case r.EventType == "":
		return fmt.Errorf("event_type is required")
	case r.EntityType == "":
		return fmt.Errorf("entity_type is required")
	case r.EntityID == "":
		return fmt.Errorf("entity_id is required")
	case len(r.EventType) > MaxEventTypeLen:
		return fmt.Errorf("event_type exceeds maximum length of %d", MaxEventTypeLen)
	case len(r.EntityType) > MaxEntityTypeLen:
		return fmt.Errorf("entity_type exceeds maximum length of %d", MaxEntityTypeLen)
	case len(r.EntityID) > MaxEntityIDLen:
		return fmt.Errorf("entity_id exceeds maximum length of %d", MaxEntityIDLen)
	}
	return nil
}

// NewEvent converts the request into the store's append input.
func (r AppendEventRequest) NewEvent() NewEvent {
	payload := r.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return NewEvent{
		EventType:  EventType(r.EventType),
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Payload:    payload,
	}
}

// LatestRunResponse is the body of GET /v1/campaigns/{id}/runs/latest.
// Status is verbatim from whichever source resolved; clients render it and
// must not whitelist it.
type LatestRunResponse struct {
	Status   string `json:"status"`
	Run      *Run   `json:"run,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

// RunHistoryResponse is the body of GET /v1/campaigns/{id}/runs.
type RunHistoryResponse struct {
	CampaignID string             `json:"campaign_id"`
	Runs       []RunHistoryRecord `json:"runs"`
	Degraded   bool               `json:"degraded,omitempty"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	Store             string `json:"store"`
	StoreDriver       string `json:"store_driver"`
	ExecutionContract string `json:"execution_contract"`
	Uptime            int64  `json:"uptime_seconds"`
}
