// Package model defines the core domain types for Beacon.
//
// Types mirror the event log, the run-record projection and the read
// contracts served over HTTP and MCP. Status strings authored by the external
// execution engine stay opaque here; code only branches on them through the
// classifiers in status.go.
package model

import "time"

// RunRecord is a row of the denormalized run projection maintained by the
// external engine. It may lag the event log or be missing entirely.
type RunRecord struct {
	ID                string     `json:"id"`
	CampaignID        string     `json:"campaign_id"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
	TerminationReason *string    `json:"termination_reason,omitempty"`
	Phase             *string    `json:"phase,omitempty"`
	Stage             *string    `json:"stage,omitempty"`
}

// RunSource names where a reconciled run came from.
type RunSource string

const (
	RunSourceRunRecord RunSource = "run_record"
	RunSourceEventLog  RunSource = "event_log"
)

// Run is the run object returned by the latest-run contract. It is either a
// copy of a run record or synthesized from the newest lifecycle event.
type Run struct {
	ID                string     `json:"id"`
	CampaignID        string     `json:"campaign_id"`
	Status            string     `json:"status"`
	Source            RunSource  `json:"source"`
	Phase             string     `json:"phase,omitempty"`
	Stage             string     `json:"stage,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	TerminationReason string     `json:"termination_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// CurrentPhase returns the phase the run reports itself in, falling back to
// its stage field.
func (r Run) CurrentPhase() string {
	if r.Phase != "" {
		return r.Phase
	}
	return r.Stage
}

// RunFromRecord copies a run record into the read contract shape.
func RunFromRecord(rec RunRecord) Run {
	return Run{
		ID:                rec.ID,
		CampaignID:        rec.CampaignID,
		Status:            rec.Status,
		Source:            RunSourceRunRecord,
		Phase:             deref(rec.Phase),
		Stage:             deref(rec.Stage),
		ErrorMessage:      deref(rec.ErrorMessage),
		TerminationReason: deref(rec.TerminationReason),
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
		StartedAt:         rec.StartedAt,
		CompletedAt:       rec.CompletedAt,
	}
}

// RunHistoryRecord is one entry of a campaign's run history, reconstructed
// purely from the event log.
type RunHistoryRecord struct {
	ID          string           `json:"id"`
	Status      string           `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Counts      map[string]int64 `json:"counts,omitempty"`
	Errors      []string         `json:"errors,omitempty"`
}

// Run-level count keys the engine puts on run.completed payloads.
var RunCountKeys = []string{"orgsCount", "contactsCount", "leadsCount", "emailsSent"}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
