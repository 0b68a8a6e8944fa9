package model

import "strings"

// RunState is the closed vocabulary Beacon classifies engine run statuses into.
// Engine strings are rendered verbatim; this type exists only for branching.
type RunState string

const (
	RunStateQueued    RunState = "queued"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
	RunStatePartial   RunState = "partial"
	RunStateUnknown   RunState = "unknown"
)

// Status labels synthesized from lifecycle event types.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusNoRuns    = "no_runs"
)

var runStateAliases = map[string]RunState{
	"queued":              RunStateQueued,
	"pending":             RunStateQueued,
	"started":             RunStateQueued,
	"accepted":            RunStateQueued,
	"enqueued":            RunStateQueued,
	"running":             RunStateRunning,
	"in_progress":         RunStateRunning,
	"processing":          RunStateRunning,
	"active":              RunStateRunning,
	"completed":           RunStateCompleted,
	"complete":            RunStateCompleted,
	"succeeded":           RunStateCompleted,
	"success":             RunStateCompleted,
	"done":                RunStateCompleted,
	"finished":            RunStateCompleted,
	"failed":              RunStateFailed,
	"failure":             RunStateFailed,
	"error":               RunStateFailed,
	"errored":             RunStateFailed,
	"cancelled":           RunStateFailed,
	"canceled":            RunStateFailed,
	"terminated":          RunStateFailed,
	"partial":             RunStatePartial,
	"partially_completed": RunStatePartial,
}

// ClassifyRunStatus maps a raw engine status onto RunState. Matching is
// case-insensitive and exact; anything outside the table is RunStateUnknown.
func ClassifyRunStatus(raw string) RunState {
	if s, ok := runStateAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return RunStateUnknown
}

// Active reports whether the run is still expected to make progress.
func (s RunState) Active() bool {
	return s == RunStateQueued || s == RunStateRunning
}

// Terminal reports whether the run reached an end state.
func (s RunState) Terminal() bool {
	return s == RunStateCompleted || s == RunStateFailed || s == RunStatePartial
}

// StatusForEventType maps a run lifecycle event type onto its status label.
// run.started means accepted into the queue, not running.
func StatusForEventType(t EventType) (string, bool) {
	switch CanonicalEventType(t) {
	case EventRunStarted:
		return StatusQueued, true
	case EventRunRunning:
		return StatusRunning, true
	case EventRunCompleted:
		return StatusCompleted, true
	case EventRunFailed:
		return StatusFailed, true
	default:
		return "", false
	}
}

// CampaignState is the combined lifecycle and execution state of a campaign.
type CampaignState string

const (
	CampaignStateNotFound         CampaignState = "not_found"
	CampaignStateDraft            CampaignState = "draft"
	CampaignStateAwaitingApproval CampaignState = "awaiting_approval"
	CampaignStateRejected         CampaignState = "rejected"
	CampaignStateArchived         CampaignState = "archived"
	CampaignStateReady            CampaignState = "ready"
	CampaignStateQueued           CampaignState = "queued"
	CampaignStateRunning          CampaignState = "running"
	CampaignStateCompleted        CampaignState = "completed"
	CampaignStateFailed           CampaignState = "failed"
	CampaignStatePartial          CampaignState = "partial"
	CampaignStateUnknown          CampaignState = "unknown"
)

// Governance statuses owned by the campaign CRUD collaborator.
const (
	CampaignStatusDraft           = "draft"
	CampaignStatusPendingApproval = "pending_approval"
	CampaignStatusSubmitted       = "submitted"
	CampaignStatusApproved        = "approved"
	CampaignStatusRejected        = "rejected"
	CampaignStatusArchived        = "archived"
)

// CampaignStateForRun lifts a run state into the campaign vocabulary.
func CampaignStateForRun(s RunState) CampaignState {
	switch s {
	case RunStateQueued:
		return CampaignStateQueued
	case RunStateRunning:
		return CampaignStateRunning
	case RunStateCompleted:
		return CampaignStateCompleted
	case RunStateFailed:
		return CampaignStateFailed
	case RunStatePartial:
		return CampaignStatePartial
	default:
		return CampaignStateUnknown
	}
}
