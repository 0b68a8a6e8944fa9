// Package narrative turns run status, phase and counts into one-sentence
// health statements and status badges. All functions are pure.
package narrative

import (
	"fmt"
	"strings"

	"github.com/ashita-ai/beacon/internal/model"
)

// Level is the tone of a health statement.
type Level string

const (
	LevelNeutral Level = "neutral"
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Health is a single-sentence statement about a campaign's execution.
type Health struct {
	Statement string `json:"statement"`
	Level     Level  `json:"level"`
}

// Counts are the funnel counts the completed branch explains. Nil means not
// reported; only an explicit zero selects a zero branch.
type Counts struct {
	Orgs     *int64
	Contacts *int64
	Leads    *int64
}

// Funnel stage ids the counts are read from.
const (
	FunnelOrgs     = "orgs_sourced"
	FunnelContacts = "contacts_discovered"
	FunnelLeads    = "leads_promoted"
)

// CountsFrom builds Counts from a lookup keyed by funnel stage id.
func CountsFrom(lookup func(funnelID string) (int64, bool)) Counts {
	get := func(id string) *int64 {
		if n, ok := lookup(id); ok {
			return &n
		}
		return nil
	}
	return Counts{Orgs: get(FunnelOrgs), Contacts: get(FunnelContacts), Leads: get(FunnelLeads)}
}

// Exact-match phase tables. Unmapped phases use the generic fallbacks.
var (
	runningCopy = map[string]string{
		"sourcing":  "The engine is sourcing organizations that match the audience.",
		"discovery": "The engine is discovering contacts at sourced organizations.",
		"promotion": "The engine is promoting qualified contacts to leads.",
		"outreach":  "The engine is sending approved outreach messages.",
	}
	failedCopy = map[string]string{
		"sourcing":  "The run failed while sourcing organizations.",
		"discovery": "The run failed while discovering contacts.",
		"promotion": "The run failed while promoting leads.",
		"outreach":  "The run failed while sending outreach messages.",
	}
)

// Statements for the fixed branches.
const (
	StatementReady           = "The campaign is ready for execution and has not run yet."
	StatementQueued          = "The run is queued and waiting for the engine to pick it up."
	StatementRunningGeneric  = "The engine is processing the current stage."
	StatementNoOrgs          = "The run completed but found no matching organizations."
	StatementNoContacts      = "The run completed: organizations were sourced, but no contacts were found."
	StatementNoLeads         = "The run completed: contacts were found, but none qualified as promotable leads."
	StatementCompleted       = "The run completed successfully."
	StatementFailedGeneric   = "The run failed before completing."
	StatementPartial         = "The run finished with partial results; some stages did not complete."
	statementUnknownTemplate = "The engine reported status %q."
)

// DeriveHealth returns exactly one sentence describing the run. Unrecognized
// statuses are echoed, not interpreted.
func DeriveHealth(runStatus, runPhase string, counts Counts, noRuns bool) Health {
	if noRuns || strings.TrimSpace(runStatus) == "" {
		return Health{Statement: StatementReady, Level: LevelNeutral}
	}

	switch model.ClassifyRunStatus(runStatus) {
	case model.RunStateQueued:
		return Health{Statement: StatementQueued, Level: LevelInfo}
	case model.RunStateRunning:
		if s, ok := runningCopy[runPhase]; ok {
			return Health{Statement: s, Level: LevelInfo}
		}
		return Health{Statement: StatementRunningGeneric, Level: LevelInfo}
	case model.RunStateCompleted:
		return Health{Statement: completedStatement(counts), Level: LevelSuccess}
	case model.RunStateFailed:
		if s, ok := failedCopy[runPhase]; ok {
			return Health{Statement: s, Level: LevelError}
		}
		return Health{Statement: StatementFailedGeneric, Level: LevelError}
	case model.RunStatePartial:
		return Health{Statement: StatementPartial, Level: LevelWarning}
	default:
		return Health{Statement: fmt.Sprintf(statementUnknownTemplate, collapseSpace(runStatus)), Level: LevelWarning}
	}
}

// completedStatement explains the first zero count. A later zero is only
// explained when the stage before it was observed above zero.
func completedStatement(c Counts) string {
	switch {
	case isZero(c.Orgs):
		return StatementNoOrgs
	case isPositive(c.Orgs) && isZero(c.Contacts):
		return StatementNoContacts
	case isPositive(c.Contacts) && isZero(c.Leads):
		return StatementNoLeads
	default:
		return StatementCompleted
	}
}

func isZero(n *int64) bool     { return n != nil && *n == 0 }
func isPositive(n *int64) bool { return n != nil && *n > 0 }

// collapseSpace trims the status and folds inner whitespace runs, so %q
// quotes it on one line. The characters themselves are kept as reported.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
