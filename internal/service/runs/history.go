package runs

import (
	"context"

	"github.com/ashita-ai/beacon/internal/model"
)

// History limits.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// History is a campaign's run history reconstructed from the event log.
type History struct {
	CampaignID string
	Runs       []model.RunHistoryRecord
	Degraded   bool
}

var terminalEvents = model.EventTypeAliases(model.EventRunCompleted, model.EventRunFailed)

// History emits one record per run.started event, paired with its run's
// terminal event. A run started twice yields two records sharing that
// terminal event. Completions are fetched in one batch for the distinct
// started run ids. A run without a terminal event reports running.
func (s *Service) History(ctx context.Context, campaignID string, limit int) (History, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	out := History{CampaignID: campaignID, Runs: []model.RunHistoryRecord{}}

	started, err := s.events.ListEventsByType(ctx, campaignID, model.EventRunStarted, limit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return History{}, ctxErr
		}
		s.logStoreError(ctx, "list_started_events", campaignID, err)
		out.Degraded = true
		return out, nil
	}

	var runIDs []string
	seen := make(map[string]bool, len(started))
	for _, evt := range started {
		id := evt.RunID()
		if id == "" {
			continue
		}
		if !seen[id] {
			seen[id] = true
			runIDs = append(runIDs, id)
		}
		out.Runs = append(out.Runs, model.RunHistoryRecord{
			ID:        id,
			Status:    model.StatusRunning,
			StartedAt: evt.CreatedAt,
		})
	}
	if len(runIDs) == 0 {
		return out, nil
	}

	terminal, err := s.events.ListEventsByRunIDs(ctx, campaignID, runIDs, terminalEvents)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return History{}, ctxErr
		}
		s.logStoreError(ctx, "list_terminal_events", campaignID, err)
		out.Degraded = true
		return out, nil
	}

	// Newest first, so the first terminal event seen per run wins.
	latest := make(map[string]model.Event, len(terminal))
	for _, evt := range terminal {
		id := evt.RunID()
		if _, ok := latest[id]; !ok {
			latest[id] = evt
		}
	}
	for i := range out.Runs {
		evt, ok := latest[out.Runs[i].ID]
		if !ok {
			continue
		}
		applyTerminal(&out.Runs[i], evt)
	}
	return out, nil
}

func applyTerminal(rec *model.RunHistoryRecord, evt model.Event) {
	if status, ok := model.StatusForEventType(evt.EventType); ok {
		rec.Status = status
	}
	completedAt := evt.CreatedAt
	rec.CompletedAt = &completedAt

	for _, key := range model.RunCountKeys {
		if n, ok := evt.PayloadInt(key); ok {
			if rec.Counts == nil {
				rec.Counts = make(map[string]int64, len(model.RunCountKeys))
			}
			rec.Counts[key] = n
		}
	}
	if msg := evt.PayloadString(model.PayloadErrorMessage); msg != "" {
		rec.Errors = append(rec.Errors, msg)
	}
	if list, ok := evt.Payload["errors"].([]any); ok {
		for _, v := range list {
			if msg, ok := v.(string); ok && msg != "" {
				rec.Errors = append(rec.Errors, msg)
			}
		}
	}
}
