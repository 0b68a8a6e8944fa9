// Package runs reconstructs a campaign's current and historical execution
// status. The run-record projection is consulted before the event log; the
// event log is the fallback when the projection is empty or failing.
//
// Campaign existence and run existence are orthogonal: a campaign with no
// runs is KindNoRuns, never KindCampaignNotFound.
package runs

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/beacon/internal/model"
	"github.com/ashita-ai/beacon/internal/storage"
	"github.com/ashita-ai/beacon/internal/telemetry"
)

// EventStore is the slice of the event log the service reads.
type EventStore interface {
	LatestEventByTypes(ctx context.Context, campaignID string, types []model.EventType) (model.Event, bool, error)
	ListEventsByType(ctx context.Context, campaignID string, eventType model.EventType, limit int) ([]model.Event, error)
	ListEventsByRunIDs(ctx context.Context, campaignID string, runIDs []string, types []model.EventType) ([]model.Event, error)
}

// RunRecordStore reads the engine's run projection.
type RunRecordStore interface {
	LatestRunForCampaign(ctx context.Context, campaignID string) (model.RunRecord, bool, error)
}

// CampaignStore reads governance status.
type CampaignStore interface {
	GetCampaign(ctx context.Context, id string) (model.Campaign, error)
}

// Kind is the outcome of a latest-run lookup.
type Kind string

const (
	KindFound            Kind = "found"
	KindNoRuns           Kind = "no_runs"
	KindCampaignNotFound Kind = "campaign_not_found"
)

// LatestRun is the reconciled latest run of a campaign.
type LatestRun struct {
	Kind     Kind
	Campaign model.Campaign
	// Status is verbatim from whichever source resolved.
	Status string
	Run    *model.Run
	Source model.RunSource
	// Degraded is set when a store failure forced the result.
	Degraded bool
}

// State classifies the raw status. Only meaningful when Kind is KindFound.
func (l LatestRun) State() model.RunState {
	if l.Kind != KindFound {
		return model.RunStateUnknown
	}
	return model.ClassifyRunStatus(l.Status)
}

// Service reconciles run status across the run projection and event log.
type Service struct {
	events    EventStore
	records   RunRecordStore
	campaigns CampaignStore
	logger    *slog.Logger

	resolutions metric.Int64Counter
}

// New creates a reconciliation service.
func New(events EventStore, records RunRecordStore, campaigns CampaignStore, logger *slog.Logger) *Service {
	return &Service{
		events:      events,
		records:     records,
		campaigns:   campaigns,
		logger:      logger,
		resolutions: telemetry.ReconcileResolutions(),
	}
}

// lifecycleEvents are the event types that carry run status, aliases included.
var lifecycleEvents = model.EventTypeAliases(
	model.EventRunStarted,
	model.EventRunRunning,
	model.EventRunCompleted,
	model.EventRunFailed,
)

// step is one stage of the latest-run strategy. It returns true when it has
// settled the result.
type step struct {
	name string
	run  func(ctx context.Context, s *Service, campaignID string, out *LatestRun) bool
}

// strategy is evaluated in order. The run record always precedes the event log.
var strategy = []step{
	{name: "resolve_campaign", run: resolveCampaign},
	{name: "run_record", run: fromRunRecord},
	{name: "event_log", run: fromEventLog},
}

// LatestRun returns the campaign's most recent run. It never fails on store
// errors; those degrade to KindNoRuns. The error return is reserved for a
// canceled context.
func (s *Service) LatestRun(ctx context.Context, campaignID string) (LatestRun, error) {
	out := LatestRun{Kind: KindNoRuns, Status: model.StatusNoRuns}
	source := "none"
	for _, st := range strategy {
		if st.run(ctx, s, campaignID, &out) {
			source = st.name
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return LatestRun{}, err
	}
	switch {
	case out.Kind == KindCampaignNotFound:
		source = "not_found"
	case out.Degraded:
		source = "degraded"
	}
	if s.resolutions != nil {
		s.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	}
	return out, nil
}

func resolveCampaign(ctx context.Context, s *Service, campaignID string, out *LatestRun) bool {
	c, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err == nil {
		out.Campaign = c
		return false
	}
	if errors.Is(err, storage.ErrNotFound) {
		out.Kind = KindCampaignNotFound
		out.Status = ""
		return true
	}
	s.logStoreError(ctx, "get_campaign", campaignID, err)
	out.Campaign = model.Campaign{ID: campaignID}
	out.Degraded = true
	return true
}

func fromRunRecord(ctx context.Context, s *Service, campaignID string, out *LatestRun) bool {
	rec, found, err := s.records.LatestRunForCampaign(ctx, campaignID)
	if err != nil {
		s.logStoreError(ctx, "latest_run_record", campaignID, err)
		return false
	}
	if !found {
		return false
	}
	run := model.RunFromRecord(rec)
	out.Kind = KindFound
	out.Status = rec.Status
	out.Run = &run
	out.Source = model.RunSourceRunRecord
	return true
}

func fromEventLog(ctx context.Context, s *Service, campaignID string, out *LatestRun) bool {
	evt, found, err := s.events.LatestEventByTypes(ctx, campaignID, lifecycleEvents)
	if err != nil {
		s.logStoreError(ctx, "latest_lifecycle_event", campaignID, err)
		out.Degraded = true
		return false
	}
	if !found {
		return false
	}
	status, ok := model.StatusForEventType(evt.EventType)
	if !ok {
		return false
	}
	run := SynthesizeRun(campaignID, status, evt)
	out.Kind = KindFound
	out.Status = status
	out.Run = &run
	out.Source = model.RunSourceEventLog
	return true
}

// SynthesizeRun builds a run from a lifecycle event when no run record exists.
func SynthesizeRun(campaignID, status string, evt model.Event) model.Run {
	at := evt.CreatedAt
	return model.Run{
		ID:                evt.RunID(),
		CampaignID:        campaignID,
		Status:            status,
		Source:            model.RunSourceEventLog,
		Phase:             evt.PayloadString(model.PayloadPhase),
		Stage:             evt.PayloadString(model.PayloadStage),
		ErrorMessage:      evt.PayloadString(model.PayloadErrorMessage),
		TerminationReason: evt.PayloadString(model.PayloadTerminationReason),
		CreatedAt:         at,
		UpdatedAt:         &at,
	}
}

// logStoreError records a degraded read. Malformed queries are bugs and log at
// error level; unavailability is expected and logs at warn.
func (s *Service) logStoreError(ctx context.Context, op, campaignID string, err error) {
	level := slog.LevelWarn
	if errors.Is(err, storage.ErrMalformedQuery) {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "runs: store read failed",
		"op", op, "campaign_id", campaignID, "error", err)
}
