package funnel

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ashita-ai/beacon/internal/model"
	"github.com/ashita-ai/beacon/internal/service/runs"
	"github.com/ashita-ai/beacon/internal/stages"
	"github.com/ashita-ai/beacon/internal/storage"
)

// ErrCampaignNotFound is returned when the campaign itself does not exist.
var ErrCampaignNotFound = errors.New("funnel: campaign not found")

// ConditionalTooltip explains a conditional count.
const ConditionalTooltip = "Reported by the engine as conditional; the final count may differ."

// RunResolver reconciles the latest run.
type RunResolver interface {
	LatestRun(ctx context.Context, campaignID string) (runs.LatestRun, error)
}

// EventStore reads stage events for a run.
type EventStore interface {
	ListEventsByRunIDs(ctx context.Context, campaignID string, runIDs []string, types []model.EventType) ([]model.Event, error)
}

// Entry is one stage of the funnel read contract. Placeholders have
// Observed=false and no count.
type Entry struct {
	Stage      string     `json:"stage"`
	Label      string     `json:"label"`
	Sublabel   string     `json:"sublabel,omitempty"`
	CountLabel string     `json:"count_label,omitempty"`
	Count      *int64     `json:"count,omitempty"`
	Confidence Confidence `json:"confidence,omitempty"`
	Observed   bool       `json:"observed"`
	Tooltip    string     `json:"tooltip,omitempty"`
	State      StageState `json:"state"`
	Additional bool       `json:"additional,omitempty"`
}

// Funnel is the funnel of a campaign's latest run.
type Funnel struct {
	CampaignID string  `json:"campaign_id"`
	RunID      string  `json:"run_id,omitempty"`
	Stages     []Entry `json:"stages"`
	Degraded   bool    `json:"degraded,omitempty"`

	// Latest is the run the funnel was projected for.
	Latest runs.LatestRun `json:"-"`
	// Counts holds the observed counts by funnel stage id.
	Counts Counts `json:"-"`
}

// Service builds funnels.
type Service struct {
	runs   RunResolver
	events EventStore
	stages stages.Config
	logger *slog.Logger
}

// New creates a funnel service.
func New(resolver RunResolver, events EventStore, cfg stages.Config, logger *slog.Logger) *Service {
	return &Service{runs: resolver, events: events, stages: cfg, logger: logger}
}

var stageCompleted = model.EventTypeAliases(model.EventStageCompleted)

// Funnel reconciles the latest run and projects its stage.completed counts.
// Store errors degrade to an all-placeholder funnel.
func (s *Service) Funnel(ctx context.Context, campaignID string) (Funnel, error) {
	latest, err := s.runs.LatestRun(ctx, campaignID)
	if err != nil {
		return Funnel{}, err
	}
	return s.ForRun(ctx, campaignID, latest)
}

// ForRun builds the funnel for an already reconciled latest run.
func (s *Service) ForRun(ctx context.Context, campaignID string, latest runs.LatestRun) (Funnel, error) {
	if latest.Kind == runs.KindCampaignNotFound {
		return Funnel{}, ErrCampaignNotFound
	}
	out := Funnel{CampaignID: campaignID, Latest: latest, Counts: Counts{}, Degraded: latest.Degraded}

	phase := ""
	if latest.Kind == runs.KindFound && latest.Run != nil && latest.Run.ID != "" {
		out.RunID = latest.Run.ID
		phase = latest.Run.CurrentPhase()

		events, err := s.events.ListEventsByRunIDs(ctx, campaignID, []string{latest.Run.ID}, stageCompleted)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Funnel{}, ctxErr
			}
			level := slog.LevelWarn
			if errors.Is(err, storage.ErrMalformedQuery) {
				level = slog.LevelError
			}
			s.logger.Log(ctx, level, "funnel: store read failed",
				"op", "list_stage_events", "campaign_id", campaignID, "run_id", latest.Run.ID, "error", err)
			out.Degraded = true
		} else {
			out.Counts = CountsFromEvents(events)
		}
	}

	views := Project(s.stages, latest.State(), phase, out.Counts)
	out.Stages = make([]Entry, 0, len(views))
	for _, v := range views {
		out.Stages = append(out.Stages, entryFor(v))
	}
	return out, nil
}

// CountsFromEvents extracts counts from stage.completed events ordered newest
// first. The newest event per stage wins; events without a stage or an
// integral count are ignored.
func CountsFromEvents(events []model.Event) Counts {
	counts := Counts{}
	for _, evt := range events {
		stage := evt.StageName()
		if stage == "" {
			continue
		}
		if _, seen := counts[stage]; seen {
			continue
		}
		n, ok := evt.PayloadInt(model.PayloadCount)
		if !ok {
			continue
		}
		conf := ConfidenceObserved
		if evt.PayloadString(model.PayloadConfidence) == string(ConfidenceConditional) {
			conf = ConfidenceConditional
		}
		counts[stage] = Count{Value: n, Confidence: conf}
	}
	return counts
}

func entryFor(v StageView) Entry {
	key := v.FunnelStageID
	if key == "" {
		key = v.ID
	}
	e := Entry{
		Stage:      key,
		Label:      v.Label,
		Sublabel:   v.Sublabel,
		CountLabel: v.CountLabel,
		State:      v.State,
		Additional: v.Additional,
	}
	if v.Count != nil {
		n := v.Count.Value
		e.Count = &n
		e.Observed = true
		e.Confidence = v.Count.Confidence
		if v.Count.Confidence == ConfidenceConditional {
			e.Tooltip = ConditionalTooltip
		}
	}
	return e
}

// Value returns the observed count for a funnel stage id.
func (c Counts) Value(funnelID string) (int64, bool) {
	v, ok := c[funnelID]
	return v.Value, ok
}
