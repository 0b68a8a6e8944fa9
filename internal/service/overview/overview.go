// Package overview composes the campaign overview read model: campaign state,
// badge, health statement, stage tracker and execution support.
package overview

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/beacon/internal/model"
	"github.com/ashita-ai/beacon/internal/service/contract"
	"github.com/ashita-ai/beacon/internal/service/funnel"
	"github.com/ashita-ai/beacon/internal/service/narrative"
	"github.com/ashita-ai/beacon/internal/service/runs"
)

// ErrCampaignNotFound is returned when the governance store has no campaign.
var ErrCampaignNotFound = errors.New("overview: campaign not found")

// Overview is the composed campaign read model.
type Overview struct {
	CampaignID           string                   `json:"campaign_id"`
	CampaignStatus       string                   `json:"campaign_status,omitempty"`
	State                model.CampaignState      `json:"state"`
	Badge                narrative.Badge          `json:"badge"`
	Health               narrative.Health         `json:"health"`
	LatestRun            model.LatestRunResponse  `json:"latest_run"`
	Runs                 []model.RunHistoryRecord `json:"runs"`
	Stages               []funnel.Entry           `json:"stages"`
	ExecutionSupported   bool                     `json:"execution_supported"`
	ExecutionAffordances bool                     `json:"execution_affordances"`
	Degraded             bool                     `json:"degraded,omitempty"`
}

// ContractCache reports the cached contract result without validating.
type ContractCache interface {
	Cached() (contract.Result, bool)
}

// Service builds overviews.
type Service struct {
	runs         *runs.Service
	funnel       *funnel.Service
	contract     ContractCache
	historyLimit int
}

// New creates an overview service. contract may be nil, in which case
// execution is reported unsupported.
func New(runSvc *runs.Service, funnelSvc *funnel.Service, cc ContractCache) *Service {
	return &Service{runs: runSvc, funnel: funnelSvc, contract: cc, historyLimit: runs.DefaultHistoryLimit}
}

// Overview fetches the latest run and the history concurrently, then projects
// the funnel for that latest run.
func (s *Service) Overview(ctx context.Context, campaignID string) (Overview, error) {
	var (
		latest  runs.LatestRun
		history runs.History
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		latest, err = s.runs.LatestRun(gctx, campaignID)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = s.runs.History(gctx, campaignID, s.historyLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	if latest.Kind == runs.KindCampaignNotFound {
		return Overview{}, ErrCampaignNotFound
	}

	f, err := s.funnel.ForRun(ctx, campaignID, latest)
	if err != nil {
		if errors.Is(err, funnel.ErrCampaignNotFound) {
			return Overview{}, ErrCampaignNotFound
		}
		return Overview{}, err
	}

	state := runs.ClassifyCampaign(latest)
	phase := ""
	if latest.Run != nil {
		phase = latest.Run.CurrentPhase()
	}

	out := Overview{
		CampaignID:     campaignID,
		CampaignStatus: latest.Campaign.Status,
		State:          state,
		Badge:          narrative.DeriveBadge(state),
		Health: narrative.DeriveHealth(latest.Status, phase,
			narrative.CountsFrom(f.Counts.Value), latest.Kind != runs.KindFound),
		LatestRun: LatestRunResponse(latest),
		Runs:      history.Runs,
		Stages:    f.Stages,
		Degraded:  latest.Degraded || history.Degraded || f.Degraded,
	}
	if s.contract != nil {
		if res, ok := s.contract.Cached(); ok {
			out.ExecutionSupported = res.ExecutionSupported
		}
	}
	out.ExecutionAffordances = out.ExecutionSupported && state == model.CampaignStateReady
	return out, nil
}

// LatestRunResponse converts a reconciled latest run into its read contract.
func LatestRunResponse(l runs.LatestRun) model.LatestRunResponse {
	return model.LatestRunResponse{Status: l.Status, Run: l.Run, Degraded: l.Degraded}
}
