package mcp

import (
	"context"
	"errors"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/beacon/internal/service/funnel"
	"github.com/ashita-ai/beacon/internal/service/overview"
	"github.com/ashita-ai/beacon/internal/service/runs"
)

func (s *Server) registerTools() {
	campaignArg := mcplib.WithString("campaign_id",
		mcplib.Description("The campaign identifier"),
		mcplib.Required(),
	)

	// beacon_overview: everything about a campaign in one call.
	s.mcpServer.AddTool(
		mcplib.NewTool("beacon_overview",
			mcplib.WithDescription(`Get the execution overview of a campaign.

WHEN TO USE: FIRST, whenever someone asks how a campaign is doing. It
combines governance state, the latest run, run history, the stage funnel
and a one-sentence health statement.

WHAT YOU GET BACK:
- summary: one line you can quote directly
- state / badge: combined lifecycle and execution state
- health: a single sentence explaining the run, including why counts are zero
- stages: the funnel, with counts only for stages the engine reported
- execution_affordances: true only when the campaign is ready and the engine supports queue-first execution`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			campaignArg,
		),
		s.handleOverview,
	)

	// beacon_latest_run: reconciled latest run.
	s.mcpServer.AddTool(
		mcplib.NewTool("beacon_latest_run",
			mcplib.WithDescription(`Get the latest run of a campaign.

The run record projection is preferred; when it is missing the run is
synthesized from the newest lifecycle event. status "no_runs" means the
campaign exists but has never run. The status string is the engine's own;
report it as-is.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			campaignArg,
		),
		s.handleLatestRun,
	)

	// beacon_run_history: past runs paired with their terminal events.
	s.mcpServer.AddTool(
		mcplib.NewTool("beacon_run_history",
			mcplib.WithDescription(`List a campaign's runs, newest first, reconstructed from the event log.

Runs without a terminal event are reported as running. Completed runs carry
their counts; failed runs carry their error messages.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			campaignArg,
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum runs to return"),
				mcplib.Min(1),
				mcplib.Max(runs.MaxHistoryLimit),
				mcplib.DefaultNumber(runs.DefaultHistoryLimit),
			),
		),
		s.handleRunHistory,
	)

	// beacon_funnel: stage funnel of the latest run.
	s.mcpServer.AddTool(
		mcplib.NewTool("beacon_funnel",
			mcplib.WithDescription(`Get the stage funnel of a campaign's latest run.

Stages with observed=false have no count; do not report them as zero.
Conditional counts may still change.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			campaignArg,
		),
		s.handleFunnel,
	)

	// beacon_execution_status: engine contract support.
	s.mcpServer.AddTool(
		mcplib.NewTool("beacon_execution_status",
			mcplib.WithDescription(`Report whether the execution engine supports queue-first execution.

The first call validates the engine contract; later calls return the cached
result. When unsupported, reason explains why.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(true),
		),
		s.handleExecutionStatus,
	)
}

func campaignID(request mcplib.CallToolRequest) (string, *mcplib.CallToolResult) {
	id := strings.TrimSpace(request.GetString("campaign_id", ""))
	if id == "" {
		return "", errorResult("campaign_id is required")
	}
	return id, nil
}

func (s *Server) handleOverview(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, bad := campaignID(request)
	if bad != nil {
		return bad, nil
	}
	ov, err := s.overview.Overview(ctx, id)
	if err != nil {
		if errors.Is(err, overview.ErrCampaignNotFound) {
			return errorResult("campaign not found: " + id), nil
		}
		return canceledResult(ctx), nil
	}
	return jsonResult(compactOverview(ov))
}

func (s *Server) handleLatestRun(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, bad := campaignID(request)
	if bad != nil {
		return bad, nil
	}
	latest, err := s.runs.LatestRun(ctx, id)
	if err != nil {
		return canceledResult(ctx), nil
	}
	if latest.Kind == runs.KindCampaignNotFound {
		return errorResult("campaign not found: " + id), nil
	}
	return jsonResult(overview.LatestRunResponse(latest))
}

func (s *Server) handleRunHistory(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, bad := campaignID(request)
	if bad != nil {
		return bad, nil
	}
	hist, err := s.runs.History(ctx, id, request.GetInt("limit", runs.DefaultHistoryLimit))
	if err != nil {
		return canceledResult(ctx), nil
	}
	return jsonResult(map[string]any{
		"campaign_id": hist.CampaignID,
		"runs":        hist.Runs,
		"total":       len(hist.Runs),
		"degraded":    hist.Degraded,
	})
}

func (s *Server) handleFunnel(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, bad := campaignID(request)
	if bad != nil {
		return bad, nil
	}
	f, err := s.funnel.Funnel(ctx, id)
	if err != nil {
		if errors.Is(err, funnel.ErrCampaignNotFound) {
			return errorResult("campaign not found: " + id), nil
		}
		return canceledResult(ctx), nil
	}
	return jsonResult(f)
}

func (s *Server) handleExecutionStatus(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return jsonResult(s.contract.Validate(ctx))
}
