package mcp

import (
	"fmt"
	"strings"

	"github.com/ashita-ai/beacon/internal/model"
	"github.com/ashita-ai/beacon/internal/service/funnel"
	"github.com/ashita-ai/beacon/internal/service/overview"
)

// maxCompactRuns bounds the run history included in an overview result.
const maxCompactRuns = 5

const maxCompactError = 200

// compactOverview returns a minimal representation of an overview for MCP
// responses. Drops timestamps agents don't act on and unobserved counts.
func compactOverview(ov overview.Overview) map[string]any {
	m := map[string]any{
		"campaign_id":           ov.CampaignID,
		"summary":               overviewSummary(ov),
		"state":                 ov.State,
		"badge":                 ov.Badge.Label,
		"health":                ov.Health.Statement,
		"health_level":          ov.Health.Level,
		"latest_status":         ov.LatestRun.Status,
		"execution_supported":   ov.ExecutionSupported,
		"execution_affordances": ov.ExecutionAffordances,
		"stages":                compactStages(ov.Stages),
	}
	if ov.CampaignStatus != "" {
		m["campaign_status"] = ov.CampaignStatus
	}
	if run := ov.LatestRun.Run; run != nil {
		m["latest_run_id"] = run.ID
		if phase := run.CurrentPhase(); phase != "" {
			m["phase"] = phase
		}
		if run.ErrorMessage != "" {
			m["error"] = truncate(run.ErrorMessage, maxCompactError)
		}
	}
	if len(ov.Runs) > 0 {
		m["recent_runs"] = compactRuns(ov.Runs, maxCompactRuns)
	}
	if ov.Degraded {
		m["degraded"] = true
	}
	return m
}

// compactStages keeps stage, state and, only when observed, the count.
func compactStages(entries []funnel.Entry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		st := map[string]any{
			"stage": e.Stage,
			"label": e.Label,
			"state": e.State,
		}
		if e.Count != nil {
			st["count"] = *e.Count
			if e.Confidence == funnel.ConfidenceConditional {
				st["conditional"] = true
			}
		}
		out = append(out, st)
	}
	return out
}

func compactRuns(records []model.RunHistoryRecord, limit int) []map[string]any {
	if len(records) > limit {
		records = records[:limit]
	}
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		m := map[string]any{
			"id":         r.ID,
			"status":     r.Status,
			"started_at": r.StartedAt,
		}
		if len(r.Errors) > 0 {
			m["error"] = truncate(r.Errors[0], maxCompactError)
		}
		out = append(out, m)
	}
	return out
}

// overviewSummary renders one quotable line: badge, health statement and
// observed stage progress.
func overviewSummary(ov overview.Overview) string {
	observed, total := 0, 0
	for _, e := range ov.Stages {
		if e.Additional {
			continue
		}
		total++
		if e.Observed {
			observed++
		}
	}
	summary := fmt.Sprintf("%s: %s", ov.Badge.Label, ov.Health.Statement)
	if observed > 0 {
		summary += fmt.Sprintf(" (%d of %d stages reported)", observed, total)
	}
	return summary
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
