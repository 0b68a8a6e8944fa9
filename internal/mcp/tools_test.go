package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/beacon/internal/engine"
	"github.com/ashita-ai/beacon/internal/model"
	"github.com/ashita-ai/beacon/internal/service/contract"
	"github.com/ashita-ai/beacon/internal/service/funnel"
	"github.com/ashita-ai/beacon/internal/service/overview"
	"github.com/ashita-ai/beacon/internal/service/runs"
	"github.com/ashita-ai/beacon/internal/stages"
	"github.com/ashita-ai/beacon/internal/testutil"
)

// newTestServer builds an MCP server over a fresh SQLite store. engineURL may
// be empty to leave the engine unconfigured.
func newTestServer(t *testing.T, engineURL string) (*Server, *testutil.LiteStore) {
	t.Helper()
	lite := testutil.NewLiteStore(t)
	logger := slog.New(slog.DiscardHandler)

	validator := contract.New(engine.New(engineURL, time.Second), time.Second, logger)
	runSvc := runs.New(lite.Store, lite.Store, lite.Store, logger)
	funnelSvc := funnel.New(runSvc, lite.Store, stages.Default(), logger)

	srv := New(Deps{
		Runs:     runSvc,
		Funnel:   funnelSvc,
		Overview: overview.New(runSvc, funnelSvc, validator),
		Contract: validator,
		Stages:   stages.Default(),
	}, logger, "test")
	return srv, lite
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func TestToolsRequireCampaignID(t *testing.T) {
	srv, _ := newTestServer(t, "")
	ctx := context.Background()

	handlers := map[string]func(context.Context, mcplib.CallToolRequest) (*mcplib.CallToolResult, error){
		"beacon_overview":    srv.handleOverview,
		"beacon_latest_run":  srv.handleLatestRun,
		"beacon_run_history": srv.handleRunHistory,
		"beacon_funnel":      srv.handleFunnel,
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			result, err := h(ctx, toolRequest(name, map[string]any{"campaign_id": "  "}))
			require.NoError(t, err, "handler should not return go error, only tool error")
			require.True(t, result.IsError)
			assert.Contains(t, parseToolText(t, result), "campaign_id is required")
		})
	}
}

func TestToolsCampaignNotFound(t *testing.T) {
	srv, _ := newTestServer(t, "")
	ctx := context.Background()
	args := map[string]any{"campaign_id": "ghost"}

	for name, h := range map[string]func(context.Context, mcplib.CallToolRequest) (*mcplib.CallToolResult, error){
		"beacon_overview":   srv.handleOverview,
		"beacon_latest_run": srv.handleLatestRun,
		"beacon_funnel":     srv.handleFunnel,
	} {
		result, err := h(ctx, toolRequest(name, args))
		require.NoError(t, err)
		require.True(t, result.IsError, name)
		assert.Contains(t, parseToolText(t, result), "campaign not found", name)
	}
}

func TestHandleLatestRun(t *testing.T) {
	srv, lite := newTestServer(t, "")
	lite.SeedCampaign(t, "c1", model.CampaignStatusApproved)
	lite.AppendRunEvent(t, "c1", "run-1", model.EventRunRunning, map[string]any{"phase": "discovery"})

	result, err := srv.handleLatestRun(context.Background(), toolRequest("beacon_latest_run", map[string]any{"campaign_id": "c1"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp model.LatestRunResponse
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.Equal(t, model.StatusRunning, resp.Status)
	require.NotNil(t, resp.Run)
	assert.Equal(t, "discovery", resp.Run.Phase)
}

func TestHandleRunHistory(t *testing.T) {
	srv, lite := newTestServer(t, "")
	lite.SeedCampaign(t, "c1", model.CampaignStatusApproved)
	lite.AppendRunEvent(t, "c1", "run-1", model.EventRunStarted, nil)
	lite.AppendRunEvent(t, "c1", "run-1", model.EventRunCompleted, map[string]any{"orgsCount": 7})
	lite.AppendRunEvent(t, "c1", "run-2", model.EventRunStarted, nil)

	result, err := srv.handleRunHistory(context.Background(),
		toolRequest("beacon_run_history", map[string]any{"campaign_id": "c1", "limit": 1}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp struct {
		Runs  []model.RunHistoryRecord `json:"runs"`
		Total int                      `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, "run-2", resp.Runs[0].ID)

	result, err = srv.handleRunHistory(context.Background(),
		toolRequest("beacon_run_history", map[string]any{"campaign_id": "c1"}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	require.Len(t, resp.Runs, 2)
	assert.Equal(t, model.StatusCompleted, resp.Runs[1].Status)
	assert.Equal(t, int64(7), resp.Runs[1].Counts["orgsCount"])
}

func TestHandleFunnel(t *testing.T) {
	srv, lite := newTestServer(t, "")
	lite.SeedCampaign(t, "c1", model.CampaignStatusApproved)
	lite.AppendRunEvent(t, "c1", "run-1", model.EventRunStarted, nil)
	lite.AppendRunEvent(t, "c1", "run-1", model.EventStageCompleted, map[string]any{"stage": "orgs_sourced", "count": 3})

	result, err := srv.handleFunnel(context.Background(), toolRequest("beacon_funnel", map[string]any{"campaign_id": "c1"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var f funnel.Funnel
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &f))
	require.NotEmpty(t, f.Stages)
	assert.Equal(t, "orgs_sourced", f.Stages[0].Stage)
	require.NotNil(t, f.Stages[0].Count)
	assert.Equal(t, int64(3), *f.Stages[0].Count)
}

func TestHandleOverview(t *testing.T) {
	srv, lite := newTestServer(t, "")
	lite.SeedCampaign(t, "c1", model.CampaignStatusApproved)
	lite.AppendRunEvent(t, "c1", "run-1", model.EventRunStarted, nil)
	lite.AppendRunEvent(t, "c1", "run-1", model.EventRunFailed, map[string]any{"phase": "sourcing", "errorMessage": "quota exceeded"})

	result, err := srv.handleOverview(context.Background(), toolRequest("beacon_overview", map[string]any{"campaign_id": "c1"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.Equal(t, string(model.CampaignStateFailed), resp["state"])
	assert.Equal(t, "Failed", resp["badge"])
	assert.Equal(t, "quota exceeded", resp["error"])
	assert.Equal(t, false, resp["execution_affordances"])
	assert.Contains(t, resp["summary"], "Failed: ")
}

func TestHandleExecutionStatus(t *testing.T) {
	var calls atomic.Int32
	engineSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"execution":{"enqueue":"POST /api/v1/campaigns/:id/start","mode":"queue-first","synchronous_execution":true}}`)
	}))
	t.Cleanup(engineSrv.Close)

	srv, _ := newTestServer(t, engineSrv.URL)
	for i := 0; i < 2; i++ {
		result, err := srv.handleExecutionStatus(context.Background(), toolRequest("beacon_execution_status", nil))
		require.NoError(t, err)
		var res contract.Result
		require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &res))
		assert.False(t, res.ExecutionSupported)
		assert.Contains(t, res.Reason, "synchronous_execution")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestHandleExecutionStatusNotConfigured(t *testing.T) {
	srv, _ := newTestServer(t, "")
	result, err := srv.handleExecutionStatus(context.Background(), toolRequest("beacon_execution_status", nil))
	require.NoError(t, err)
	var res contract.Result
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &res))
	assert.Equal(t, contract.ReasonNotConfigured, res.Reason)
}

func TestToolsRegistered(t *testing.T) {
	srv, _ := newTestServer(t, "")
	tools := srv.MCPServer().ListTools()
	for _, name := range []string{"beacon_overview", "beacon_latest_run", "beacon_run_history", "beacon_funnel", "beacon_execution_status"} {
		tool, ok := tools[name]
		require.True(t, ok, "tool %s should be registered", name)
		require.NotNil(t, tool.Tool.Annotations.ReadOnlyHint)
		assert.True(t, *tool.Tool.Annotations.ReadOnlyHint, "tool %s should be read-only", name)
	}
}
