package mcp

import (
	"context"
	"encoding/json"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/beacon/internal/model"
	"github.com/ashita-ai/beacon/internal/stages"
)

func TestParseCampaignOverviewURI(t *testing.T) {
	tests := []struct {
		name      string
		uri       string
		wantID    string
		wantError bool
		errSubstr string
	}{
		{name: "valid simple id", uri: "beacon://campaign/c1/overview", wantID: "c1"},
		{name: "valid uuid", uri: "beacon://campaign/0b9f6c52-6a36-4bd1-9a43-5a1c2d3e4f50/overview", wantID: "0b9f6c52-6a36-4bd1-9a43-5a1c2d3e4f50"},
		{name: "empty id between slashes", uri: "beacon://campaign//overview", wantError: true, errSubstr: "empty campaign_id"},
		{name: "prefix and suffix overlap", uri: "beacon://campaign/overview", wantError: true, errSubstr: "empty campaign_id"},
		{name: "wrong scheme", uri: "other://campaign/c1/overview", wantError: true, errSubstr: "invalid campaign overview URI"},
		{name: "wrong suffix", uri: "beacon://campaign/c1/funnel", wantError: true, errSubstr: "invalid campaign overview URI"},
		{name: "nested path", uri: "beacon://campaign/a/b/overview", wantError: true, errSubstr: "invalid campaign overview URI"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := parseCampaignOverviewURI(tt.uri)
			if tt.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestStagesResource(t *testing.T) {
	srv, _ := newTestServer(t, "")

	contents, err := srv.handleStages(context.Background(), mcplib.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, stagesURI, text.URI)

	var cfg stages.Config
	require.NoError(t, json.Unmarshal([]byte(text.Text), &cfg))
	assert.Equal(t, stages.Default().Stages, cfg.Stages)
}

func TestCampaignOverviewResource(t *testing.T) {
	srv, lite := newTestServer(t, "")
	lite.SeedCampaign(t, "c1", model.CampaignStatusDraft)

	req := mcplib.ReadResourceRequest{}
	req.Params.URI = "beacon://campaign/c1/overview"
	contents, err := srv.handleCampaignOverview(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &m))
	assert.Equal(t, string(model.CampaignStateDraft), m["state"])
	assert.Equal(t, false, m["execution_affordances"])

	req.Params.URI = "beacon://campaign/ghost/overview"
	_, err = srv.handleCampaignOverview(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "campaign not found")
}
