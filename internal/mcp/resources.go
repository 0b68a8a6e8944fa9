package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/beacon/internal/service/overview"
)

const (
	stagesURI              = "beacon://stages"
	campaignURIPrefix      = "beacon://campaign/"
	campaignOverviewSuffix = "/overview"
)

func (s *Server) registerResources() {
	// beacon://stages: the configured stage list.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			stagesURI,
			"Campaign Stages",
			mcplib.WithResourceDescription("The ordered execution stages and their funnel labels"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleStages,
	)

	// beacon://campaign/{id}/overview: a campaign's overview.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"beacon://campaign/{id}/overview",
			"Campaign Overview",
			mcplib.WithTemplateDescription("Execution overview for a specific campaign"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleCampaignOverview,
	)
}

func (s *Server) handleStages(_ context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(s.stages, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal stages: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      stagesURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleCampaignOverview(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	id, err := parseCampaignOverviewURI(uri)
	if err != nil {
		return nil, err
	}

	ov, err := s.overview.Overview(ctx, id)
	if err != nil {
		if errors.Is(err, overview.ErrCampaignNotFound) {
			return nil, fmt.Errorf("mcp: campaign not found: %s", id)
		}
		return nil, fmt.Errorf("mcp: campaign overview: %w", err)
	}

	data, err := json.MarshalIndent(compactOverview(ov), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal overview: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// parseCampaignOverviewURI extracts the campaign id from
// beacon://campaign/{id}/overview.
func parseCampaignOverviewURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, campaignURIPrefix) || !strings.HasSuffix(uri, campaignOverviewSuffix) {
		return "", fmt.Errorf("mcp: invalid campaign overview URI: %s", uri)
	}
	id := strings.TrimSuffix(strings.TrimPrefix(uri, campaignURIPrefix), campaignOverviewSuffix)
	if id == "" || len(uri) < len(campaignURIPrefix)+len(campaignOverviewSuffix) {
		return "", fmt.Errorf("mcp: empty campaign_id in URI: %s", uri)
	}
	if strings.Contains(id, "/") {
		return "", fmt.Errorf("mcp: invalid campaign overview URI: %s", uri)
	}
	return id, nil
}
