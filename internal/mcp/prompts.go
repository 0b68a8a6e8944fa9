package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// campaign-status: walks the agent through explaining a campaign's execution.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("campaign-status",
			mcplib.WithPromptDescription("Explain how a campaign's execution is going"),
			mcplib.WithArgument("campaign_id",
				mcplib.ArgumentDescription("The campaign to report on"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleCampaignStatusPrompt,
	)
}

func (s *Server) handleCampaignStatusPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	campaignID := request.Params.Arguments["campaign_id"]
	if campaignID == "" {
		return nil, fmt.Errorf("campaign_id argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Report on the execution of campaign %s", campaignID),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Report on the execution of campaign %s.

1. CALL beacon_overview with campaign_id="%s".

2. LEAD with the summary line. Quote the health statement as given; it
   already explains zero counts.

3. For stage detail, use the stages list. A stage without a count was not
   reported by the engine; say so rather than calling it zero. Mark
   conditional counts as provisional.

4. If the user asks about earlier runs, CALL beacon_run_history.

5. If the user asks whether the campaign can be started, check
   execution_affordances. When it is false and the campaign is ready,
   CALL beacon_execution_status and relay the reason.

Report run statuses exactly as returned.`, campaignID, campaignID),
				},
			},
		},
	}, nil
}
