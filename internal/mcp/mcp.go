// Package mcp implements the Model Context Protocol server for Beacon.
//
// The MCP server exposes Beacon's read contracts as tools, resources and
// prompts so MCP-compatible agents can ask how a campaign's execution is
// going. Every tool is read-only.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/beacon/internal/service/contract"
	"github.com/ashita-ai/beacon/internal/service/funnel"
	"github.com/ashita-ai/beacon/internal/service/overview"
	"github.com/ashita-ai/beacon/internal/service/runs"
	"github.com/ashita-ai/beacon/internal/stages"
)

// Deps holds the services the MCP server reads through.
type Deps struct {
	Runs     *runs.Service
	Funnel   *funnel.Service
	Overview *overview.Service
	Contract *contract.Validator
	Stages   stages.Config
}

// Server wraps the MCP server with Beacon's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	runs      *runs.Service
	funnel    *funnel.Service
	overview  *overview.Service
	contract  *contract.Validator
	stages    stages.Config
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources, tools and
// prompts.
func New(d Deps, logger *slog.Logger, version string) *Server {
	s := &Server{
		runs:     d.Runs,
		funnel:   d.Funnel,
		overview: d.Overview,
		contract: d.Contract,
		stages:   d.Stages,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"beacon",
		version,
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithInstructions("Beacon reports campaign execution status. "+
			"Start with beacon_overview for a campaign; use the narrower tools for detail. "+
			"Run statuses are the engine's own strings and are returned verbatim."),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// jsonResult marshals v as the text content of a tool result.
func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("failed to encode result"), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// canceledResult reports a read aborted by the caller.
func canceledResult(ctx context.Context) *mcplib.CallToolResult {
	if ctx.Err() != nil {
		return errorResult("request canceled")
	}
	return errorResult("request failed")
}
