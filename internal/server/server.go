package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/beacon/internal/engine"
	"github.com/ashita-ai/beacon/internal/ratelimit"
	"github.com/ashita-ai/beacon/internal/service/contract"
	"github.com/ashita-ai/beacon/internal/service/funnel"
	"github.com/ashita-ai/beacon/internal/service/overview"
	"github.com/ashita-ai/beacon/internal/service/runs"
)

// Server is the Beacon HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Engine, Limiter, MCPServer, OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	Store    Store
	Runs     *runs.Service
	Funnel   *funnel.Service
	Overview *overview.Service
	Contract *contract.Validator
	Logger   *slog.Logger

	// Optional dependencies (nil = disabled).
	Engine    *engine.Client
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// Optional embedded assets.
	OpenAPISpec []byte // Embedded OpenAPI YAML.
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Store:               cfg.Store,
		Runs:                cfg.Runs,
		Funnel:              cfg.Funnel,
		Overview:            cfg.Overview,
		Contract:            cfg.Contract,
		Engine:              cfg.Engine,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	ingest := ratelimit.NewGuard(ratelimit.GuardConfig{
		Limiter: cfg.Limiter,
		Key:     ratelimit.ClientIP,
		RequestID: func(r *http.Request) string {
			return RequestIDFromContext(r.Context())
		},
		Logger: cfg.Logger,
	})

	mux := http.NewServeMux()

	// Campaign read contracts.
	mux.HandleFunc("GET /v1/campaigns/{campaign_id}/runs/latest", h.HandleLatestRun)
	mux.HandleFunc("GET /v1/campaigns/{campaign_id}/runs", h.HandleRunHistory)
	mux.HandleFunc("GET /v1/campaigns/{campaign_id}/funnel", h.HandleFunnel)
	mux.HandleFunc("GET /v1/campaigns/{campaign_id}/overview", h.HandleOverview)

	// Execution engine.
	mux.HandleFunc("GET /v1/execution/status", h.HandleExecutionStatus)
	mux.HandleFunc("GET /v1/engine/campaigns/{campaign_id}/{rest...}", h.HandleEngineProxy)

	// Event ingestion (rate limited by IP).
	mux.Handle("POST /v1/events", ingest.Wrap(http.HandlerFunc(h.HandleAppendEvent)))

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// OpenAPI spec (no rate limit).
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)

	// Health (no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
