package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/beacon/internal/engine"
	"github.com/ashita-ai/beacon/internal/model"
	"github.com/ashita-ai/beacon/internal/service/contract"
	"github.com/ashita-ai/beacon/internal/service/funnel"
	"github.com/ashita-ai/beacon/internal/service/overview"
	"github.com/ashita-ai/beacon/internal/service/runs"
	"github.com/ashita-ai/beacon/internal/telemetry"
)

// Store is the slice of the storage layer the handlers touch directly.
// Reads go through the services.
type Store interface {
	AppendEvent(ctx context.Context, e model.NewEvent) (model.Event, error)
	Ping(ctx context.Context) error
	Driver() string
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	store               Store
	runs                *runs.Service
	funnel              *funnel.Service
	overview            *overview.Service
	contract            *contract.Validator
	engine              *engine.Client
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
	ingestRejected      metric.Int64Counter
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Engine, OpenAPISpec.
type HandlersDeps struct {
	Store               Store
	Runs                *runs.Service
	Funnel              *funnel.Service
	Overview            *overview.Service
	Contract            *contract.Validator
	Engine              *engine.Client
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		store:               d.Store,
		runs:                d.Runs,
		funnel:              d.Funnel,
		overview:            d.Overview,
		contract:            d.Contract,
		engine:              d.Engine,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
		ingestRejected:      telemetry.IngestRejected(),
	}
}

// HandleHealth handles GET /health. The contract status is read from the
// cache and never triggers validation.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	storeStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		storeStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	contractStatus := "unvalidated"
	if res, ok := h.contract.Cached(); ok {
		if res.ExecutionSupported {
			contractStatus = "supported"
		} else {
			contractStatus = "unsupported"
		}
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:            status,
		Version:           h.version,
		Store:             storeStatus,
		StoreDriver:       h.store.Driver(),
		ExecutionContract: contractStatus,
		Uptime:            int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleLatestRun handles GET /v1/campaigns/{campaign_id}/runs/latest.
// Only a missing campaign is a 404; no runs is a 200 with status no_runs.
func (h *Handlers) HandleLatestRun(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := campaignIDParam(w, r)
	if !ok {
		return
	}
	latest, err := h.runs.LatestRun(r.Context(), campaignID)
	if err != nil {
		h.writeCanceled(w, r, err)
		return
	}
	if latest.Kind == runs.KindCampaignNotFound {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "campaign not found")
		return
	}
	writeJSON(w, r, http.StatusOK, overview.LatestRunResponse(latest))
}

// HandleRunHistory handles GET /v1/campaigns/{campaign_id}/runs.
func (h *Handlers) HandleRunHistory(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := campaignIDParam(w, r)
	if !ok {
		return
	}
	limit, err := queryLimit(r, runs.DefaultHistoryLimit, runs.MaxHistoryLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	hist, err := h.runs.History(r.Context(), campaignID, limit)
	if err != nil {
		h.writeCanceled(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.RunHistoryResponse{
		CampaignID: hist.CampaignID,
		Runs:       hist.Runs,
		Degraded:   hist.Degraded,
	})
}

// HandleFunnel handles GET /v1/campaigns/{campaign_id}/funnel.
func (h *Handlers) HandleFunnel(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := campaignIDParam(w, r)
	if !ok {
		return
	}
	f, err := h.funnel.Funnel(r.Context(), campaignID)
	if err != nil {
		if errors.Is(err, funnel.ErrCampaignNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "campaign not found")
			return
		}
		h.writeCanceled(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, f)
}

// HandleOverview handles GET /v1/campaigns/{campaign_id}/overview.
func (h *Handlers) HandleOverview(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := campaignIDParam(w, r)
	if !ok {
		return
	}
	ov, err := h.overview.Overview(r.Context(), campaignID)
	if err != nil {
		if errors.Is(err, overview.ErrCampaignNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "campaign not found")
			return
		}
		h.writeCanceled(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ov)
}

// HandleExecutionStatus handles GET /v1/execution/status. The first call
// validates the engine contract; later calls are served from the cache.
func (h *Handlers) HandleExecutionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.contract.Validate(r.Context()))
}

// proxiedPrefixes are the engine resources reachable through the proxy.
var proxiedPrefixes = []string{"runs", "execution"}

// HandleEngineProxy handles GET /v1/engine/campaigns/{campaign_id}/{rest...}.
// The engine's status and body are passed through unchanged.
func (h *Handlers) HandleEngineProxy(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := campaignIDParam(w, r)
	if !ok {
		return
	}
	rest, ok := proxiedPath(r.PathValue("rest"))
	if !ok {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "unknown engine resource")
		return
	}

	path := "/api/v1/campaigns/" + url.PathEscape(campaignID) + "/" + rest
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	header := r.Header.Clone()
	header.Set("X-Request-ID", RequestIDFromContext(r.Context()))

	resp, err := h.engine.Do(r.Context(), http.MethodGet, path, header)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNotConfigured):
			writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeNotConfigured, "execution engine not configured")
		case errors.Is(err, engine.ErrTimeout):
			h.logger.Warn("engine proxy timed out", "campaign_id", campaignID, "path", rest, "error", err)
			writeError(w, r, http.StatusGatewayTimeout, model.ErrCodeUpstreamTimeout, "execution engine timed out")
		default:
			h.logger.Warn("engine proxy failed", "campaign_id", campaignID, "path", rest, "error", err)
			writeError(w, r, http.StatusBadGateway, model.ErrCodeUpstreamUnavailable, "execution engine unavailable")
		}
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// proxiedPath validates the proxied suffix and returns it cleaned of empty
// segments. Dot segments are rejected.
func proxiedPath(rest string) (string, bool) {
	var segs []string
	for _, s := range strings.Split(rest, "/") {
		switch s {
		case "":
			continue
		case ".", "..":
			return "", false
		}
		segs = append(segs, url.PathEscape(s))
	}
	if len(segs) == 0 {
		return "", false
	}
	for _, p := range proxiedPrefixes {
		if segs[0] == p {
			return strings.Join(segs, "/"), true
		}
	}
	return "", false
}

// HandleAppendEvent handles POST /v1/events, the engine's ingest endpoint.
func (h *Handlers) HandleAppendEvent(w http.ResponseWriter, r *http.Request) {
	var req model.AppendEventRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		h.rejectEvent(r, "malformed_body")
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.rejectEvent(r, "invalid_event")
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	evt, err := h.store.AppendEvent(r.Context(), req.NewEvent())
	if err != nil {
		h.logger.Error("append event failed",
			"op", "append_event",
			"event_type", req.EventType,
			"entity_id", req.EntityID,
			"error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to record event")
		return
	}
	writeJSON(w, r, http.StatusCreated, evt)
}

func (h *Handlers) rejectEvent(r *http.Request, reason string) {
	h.ingestRejected.Add(r.Context(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// writeCanceled answers a read whose only failure mode is a canceled or
// expired request context.
func (h *Handlers) writeCanceled(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, r, http.StatusGatewayTimeout, model.ErrCodeInternalError, "request timed out")
		return
	}
	h.logger.Debug("request canceled", "path", r.URL.Path, "error", err)
	writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError, "request canceled")
}

func campaignIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("campaign_id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "campaign_id is required")
		return "", false
	}
	return id, true
}

// queryLimit parses the limit query parameter, clamping to [1, maxVal].
func queryLimit(r *http.Request, defaultVal, maxVal int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if n < 1 {
		return 1, nil
	}
	if n > maxVal {
		return maxVal, nil
	}
	return n, nil
}
