package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/beacon/internal/model"
	"github.com/ashita-ai/beacon/internal/telemetry"
)

// KeyFunc picks the bucket for a request. An empty key bypasses the limiter.
type KeyFunc func(r *http.Request) string

// GuardConfig configures a Guard. Key defaults to ClientIP.
type GuardConfig struct {
	Limiter   Limiter
	Key       KeyFunc
	RequestID func(r *http.Request) string
	Logger    *slog.Logger
}

// Guard sheds event ingest traffic per client. Rejections answer 429 with
// the RATE_LIMITED envelope; limiter errors let the request through.
type Guard struct {
	limiter   Limiter
	key       KeyFunc
	requestID func(r *http.Request) string
	logger    *slog.Logger
	rejected  metric.Int64Counter
}

// NewGuard builds a Guard. A nil Limiter disables it.
func NewGuard(cfg GuardConfig) *Guard {
	g := &Guard{
		limiter:   cfg.Limiter,
		key:       cfg.Key,
		requestID: cfg.RequestID,
		logger:    cfg.Logger,
		rejected:  telemetry.IngestRejected(),
	}
	if g.key == nil {
		g.key = ClientIP
	}
	if g.logger == nil {
		g.logger = slog.New(slog.DiscardHandler)
	}
	return g
}

// Wrap returns next behind the guard.
func (g *Guard) Wrap(next http.Handler) http.Handler {
	if g.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := g.key(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		allowed, err := g.limiter.Allow(r.Context(), key)
		if err != nil {
			g.logger.Warn("ingest limiter failed, admitting event", "client", key, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			g.rejected.Add(r.Context(), 1, metric.WithAttributes(attribute.String("reason", "rate_limited")))
			g.logger.Debug("ingest rate limited", "client", key, "path", r.URL.Path)
			g.reject(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Guard) reject(w http.ResponseWriter, r *http.Request) {
	meta := model.ResponseMeta{Timestamp: time.Now().UTC()}
	if g.requestID != nil {
		meta.RequestID = g.requestID(r)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(model.APIError{
		Error: model.ErrorDetail{Code: model.ErrCodeRateLimited, Message: "too many events, retry later"},
		Meta:  meta,
	})
}

// ClientIP keys a request by the host part of RemoteAddr. X-Forwarded-For
// is ignored; any client can set it.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
