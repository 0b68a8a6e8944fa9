// Package contract validates, once per process, that the external execution
// engine advertises queue-first execution. The result gates whether any
// execution affordance is offered; it is cached on the Validator instance the
// process bootstrap owns.
package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/beacon/internal/engine"
)

// Path is the engine's contract introspection endpoint.
const Path = "/api/v1/meta/contract"

// DefaultTimeout bounds the introspection call.
const DefaultTimeout = 5 * time.Second

// Expected contract values.
const (
	ExpectedEnqueue = "POST /api/v1/campaigns/:id/start"
	ExpectedMode    = "queue-first"
)

// Reasons reported when execution is unsupported.
const (
	ReasonNotConfigured = "execution engine URL not configured"
	ReasonTimeout       = "execution engine contract request timed out"
	ReasonUnreachable   = "execution engine unreachable"
	ReasonMalformed     = "malformed contract response"
)

// Result is the outcome of one validation.
type Result struct {
	ExecutionSupported bool      `json:"execution_supported"`
	Reason             string    `json:"reason,omitempty"`
	ValidatedAt        time.Time `json:"validated_at"`
}

// document is the engine's contract response. Only the execution section is
// read; synchronous_execution must be present, so it is a pointer.
type document struct {
	Execution *struct {
		Enqueue              string `json:"enqueue"`
		Mode                 string `json:"mode"`
		SynchronousExecution *bool  `json:"synchronous_execution"`
	} `json:"execution"`
}

// Fetcher performs the introspection request. *engine.Client implements it.
type Fetcher interface {
	Configured() bool
	DoTimeout(ctx context.Context, method, path string, header http.Header, timeout time.Duration) (*engine.Response, error)
}

// Validator computes the contract result at most once until Reset.
type Validator struct {
	fetcher Fetcher
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	group singleflight.Group

	mu     sync.RWMutex
	cached *Result
}

// New creates a validator. A non-positive timeout uses DefaultTimeout.
func New(fetcher Fetcher, timeout time.Duration, logger *slog.Logger) *Validator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Validator{fetcher: fetcher, timeout: timeout, logger: logger, now: time.Now}
}

// Validate returns the cached result, computing it on the first call.
// Concurrent first calls share one outbound request.
func (v *Validator) Validate(ctx context.Context) Result {
	if r, ok := v.Cached(); ok {
		return r
	}
	res, _, _ := v.group.Do("validate", func() (any, error) {
		if r, ok := v.Cached(); ok {
			return r, nil
		}
		// The first caller's cancellation must not become the cached result.
		r := v.compute(context.WithoutCancel(ctx))
		v.mu.Lock()
		v.cached = &r
		v.mu.Unlock()
		v.logger.Info("execution contract validated",
			"execution_supported", r.ExecutionSupported, "reason", r.Reason)
		return r, nil
	})
	return res.(Result)
}

// Cached returns the cached result without validating.
func (v *Validator) Cached() (Result, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.cached == nil {
		return Result{}, false
	}
	return *v.cached, true
}

// Reset clears the cache so the next Validate call re-validates.
func (v *Validator) Reset() {
	v.mu.Lock()
	v.cached = nil
	v.mu.Unlock()
}

func (v *Validator) compute(ctx context.Context) Result {
	unsupported := func(reason string) Result {
		return Result{ExecutionSupported: false, Reason: reason, ValidatedAt: v.now().UTC()}
	}
	if v.fetcher == nil || !v.fetcher.Configured() {
		return unsupported(ReasonNotConfigured)
	}

	resp, err := v.fetcher.DoTimeout(ctx, http.MethodGet, Path, nil, v.timeout)
	switch {
	case errors.Is(err, engine.ErrTimeout):
		return unsupported(ReasonTimeout)
	case errors.Is(err, engine.ErrNotConfigured):
		return unsupported(ReasonNotConfigured)
	case err != nil:
		v.logger.Warn("execution contract request failed", "error", err)
		return unsupported(ReasonUnreachable)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return unsupported(fmt.Sprintf("execution engine contract endpoint returned status %d", resp.StatusCode))
	}

	var doc document
	if err := json.Unmarshal(resp.Body, &doc); err != nil || doc.Execution == nil {
		return unsupported(ReasonMalformed)
	}
	exec := doc.Execution
	switch {
	case exec.Enqueue != ExpectedEnqueue:
		return unsupported(fmt.Sprintf("unexpected enqueue endpoint %q, want %q", exec.Enqueue, ExpectedEnqueue))
	case exec.Mode != ExpectedMode:
		return unsupported(fmt.Sprintf("unexpected execution mode %q, want %q", exec.Mode, ExpectedMode))
	case exec.SynchronousExecution == nil:
		return unsupported("synchronous_execution flag missing from contract")
	case *exec.SynchronousExecution:
		return unsupported("engine reports synchronous_execution=true")
	}
	return Result{ExecutionSupported: true, ValidatedAt: v.now().UTC()}
}
