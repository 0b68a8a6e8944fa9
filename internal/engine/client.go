// Package engine is the HTTP client for the external execution engine. Beacon
// only reads from the engine: its contract metadata and its run and
// execution-state endpoints, which the server proxies unchanged.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	// ErrNotConfigured means no engine base URL is set.
	ErrNotConfigured = errors.New("engine: not configured")
	// ErrTimeout means the engine did not answer within the deadline.
	ErrTimeout = errors.New("engine: timeout")
	// ErrUnavailable means the engine could not be reached.
	ErrUnavailable = errors.New("engine: unavailable")
)

// DefaultTimeout bounds proxied requests.
const DefaultTimeout = 10 * time.Second

// maxBodyBytes caps buffered engine responses.
const maxBodyBytes = 8 << 20

// forwardedHeaders are copied from the inbound request to the engine.
var forwardedHeaders = []string{"Authorization", "X-Request-ID"}

// Response is a buffered engine response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client talks to the execution engine.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a client for baseURL. An empty baseURL yields a client whose
// calls return ErrNotConfigured.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		timeout: timeout,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool { return c != nil && c.baseURL != "" }

// Do issues a request to path on the engine using the client's default
// timeout. Only the forwarded headers are copied from header.
func (c *Client) Do(ctx context.Context, method, path string, header http.Header) (*Response, error) {
	return c.DoTimeout(ctx, method, path, header, c.timeout)
}

// DoTimeout is Do with an explicit timeout.
func (c *Client) DoTimeout(ctx context.Context, method, path string, header http.Header, timeout time.Duration) (*Response, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("engine: build request: %w: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	for _, h := range forwardedHeaders {
		if v := header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classify(ctx, err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
