// internal/submit/client.go
//
// Formkit – Submission subsystem: HTTP client.
//
// Context
//   Client posts one Payload as JSON and maps whatever happens to an Outcome.
//   It never retries; at-most-once per call is the contract and a retry is
//   a new user action.  The only hang protection is the optional timeout,
//   applied per request through the context.
//
// Workflow
//   •  Marshal payload → POST with JSON headers and a fresh X-Request-ID.
//   •  Transport error, non-2xx, or a body without a boolean "success"
//      → NetworkFailure.
//   •  success:false → Rejected (error, then message, then default).
//   •  success:true  → Success (message, then default).
//
//------------------------------------------------------------------------------

package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
)

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// Client submits payloads.  The zero value is not usable; call New.
type Client struct {
	http    *http.Client
	timeout time.Duration
	log     *zap.SugaredLogger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each request.  Zero disables the bound.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(c *Client) { c.log = l } }

// New returns a Client backed by a pooled cleanhttp transport.
func New(opts ...Option) *Client {
	c := &Client{http: cleanhttp.DefaultPooledClient()}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = zap.S()
	}
	return c
}

// reply is the expected response shape.  Success is a pointer so a missing
// key is distinguishable from false.
type reply struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Submit posts payload to endpoint.  It never returns an error: every
// failure is folded into a NetworkFailure Outcome.
func (c *Client) Submit(ctx context.Context, endpoint string, payload Payload, d Defaults) Outcome {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return c.failure(d, 0, fmt.Errorf("encode payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return c.failure(d, 0, fmt.Errorf("build request: %w", err))
	}
	reqID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return c.failure(d, 0, fmt.Errorf("post %s: %w", endpoint, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return c.failure(d, resp.StatusCode, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.failure(d, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var r reply
	if err := json.Unmarshal(raw, &r); err != nil {
		return c.failure(d, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if r.Success == nil {
		return c.failure(d, resp.StatusCode, fmt.Errorf("response has no boolean success"))
	}

	c.log.Debugw("submission answered",
		"endpoint", endpoint,
		"request_id", reqID,
		"status", resp.StatusCode,
		"success", *r.Success,
		"took", time.Since(start),
	)

	if !*r.Success {
		return Outcome{Kind: Rejected, Status: resp.StatusCode, Message: firstOf(r.Error, r.Message, d.Rejected)}
	}
	return Outcome{Kind: Success, Status: resp.StatusCode, Message: firstOf(r.Message, d.Success)}
}

func (c *Client) failure(d Defaults, status int, err error) Outcome {
	c.log.Warnw("submission failed", "status", status, "err", err)
	return Outcome{Kind: NetworkFailure, Status: status, Message: d.Network, Err: err}
}

func firstOf(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}
