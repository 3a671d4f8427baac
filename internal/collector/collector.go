// Package collector submits rate limit observations to a remote HTTP
// collector with a bounded retry policy.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/ratewatch/ratewatch/internal/core"
	"github.com/ratewatch/ratewatch/internal/metrics"
	"github.com/ratewatch/ratewatch/internal/observability"
)

// ErrDisabled is returned when the collector is disabled or has no endpoint.
var ErrDisabled = errors.New("collector disabled or endpoint not configured")

// DefaultSource identifies this service in submitted payloads.
const DefaultSource = "ratewatch"

// StatusError is a non-2xx collector response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("collector responded %s", e.Status)
}

// Retryable reports whether the response is worth retrying.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500
}

// Request is what gets reported to the collector.
type Request struct {
	OrganizationID string
	ResetAt        int64
	Domain         string
}

// Payload is the collector wire format.
type Payload struct {
	OrgID     string `json:"orgId"`
	ResetAt   int64  `json:"resetAt"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source,omitempty"`
	Domain    string `json:"domain,omitempty"`
}

// Client posts payloads to the configured collector endpoint.
type Client struct {
	http   *http.Client
	policy RetryPolicy
	source string
	clock  func() time.Time
	logger observability.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for submissions.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRetryPolicy replaces the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithSource sets the payload source tag.
func WithSource(source string) Option {
	return func(c *Client) {
		if s := strings.TrimSpace(source); s != "" {
			c.source = s
		}
	}
}

// WithClock overrides the payload timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// New returns a Client with a 10s timeout and the default retry policy.
func New(opts ...Option) *Client {
	c := &Client{
		http:   &http.Client{Timeout: 10 * time.Second},
		policy: DefaultRetryPolicy(),
		source: DefaultSource,
		clock:  time.Now,
		logger: observability.Component("collector"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a Client from collector transport settings.
func NewFromConfig(cfg config.CollectorConfig, opts ...Option) *Client {
	base := []Option{
		WithSource(cfg.Source),
		WithRetryPolicy(RetryPolicy{MaxAttempts: cfg.RetryAttempts, Delay: cfg.RetryDelay}),
	}
	if cfg.Timeout > 0 {
		base = append(base, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return New(append(base, opts...)...)
}

// Send submits req to target. Server errors and transport failures are
// retried per the policy; other non-2xx responses fail immediately. The
// returned submission is never pending.
func (c *Client) Send(ctx context.Context, target core.CollectorConfig, req Request) (core.Submission, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	sub := core.Submission{
		State:          core.SubmissionFailure,
		OrganizationID: req.OrganizationID,
		ResetAt:        req.ResetAt,
		Domain:         req.Domain,
	}
	if !target.Active() {
		sub.Error = ErrDisabled.Error()
		return sub, ErrDisabled
	}

	body, err := json.Marshal(Payload{
		OrgID:     req.OrganizationID,
		ResetAt:   req.ResetAt,
		Timestamp: c.clock().UnixMilli(),
		Source:    c.source,
		Domain:    req.Domain,
	})
	if err != nil {
		sub.Error = err.Error()
		return sub, fmt.Errorf("encode collector payload: %w", err)
	}

	endpoint := strings.TrimSpace(target.EndpointURL)
	start := time.Now()

	operation := func() error {
		sub.Attempts++
		status, err := c.post(ctx, endpoint, body)
		sub.StatusCode = status
		if err == nil {
			return nil
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Collector submission failed, will retry",
			zap.String("org_id", req.OrganizationID),
			zap.Int("attempt", sub.Attempts),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	}

	err = backoff.RetryNotify(operation, c.policy.backOff(ctx), notify)
	duration := time.Since(start)

	if err != nil {
		sub.Error = err.Error()
		metrics.RecordCollectorSubmission(string(sub.State), sub.Attempts, duration)
		c.logger.Error("Collector submission abandoned",
			zap.String("org_id", req.OrganizationID),
			zap.String("domain", req.Domain),
			zap.Int("attempts", sub.Attempts),
			zap.Int("status_code", sub.StatusCode),
			zap.Error(err))
		return sub, err
	}

	sub.State = core.SubmissionSuccess
	metrics.RecordCollectorSubmission(string(sub.State), sub.Attempts, duration)
	c.logger.Info("Collector submission succeeded",
		zap.String("org_id", req.OrganizationID),
		zap.String("domain", req.Domain),
		zap.Int64("reset_at", req.ResetAt),
		zap.Int("attempts", sub.Attempts))
	return sub, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("build collector request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("collector request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp.StatusCode, nil
}
