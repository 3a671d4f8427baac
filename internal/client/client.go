// Package client talks to a running ratewatch server over its HTTP API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ratewatch/ratewatch/internal/core"
	apperrors "github.com/ratewatch/ratewatch/internal/errors"
	"github.com/ratewatch/ratewatch/internal/notify"
	"github.com/ratewatch/ratewatch/internal/server/handlers"
)

const defaultTimeout = 10 * time.Second

// ErrStreamClosed is returned by Events when the server ends the stream.
var ErrStreamClosed = errors.New("event stream closed by server")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Client is a ratewatch API client.
type Client struct {
	base   *url.URL
	http   *http.Client
	stream *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for request/response calls.
// Event streams use a copy without a timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
			stream := *hc
			stream.Timeout = 0
			c.stream = &stream
		}
	}
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(baseURL)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	base, err := url.Parse(raw)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", baseURL)
	}
	base.Path = strings.TrimSuffix(base.Path, "/")

	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: defaultTimeout},
		stream: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = c.base.Path + path
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body apperrors.HTTPErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err == nil {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
	}
	return apiErr
}

// List returns every live rate limit.
func (c *Client) List(ctx context.Context) ([]core.Status, error) {
	var statuses []core.Status
	if err := c.do(ctx, http.MethodGet, "/api/v1/ratelimits", nil, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// Status returns one domain's status, nil when it is not rate limited.
func (c *Client) Status(ctx context.Context, domain string) (*core.Status, error) {
	var resp handlers.RateLimitResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/ratelimits/"+url.PathEscape(domain), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Status, nil
}

// Clear removes one domain's record and reports whether it existed.
func (c *Client) Clear(ctx context.Context, domain string) (bool, error) {
	var resp handlers.ClearResponse
	if err := c.do(ctx, http.MethodDelete, "/api/v1/ratelimits/"+url.PathEscape(domain), nil, &resp); err != nil {
		return false, err
	}
	return resp.Existed != nil && *resp.Existed, nil
}

// ClearAll removes every record and returns the cleared domains.
func (c *Client) ClearAll(ctx context.Context) ([]string, error) {
	var resp handlers.ClearResponse
	if err := c.do(ctx, http.MethodDelete, "/api/v1/ratelimits", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Cleared, nil
}

// Report submits a detection observed outside the server.
func (c *Client) Report(ctx context.Context, ev core.DetectionEvent) (handlers.DetectionAccepted, error) {
	var resp handlers.DetectionAccepted
	err := c.do(ctx, http.MethodPost, "/api/v1/detections", ev, &resp)
	return resp, err
}

// Collector returns the collector configuration.
func (c *Client) Collector(ctx context.Context) (core.CollectorConfig, error) {
	var cfg core.CollectorConfig
	err := c.do(ctx, http.MethodGet, "/api/v1/collector", nil, &cfg)
	return cfg, err
}

// SetCollector merges update into the collector configuration.
func (c *Client) SetCollector(ctx context.Context, update core.CollectorConfigUpdate) (core.CollectorConfig, error) {
	var cfg core.CollectorConfig
	err := c.do(ctx, http.MethodPatch, "/api/v1/collector", update, &cfg)
	return cfg, err
}

// TestCollector asks the server to send a synthetic submission.
func (c *Client) TestCollector(ctx context.Context) (core.Submission, error) {
	var sub core.Submission
	err := c.do(ctx, http.MethodPost, "/api/v1/collector/test", nil, &sub)
	return sub, err
}

// Version returns the server's build information.
func (c *Client) Version(ctx context.Context) (handlers.VersionResponse, error) {
	var v handlers.VersionResponse
	err := c.do(ctx, http.MethodGet, "/version", nil, &v)
	return v, err
}

// Ready checks the readiness probe.
func (c *Client) Ready(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health/ready", nil, nil)
}

// Events follows the event stream, calling fn for every message until ctx
// is done, fn returns an error, or the stream ends. origin is sent as the
// Origin header and must pass the server's allow-list.
func (c *Client) Events(ctx context.Context, origin string, fn func(notify.Message) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/v1/events"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if origin != "" {
		req.Header.Set("Origin", origin)
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	err = ReadEvents(resp.Body, fn)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err == nil {
		return ErrStreamClosed
	}
	return err
}

// ReadEvents parses a server-sent event stream of notify messages.
// Comments and unknown fields are skipped.
func ReadEvents(r io.Reader, fn func(notify.Message) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var data strings.Builder
	flush := func() error {
		if data.Len() == 0 {
			return nil
		}
		defer data.Reset()
		var msg notify.Message
		if err := json.Unmarshal([]byte(data.String()), &msg); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		return fn(msg)
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}
