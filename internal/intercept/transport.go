package intercept

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ratewatch/ratewatch/internal/core"
	"github.com/ratewatch/ratewatch/internal/core/classify"
	"github.com/ratewatch/ratewatch/internal/core/extract"
	"github.com/ratewatch/ratewatch/internal/metrics"
	"github.com/ratewatch/ratewatch/internal/observability"
)

// Event sources, recorded on every detection.
const (
	SourceTransport = "transport"
	SourceClient    = "client"
	SourceProxy     = "proxy"
)

// Doer is the request primitive of API client libraries.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Transport is an http.RoundTripper that reports 429 responses.
type Transport struct {
	base   http.RoundTripper
	source string
	i      *Interceptor
}

// Transport wraps base, or http.DefaultTransport when nil.
func (i *Interceptor) Transport(base http.RoundTripper) *Transport {
	return i.transport(base, SourceTransport)
}

func (i *Interceptor) transport(base http.RoundTripper, source string) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if t, ok := base.(*Transport); ok && t.i == i {
		return t
	}
	return &Transport{base: base, source: source, i: i}
}

// ProxyTransport wraps base for traffic forwarded by the reverse proxy.
func (i *Interceptor) ProxyTransport(base http.RoundTripper) *Transport {
	return i.transport(base, SourceProxy)
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp == nil {
		return resp, err
	}
	t.i.Observe(req, resp, t.source)
	return resp, nil
}

// Client wraps a Doer.
type Client struct {
	base Doer
	i    *Interceptor
}

// Client wraps base, or http.DefaultClient when nil.
func (i *Interceptor) Client(base Doer) *Client {
	if base == nil {
		base = http.DefaultClient
	}
	return &Client{base: base, i: i}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.base.Do(req)
	if err != nil || resp == nil {
		return resp, err
	}
	c.i.Observe(req, resp, SourceClient)
	return resp, nil
}

// Install wraps hc's transport in place and returns hc. Installing twice is
// a no-op.
func (i *Interceptor) Install(hc *http.Client) *http.Client {
	if hc == nil {
		hc = &http.Client{}
	}
	hc.Transport = i.Transport(hc.Transport)
	return hc
}

// Observe inspects resp and, when it is a 429, arranges for a detection to
// be dispatched. The response is handed back untouched: the body is
// captured as the caller reads it, up to maxBody bytes, and detection runs
// once the capture is complete or the caller closes the body.
func (i *Interceptor) Observe(req *http.Request, resp *http.Response, source string) {
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return
	}

	rawURL := ""
	if req != nil && req.URL != nil {
		rawURL = req.URL.String()
	} else if resp.Request != nil && resp.Request.URL != nil {
		rawURL = resp.Request.URL.String()
	}

	header := resp.Header.Clone()
	observedAt := i.clock()
	report := func(body []byte) {
		i.report(rawURL, header, body, source, observedAt)
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		report(nil)
		return
	}
	resp.Body = &capturingBody{rc: resp.Body, limit: i.maxBody, done: report, logger: i.logger}
}

func (i *Interceptor) report(rawURL string, header http.Header, body []byte, source string, now time.Time) {
	ev, src := Detect(rawURL, header, body, now)
	ev.ID = uuid.NewString()
	ev.Source = source

	metrics.RecordDetection(string(ev.APIFamily), string(src), ev.ResetAt != nil)
	i.logger.Info("Rate limit response detected",
		zap.String("event_id", ev.ID),
		zap.String("domain", ev.Domain),
		zap.String("url", rawURL),
		zap.String("api_family", string(ev.APIFamily)),
		zap.String("reset_source", string(src)),
		zap.String("organization_id", ev.OrganizationID),
		zap.String("source", source))

	_ = i.Dispatch(ev)
}

// capturingBody copies the first limit bytes the caller reads and calls done
// exactly once: at EOF, when limit bytes are captured, on a read error, or
// on Close. Closing an unread body reads up to limit bytes first so the
// detection still sees the body.
type capturingBody struct {
	rc     io.ReadCloser
	limit  int64
	done   func([]byte)
	logger observability.Logger

	mu       sync.Mutex
	buf      bytes.Buffer
	finished bool
}

func (b *capturingBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, err := b.rc.Read(p)
	if !b.finished {
		if room := b.limit - int64(b.buf.Len()); room > 0 {
			b.buf.Write(p[:min(int64(n), room)])
		}
		switch {
		case err == io.EOF, int64(b.buf.Len()) >= b.limit:
			b.finishLocked()
		case err != nil:
			b.logger.Debug("Partial read of rate limit body", zap.Error(err))
			b.finishLocked()
		}
	}
	return n, err
}

func (b *capturingBody) Close() error {
	// a Read blocked in another goroutine holds mu; report what we have
	if b.mu.TryLock() {
		if !b.finished {
			if room := b.limit - int64(b.buf.Len()); room > 0 {
				_, _ = io.CopyN(&b.buf, b.rc, room)
			}
			b.finishLocked()
		}
		b.mu.Unlock()
	}
	return b.rc.Close()
}

func (b *capturingBody) finishLocked() {
	b.finished = true
	b.done(append([]byte(nil), b.buf.Bytes()...))
}

// Detect classifies rawURL and extracts the reset time from a 429 response.
// It never fails: unparseable input yields an event with a nil ResetAt.
func Detect(rawURL string, header http.Header, body []byte, now time.Time) (core.DetectionEvent, extract.Source) {
	info := classify.Classify(rawURL)
	result := extract.Extract(header, extract.ParseBody(body), now)

	return core.DetectionEvent{
		URL:            rawURL,
		Domain:         classify.Domain(rawURL),
		ResetAt:        result.Pointer(),
		OrganizationID: info.OrganizationID,
		ConversationID: info.ConversationID,
		APIFamily:      info.APIFamily,
		Timestamp:      now.UnixMilli(),
	}, result.Source
}
