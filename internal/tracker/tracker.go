// Package tracker owns the authoritative per-domain rate limit state.
//
// All mutations (ingest, clear, expiry) are serialized by one lock that is
// held across persistence and notification, so observers see changes for a
// domain in the order they were applied. The durable backend is written
// through; when it fails the in-memory map stays authoritative.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ratewatch/ratewatch/internal/collector"
	"github.com/ratewatch/ratewatch/internal/core"
	"github.com/ratewatch/ratewatch/internal/core/store"
	"github.com/ratewatch/ratewatch/internal/metrics"
	"github.com/ratewatch/ratewatch/internal/notify"
	"github.com/ratewatch/ratewatch/internal/observability"
)

// TestOrganizationID is the organization reported by collector test sends.
const TestOrganizationID = "test-org"

var (
	ErrClosed          = errors.New("tracker is closed")
	ErrInvalidEndpoint = errors.New("collector endpoint must be an http or https URL")
)

// Submitter forwards observations to the remote collector.
type Submitter interface {
	Send(ctx context.Context, target core.CollectorConfig, req collector.Request) (core.Submission, error)
}

// Tracker is the state store.
type Tracker struct {
	mu        sync.Mutex
	records   map[string]core.RateLimitRecord
	collector core.CollectorConfig
	closed    bool

	backend   store.Backend
	publisher notify.Publisher
	submitter Submitter
	seed      *core.CollectorConfig
	clock     func() time.Time
	logger    observability.Logger
	sweeper   *Sweeper

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithPublisher sets where state changes are announced.
func WithPublisher(p notify.Publisher) Option {
	return func(t *Tracker) {
		if p != nil {
			t.publisher = p
		}
	}
}

// WithSubmitter enables collector forwarding.
func WithSubmitter(s Submitter) Option {
	return func(t *Tracker) { t.submitter = s }
}

// WithCollectorSeed sets the collector configuration persisted on first start.
func WithCollectorSeed(cfg core.CollectorConfig) Option {
	return func(t *Tracker) { t.seed = &cfg }
}

// WithSweepSchedule overrides the cron schedule of the expiry sweep.
// An empty schedule disables it.
func WithSweepSchedule(schedule string) Option {
	return func(t *Tracker) { t.sweeper = NewSweeper(strings.TrimSpace(schedule), t.Sweep) }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger observability.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

type discard struct{}

func (discard) Publish(notify.Message) int { return 0 }

// New returns a tracker backed by backend. A nil backend keeps state in memory.
func New(backend store.Backend, opts ...Option) *Tracker {
	if backend == nil {
		backend = store.NewMemory()
	}
	t := &Tracker{
		records:   make(map[string]core.RateLimitRecord),
		backend:   backend,
		publisher: discard{},
		clock:     time.Now,
		logger:    observability.Component("tracker"),
	}
	t.sweeper = NewSweeper(DefaultSweepSchedule, t.Sweep)
	for _, opt := range opts {
		opt(t)
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t
}

// Start restores persisted state and starts the expiry sweep. Records that
// expired while the process was down are dropped and their removal persisted.
func (t *Tracker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.restoreLocked(ctx)
	t.mu.Unlock()

	return t.sweeper.Start(t.ctx)
}

func (t *Tracker) restoreLocked(ctx context.Context) {
	now := t.clock()

	records, decodeErrs, err := store.LoadRecords(ctx, t.backend)
	if err != nil {
		metrics.RecordStorageError("load")
		t.logger.Error("Failed to restore rate limit records", zap.Error(err))
	}
	for _, derr := range decodeErrs {
		t.logger.Warn("Skipping unreadable rate limit record", zap.Error(derr))
	}

	restored, dropped := 0, 0
	for _, r := range records {
		if !r.Live(now) {
			dropped++
			if err := t.backend.Delete(ctx, store.RateLimitKey(r.Domain)); err != nil {
				metrics.RecordStorageError("delete")
				t.logger.Warn("Failed to remove expired record", zap.String("domain", r.Domain), zap.Error(err))
			}
			continue
		}
		t.records[r.Domain] = r
		restored++
	}
	metrics.SetLiveRecords(len(t.records))

	cfg, found, err := store.LoadCollectorConfig(ctx, t.backend)
	switch {
	case err != nil:
		metrics.RecordStorageError("load")
		t.logger.Error("Failed to restore collector config", zap.Error(err))
	case found:
		t.collector = cfg
	case t.seed != nil:
		t.collector = *t.seed
		if err := store.SaveCollectorConfig(ctx, t.backend, t.collector); err != nil {
			metrics.RecordStorageError("put")
			t.logger.Warn("Failed to persist initial collector config", zap.Error(err))
		}
	}

	t.logger.Info("Rate limit state restored",
		zap.String("driver", t.backend.Driver()),
		zap.Int("restored", restored),
		zap.Int("dropped_expired", dropped),
		zap.Bool("collector_enabled", t.collector.Enabled))
}

// Close stops the sweep and waits for in-flight collector submissions,
// which are cancelled.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	t.sweeper.Stop()
	t.wg.Wait()
	return nil
}

// CheckHealth fails once the tracker is closed.
func (t *Tracker) CheckHealth(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	return nil
}

// Sweeper exposes the expiry schedule for health and status reporting.
func (t *Tracker) Sweeper() *Sweeper {
	return t.sweeper
}

// NormalizeDomain lowercases domain and falls back to core.DefaultDomain.
func NormalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return core.DefaultDomain
	}
	return domain
}

// Ingest applies a detection event. Events with a reset time create or
// overwrite the domain's record; events without one are only announced.
func (t *Tracker) Ingest(ctx context.Context, ev core.DetectionEvent) error {
	if ctx == nil {
		ctx = context.Background()
	}
	domain := NormalizeDomain(ev.Domain)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}

	if ev.ResetAt == nil {
		t.publisher.Publish(notify.Message{Event: notify.EventDetected, Domain: domain})
		t.mu.Unlock()
		metrics.RecordIngest("broadcast_only")
		t.logger.Info("Rate limit detected without reset time",
			zap.String("domain", domain),
			zap.String("url", ev.URL))
		return nil
	}

	now := t.clock()
	detectedAt := ev.Timestamp
	if detectedAt <= 0 {
		detectedAt = now.UnixMilli()
	}
	record := core.RateLimitRecord{
		Domain:         domain,
		ResetAt:        core.Int64(*ev.ResetAt),
		DetectedAt:     detectedAt,
		URL:            ev.URL,
		OrganizationID: ev.OrganizationID,
	}
	t.records[domain] = record

	if err := store.PutRecord(ctx, t.backend, record); err != nil {
		metrics.RecordStorageError("put")
		t.logger.Warn("Failed to persist rate limit record",
			zap.String("domain", domain),
			zap.Error(err))
	}

	status := core.StatusOf(record, now)
	t.publisher.Publish(notify.Message{Event: notify.EventUpdated, Domain: domain, Status: &status})
	metrics.SetLiveRecords(len(t.records))
	target := t.collector
	forward := target.Active() && record.OrganizationID != "" && t.submitter != nil
	if forward {
		// registered under the lock so Close cannot miss it
		t.wg.Add(1)
	}
	t.mu.Unlock()

	metrics.RecordIngest("stored")
	t.logger.Info("Rate limit recorded",
		zap.String("domain", domain),
		zap.Int64("reset_at", *record.ResetAt),
		zap.String("organization_id", record.OrganizationID))

	if forward {
		t.forward(target, collector.Request{
			OrganizationID: record.OrganizationID,
			ResetAt:        *record.ResetAt,
			Domain:         domain,
		})
	}
	return nil
}

// forward submits asynchronously; the detection path never waits on the
// collector. The caller has already added to t.wg.
func (t *Tracker) forward(target core.CollectorConfig, req collector.Request) {
	t.publishSubmission(core.Submission{
		State:          core.SubmissionPending,
		OrganizationID: req.OrganizationID,
		ResetAt:        req.ResetAt,
		Domain:         req.Domain,
	})

	go func() {
		defer t.wg.Done()
		sub, _ := t.submitter.Send(t.ctx, target, req)
		t.publishSubmission(sub)
	}()
}

func (t *Tracker) publishSubmission(sub core.Submission) {
	t.publisher.Publish(notify.Message{
		Event:      notify.EventCollector,
		Domain:     sub.Domain,
		Submission: &sub,
	})
}

// Record returns the live record for domain, or nil. Expired records are
// evicted before returning.
func (t *Tracker) Record(ctx context.Context, domain string) (*core.RateLimitRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	domain = NormalizeDomain(domain)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	r, ok := t.records[domain]
	if !ok {
		return nil, nil
	}
	if !r.Live(t.clock()) {
		t.expireLocked(ctx, domain)
		return nil, nil
	}
	return &r, nil
}

// Query returns the status view of domain's live record, or nil.
func (t *Tracker) Query(ctx context.Context, domain string) (*core.Status, error) {
	r, err := t.Record(ctx, domain)
	if err != nil || r == nil {
		return nil, err
	}
	status := core.StatusOf(*r, t.clock())
	return &status, nil
}

// List returns the status of every live record, sorted by domain.
func (t *Tracker) List(ctx context.Context) ([]core.Status, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	now := t.clock()
	t.sweepLocked(ctx, now)

	statuses := make([]core.Status, 0, len(t.records))
	for _, r := range t.records {
		statuses = append(statuses, core.StatusOf(r, now))
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Domain < statuses[j].Domain })
	return statuses, nil
}

// Clear removes domain's record. Clearing an absent domain is not an error;
// the returned bool reports whether a record existed.
func (t *Tracker) Clear(ctx context.Context, domain string) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	domain = NormalizeDomain(domain)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false, ErrClosed
	}

	_, existed := t.records[domain]
	delete(t.records, domain)
	if err := t.backend.Delete(ctx, store.RateLimitKey(domain)); err != nil {
		metrics.RecordStorageError("delete")
		t.logger.Warn("Failed to persist record removal", zap.String("domain", domain), zap.Error(err))
	}

	t.publisher.Publish(notify.Message{Event: notify.EventCleared, Domain: domain})
	metrics.SetLiveRecords(len(t.records))
	t.logger.Info("Rate limit cleared", zap.String("domain", domain), zap.Bool("existed", existed))
	return existed, nil
}

// ClearAll removes every record in one backend operation and returns the
// cleared domains, sorted. A single cleared-all message lists them.
func (t *Tracker) ClearAll(ctx context.Context) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	cleared := make(map[string]struct{}, len(t.records))
	for domain := range t.records {
		cleared[domain] = struct{}{}
	}
	t.records = make(map[string]core.RateLimitRecord)

	keys, err := t.backend.DeletePrefix(ctx, store.RateLimitPrefix)
	if err != nil {
		metrics.RecordStorageError("delete_prefix")
		t.logger.Warn("Failed to persist bulk removal", zap.Error(err))
	}
	for _, key := range keys {
		if domain, ok := store.DomainFromKey(key); ok {
			cleared[domain] = struct{}{}
		}
	}

	domains := make([]string, 0, len(cleared))
	for domain := range cleared {
		domains = append(domains, domain)
	}
	sort.Strings(domains)

	if len(domains) > 0 {
		t.publisher.Publish(notify.Message{Event: notify.EventClearedAll, Domains: domains})
	}
	metrics.SetLiveRecords(0)
	t.logger.Info("All rate limits cleared", zap.Int("cleared", len(domains)))
	return domains, nil
}

// Sweep evicts every expired record and returns how many were removed.
func (t *Tracker) Sweep(ctx context.Context) int {
	if ctx == nil {
		ctx = context.Background()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0
	}

	evicted := t.sweepLocked(ctx, t.clock())
	metrics.RecordSweep(evicted)
	return evicted
}

func (t *Tracker) sweepLocked(ctx context.Context, now time.Time) int {
	expired := make([]string, 0)
	for domain, r := range t.records {
		if !r.Live(now) {
			expired = append(expired, domain)
		}
	}
	sort.Strings(expired)
	for _, domain := range expired {
		t.expireLocked(ctx, domain)
	}
	return len(expired)
}

func (t *Tracker) expireLocked(ctx context.Context, domain string) {
	delete(t.records, domain)
	if err := t.backend.Delete(ctx, store.RateLimitKey(domain)); err != nil {
		metrics.RecordStorageError("delete")
		t.logger.Warn("Failed to persist expiry", zap.String("domain", domain), zap.Error(err))
	}
	t.publisher.Publish(notify.Message{Event: notify.EventExpired, Domain: domain})
	metrics.SetLiveRecords(len(t.records))
	t.logger.Debug("Rate limit expired", zap.String("domain", domain))
}

// CollectorConfig returns the current collector configuration.
func (t *Tracker) CollectorConfig() core.CollectorConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.collector
}

// SetCollectorConfig merges update over the current configuration,
// persists it and announces the result.
func (t *Tracker) SetCollectorConfig(ctx context.Context, update core.CollectorConfigUpdate) (core.CollectorConfig, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if update.EndpointURL != nil {
		if err := validateEndpoint(*update.EndpointURL); err != nil {
			return core.CollectorConfig{}, err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return core.CollectorConfig{}, ErrClosed
	}

	next := update.Apply(t.collector)
	t.collector = next
	if err := store.SaveCollectorConfig(ctx, t.backend, next); err != nil {
		metrics.RecordStorageError("put")
		t.logger.Warn("Failed to persist collector config", zap.Error(err))
	}

	cfg := next
	t.publisher.Publish(notify.Message{Event: notify.EventCollectorConfig, Config: &cfg})
	t.logger.Info("Collector config updated",
		zap.String("endpoint_url", next.EndpointURL),
		zap.Bool("enabled", next.Enabled))
	return next, nil
}

func validateEndpoint(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, raw)
	}
	return nil
}

// TestCollector sends a synthetic submission through the normal retry path
// and waits for its outcome.
func (t *Tracker) TestCollector(ctx context.Context) (core.Submission, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return core.Submission{}, ErrClosed
	}
	target := t.collector
	t.mu.Unlock()

	req := collector.Request{
		OrganizationID: TestOrganizationID,
		ResetAt:        t.clock().Add(time.Hour).Unix(),
	}
	if t.submitter == nil || !target.Active() {
		return core.Submission{
			State:          core.SubmissionFailure,
			OrganizationID: req.OrganizationID,
			ResetAt:        req.ResetAt,
			Error:          collector.ErrDisabled.Error(),
		}, collector.ErrDisabled
	}

	t.publishSubmission(core.Submission{
		State:          core.SubmissionPending,
		OrganizationID: req.OrganizationID,
		ResetAt:        req.ResetAt,
	})
	sub, err := t.submitter.Send(ctx, target, req)
	t.publishSubmission(sub)
	return sub, err
}
