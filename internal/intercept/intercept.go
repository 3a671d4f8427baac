// Package intercept observes outbound HTTP traffic for 429 responses.
//
// The Interceptor wraps the two request primitives a client can use, an
// http.RoundTripper and a Doer, without changing what the caller receives.
// Detections are handed to a single ordered dispatch queue so events for one
// domain reach the sink in the order they were observed.
package intercept

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/ratewatch/ratewatch/internal/core"
	"github.com/ratewatch/ratewatch/internal/metrics"
	"github.com/ratewatch/ratewatch/internal/observability"
)

const (
	DefaultQueueSize    = 256
	DefaultMaxBodyBytes = 1 << 20
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("interceptor is closed")

// ErrQueueFull is returned by Dispatch when the queue cannot take the event.
var ErrQueueFull = errors.New("dispatch queue is full")

// Sink receives detection events. *tracker.Tracker satisfies it.
type Sink interface {
	Ingest(ctx context.Context, ev core.DetectionEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev core.DetectionEvent) error

func (f SinkFunc) Ingest(ctx context.Context, ev core.DetectionEvent) error { return f(ctx, ev) }

// Interceptor inspects responses and dispatches detection events.
type Interceptor struct {
	sink    Sink
	maxBody int64
	clock   func() time.Time
	logger  observability.Logger

	mu     sync.RWMutex
	queue  chan core.DetectionEvent
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithQueueSize sets the dispatch queue capacity.
func WithQueueSize(size int) Option {
	return func(i *Interceptor) {
		if size > 0 {
			i.queue = make(chan core.DetectionEvent, size)
		}
	}
}

// WithMaxBodyBytes caps how much of a 429 body is buffered for inspection.
func WithMaxBodyBytes(n int64) Option {
	return func(i *Interceptor) {
		if n > 0 {
			i.maxBody = n
		}
	}
}

// WithClock overrides the time source used for timestamps and relative headers.
func WithClock(clock func() time.Time) Option {
	return func(i *Interceptor) {
		if clock != nil {
			i.clock = clock
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger observability.Logger) Option {
	return func(i *Interceptor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New starts an Interceptor delivering to sink.
func New(sink Sink, opts ...Option) *Interceptor {
	i := &Interceptor{
		sink:    sink,
		maxBody: DefaultMaxBodyBytes,
		clock:   time.Now,
		logger:  observability.Component("intercept"),
		queue:   make(chan core.DetectionEvent, DefaultQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.ctx, i.cancel = context.WithCancel(context.Background())

	go i.run()
	return i
}

// NewFromConfig builds an Interceptor from intercept settings.
func NewFromConfig(sink Sink, cfg config.InterceptConfig, opts ...Option) *Interceptor {
	base := []Option{WithQueueSize(cfg.QueueSize), WithMaxBodyBytes(cfg.MaxBodyBytes)}
	return New(sink, append(base, opts...)...)
}

func (i *Interceptor) run() {
	defer close(i.done)
	for ev := range i.queue {
		if i.sink == nil {
			continue
		}
		if err := i.sink.Ingest(i.ctx, ev); err != nil {
			i.logger.Warn("Detection event not ingested",
				zap.String("event_id", ev.ID),
				zap.String("domain", ev.Domain),
				zap.Error(err))
		}
	}
}

// Dispatch enqueues ev without blocking.
func (i *Interceptor) Dispatch(ev core.DetectionEvent) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return ErrClosed
	}

	select {
	case i.queue <- ev:
		return nil
	default:
		metrics.RecordInterceptDrop()
		i.logger.Warn("Dispatch queue full, dropping detection",
			zap.String("event_id", ev.ID),
			zap.String("domain", ev.Domain))
		return ErrQueueFull
	}
}

// Close stops accepting events and waits until queued events are delivered
// or ctx is done, in which case the sink context is cancelled.
func (i *Interceptor) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	i.mu.Lock()
	if !i.closed {
		i.closed = true
		close(i.queue)
	}
	i.mu.Unlock()

	select {
	case <-i.done:
		i.cancel()
		return nil
	case <-ctx.Done():
		i.cancel()
		<-i.done
		return ctx.Err()
	}
}
