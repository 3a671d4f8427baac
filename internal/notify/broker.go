// Package notify fans tracker state changes out to UI surfaces.
//
// Delivery is best effort. A subscriber that cannot take a message is logged
// and counted, and the fan-out continues with the next subscriber.
package notify

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ratewatch/ratewatch/internal/core"
	"github.com/ratewatch/ratewatch/internal/metrics"
	"github.com/ratewatch/ratewatch/internal/observability"
)

// Event names carried in Message.Event.
type Event string

const (
	EventUpdated         Event = "updated"
	EventDetected        Event = "detected"
	EventCleared         Event = "cleared"
	EventClearedAll      Event = "cleared-all"
	EventExpired         Event = "expired"
	EventSnapshot        Event = "snapshot"
	EventCollector       Event = "collector"
	EventCollectorConfig Event = "collector-config"
)

var (
	ErrSubscriberBusy   = errors.New("subscriber buffer full")
	ErrSubscriberClosed = errors.New("subscriber closed")
	ErrOriginNotAllowed = errors.New("origin not allowed")
)

// Message is one notification pushed to surfaces.
type Message struct {
	Event      Event                 `json:"event"`
	Domain     string                `json:"domain,omitempty"`
	Domains    []string              `json:"domains,omitempty"`
	Status     *core.Status          `json:"status"`
	Statuses   []core.Status         `json:"statuses,omitempty"`
	Submission *core.Submission      `json:"submission,omitempty"`
	Config     *core.CollectorConfig `json:"config,omitempty"`
	Timestamp  int64                 `json:"timestamp"`
}

// Publisher is what the tracker needs from the broker.
type Publisher interface {
	Publish(msg Message) int
}

// Subscriber receives messages. Deliver must not block.
type Subscriber interface {
	ID() string
	Origin() string
	Deliver(msg Message) error
}

// Broker is an in-process publish/subscribe hub.
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]Subscriber
	allowed []string
	clock   func() time.Time
	logger  observability.Logger
}

// Option configures a Broker.
type Option func(*Broker)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(b *Broker) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger observability.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBroker returns a broker delivering only to subscribers whose origin
// contains one of allowedHosts. An empty list admits every origin.
func NewBroker(allowedHosts []string, opts ...Option) *Broker {
	b := &Broker{
		subs:   make(map[string]Subscriber),
		clock:  time.Now,
		logger: observability.Component("notify"),
	}
	for _, host := range allowedHosts {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			b.allowed = append(b.allowed, host)
		}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allowed reports whether origin matches the allow-list.
func (b *Broker) Allowed(origin string) bool {
	if len(b.allowed) == 0 {
		return true
	}
	origin = strings.ToLower(strings.TrimSpace(origin))
	if origin == "" {
		return false
	}
	for _, host := range b.allowed {
		if strings.Contains(origin, host) {
			return true
		}
	}
	return false
}

// Subscribe registers s and returns a function that removes it.
func (b *Broker) Subscribe(s Subscriber) (func(), error) {
	if s == nil {
		return nil, errors.New("subscriber is required")
	}
	if !b.Allowed(s.Origin()) {
		return nil, ErrOriginNotAllowed
	}

	b.mu.Lock()
	b.subs[s.ID()] = s
	count := len(b.subs)
	b.mu.Unlock()

	metrics.SetSubscribersActive(count)
	b.logger.Debug("Surface subscribed",
		zap.String("subscriber", s.ID()),
		zap.String("origin", s.Origin()))

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(s.ID()) })
	}, nil
}

func (b *Broker) unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	count := len(b.subs)
	b.mu.Unlock()

	metrics.SetSubscribersActive(count)
	b.logger.Debug("Surface unsubscribed", zap.String("subscriber", id))
}

// Subscribers returns the number of registered subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers msg to every subscriber and returns how many accepted it.
func (b *Broker) Publish(msg Message) int {
	if msg.Timestamp == 0 {
		msg.Timestamp = b.clock().UnixMilli()
	}

	b.mu.RLock()
	targets := make([]Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].ID() < targets[j].ID() })

	delivered := 0
	for _, s := range targets {
		if err := b.deliver(s, msg); err != nil {
			reason := "error"
			switch {
			case errors.Is(err, ErrSubscriberBusy):
				reason = "busy"
			case errors.Is(err, ErrSubscriberClosed):
				reason = "closed"
			}
			metrics.RecordDeliveryFailure(reason)
			b.logger.Warn("Surface delivery failed",
				zap.String("subscriber", s.ID()),
				zap.String("event", string(msg.Event)),
				zap.String("domain", msg.Domain),
				zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

// deliver isolates a misbehaving subscriber from the fan-out loop.
func (b *Broker) deliver(s Subscriber, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("subscriber panicked")
		}
	}()
	return s.Deliver(msg)
}
