// Package surface renders rate limit state for a person watching it.
package surface

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ratewatch/ratewatch/internal/core"
	"github.com/ratewatch/ratewatch/internal/notify"
	"github.com/ratewatch/ratewatch/internal/observability"
)

const (
	DefaultTick  = time.Second
	DefaultGrace = 2 * time.Second
)

// State is what a countdown is currently showing.
type State string

const (
	StateCounting State = "counting"
	StateReset    State = "reset"
	StateUnknown  State = "unknown"
	StateHidden   State = "hidden"
)

// Frame is one rendering of the countdown.
type Frame struct {
	Domain      string
	State       State
	Text        string
	Detail      string
	RemainingMs int64
}

// Renderer draws a frame. It is called from the countdown goroutine.
type Renderer func(Frame)

// ClearFunc asks the state owner to drop domain's record.
type ClearFunc func(ctx context.Context, domain string) error

// Countdown shows the time left until a domain's limit resets. When the
// instant passes it shows "Limit Reset!", then after a grace period hides
// itself and requests a clear.
type Countdown struct {
	render Renderer
	clear  ClearFunc
	domain string
	clock  func() time.Time
	tick   time.Duration
	grace  time.Duration
	logger observability.Logger

	mu      sync.Mutex
	current string
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Countdown.
type Option func(*Countdown)

// WithDomain restricts the countdown to one domain. Without it the most
// recent domain wins.
func WithDomain(domain string) Option {
	return func(c *Countdown) { c.domain = domain }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *Countdown) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithTick sets the refresh interval.
func WithTick(d time.Duration) Option {
	return func(c *Countdown) {
		if d > 0 {
			c.tick = d
		}
	}
}

// WithGrace sets how long "Limit Reset!" stays up before the clear request.
func WithGrace(d time.Duration) Option {
	return func(c *Countdown) {
		if d >= 0 {
			c.grace = d
		}
	}
}

// NewCountdown returns an idle countdown. clear may be nil.
func NewCountdown(render Renderer, clear ClearFunc, opts ...Option) *Countdown {
	c := &Countdown{
		render: render,
		clear:  clear,
		clock:  time.Now,
		tick:   DefaultTick,
		grace:  DefaultGrace,
		logger: observability.Component("surface"),
	}
	if c.render == nil {
		c.render = func(Frame) {}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RemainingText formats a positive remaining duration the way the
// countdown shows it.
func RemainingText(ms int64) string {
	minutes := ms / 60000
	seconds := (ms % 60000) / 1000
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds remaining", minutes, seconds)
	}
	return fmt.Sprintf("%ds remaining", seconds)
}

func label(domain string) string {
	if domain == "" {
		return "API"
	}
	return domain
}

// Show starts counting down to resetAt (Unix seconds) for domain, replacing
// whatever was shown. A nil resetAt shows "Reset time unknown".
func (c *Countdown) Show(domain string, resetAt *int64) {
	if c.domain != "" && domain != c.domain {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.current = domain

	if resetAt == nil {
		c.render(Frame{
			Domain: domain,
			State:  StateUnknown,
			Text:   "Rate limited",
			Detail: label(domain) + " - Reset time unknown",
		})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.done, domain, *resetAt*1000)
}

func (c *Countdown) run(ctx context.Context, done chan struct{}, domain string, resetTime int64) {
	defer close(done)

	detail := label(domain) + " - Resets at " + time.UnixMilli(resetTime).Format("15:04:05")
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		remaining := resetTime - c.clock().UnixMilli()
		if remaining <= 0 {
			break
		}
		c.render(Frame{
			Domain:      domain,
			State:       StateCounting,
			Text:        RemainingText(remaining),
			Detail:      detail,
			RemainingMs: remaining,
		})

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}

	c.render(Frame{Domain: domain, State: StateReset, Text: "Limit Reset!", Detail: detail})

	grace := time.NewTimer(c.grace)
	defer grace.Stop()
	select {
	case <-ctx.Done():
		return
	case <-grace.C:
	}

	c.render(Frame{Domain: domain, State: StateHidden})
	if c.clear == nil {
		return
	}
	if err := c.clear(ctx, domain); err != nil {
		c.logger.Warn("Clear request after reset failed", zap.String("domain", domain), zap.Error(err))
	}
}

// Hide stops the countdown for domain and hides it. An empty domain hides
// whatever is shown.
func (c *Countdown) Hide(domain string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == "" || (domain != "" && domain != c.current) {
		return
	}
	c.stopLocked()
	c.render(Frame{Domain: c.current, State: StateHidden})
	c.current = ""
}

// Stop cancels all timers and waits for the countdown goroutine to exit.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Countdown) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
}

// Apply updates the countdown from a broker message.
func (c *Countdown) Apply(msg notify.Message) {
	switch msg.Event {
	case notify.EventUpdated:
		if msg.Status != nil {
			c.Show(msg.Domain, msg.Status.ResetAt)
		}
	case notify.EventDetected:
		c.Show(msg.Domain, nil)
	case notify.EventCleared, notify.EventExpired:
		c.Hide(msg.Domain)
	case notify.EventClearedAll:
		c.Hide("")
	case notify.EventSnapshot:
		c.applySnapshot(msg.Statuses)
	}
}

// applySnapshot replaces what is shown with the snapshot. A domain on screen
// but absent from the snapshot was cleared while the stream was down.
func (c *Countdown) applySnapshot(statuses []core.Status) {
	var visible []core.Status
	for _, status := range statuses {
		if c.domain == "" || status.Domain == c.domain {
			visible = append(visible, status)
		}
	}

	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current != "" && !slices.ContainsFunc(visible, func(s core.Status) bool { return s.Domain == current }) {
		c.Hide("")
	}
	for _, status := range visible {
		c.Show(status.Domain, status.ResetAt)
	}
}
