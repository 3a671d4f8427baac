package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ratewatch/ratewatch/internal/observability"
)

// DefaultSweepSchedule evicts expired records once a minute.
const DefaultSweepSchedule = "@every 60s"

// Sweeper runs the expiry sweep on a cron schedule.
type Sweeper struct {
	schedule string
	sweep    func(ctx context.Context) int
	cron     *cron.Cron
	mu       sync.Mutex
	logger   observability.Logger
	running  bool
}

// NewSweeper returns a sweeper invoking sweep on schedule.
func NewSweeper(schedule string, sweep func(ctx context.Context) int) *Sweeper {
	return &Sweeper{
		schedule: schedule,
		sweep:    sweep,
		cron:     cron.New(),
		logger:   observability.Component("tracker.sweeper"),
	}
}

// Start schedules the sweep. An empty schedule disables it.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("Sweep schedule not configured, expired records are only evicted lazily")
		return nil
	}
	if s.running {
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Expiry sweep started", zap.String("schedule", s.schedule))
	return nil
}

func (s *Sweeper) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	evicted := s.sweep(ctx)
	if evicted > 0 {
		s.logger.Info("Expiry sweep evicted records", zap.Int("evicted", evicted))
		return
	}
	s.logger.Debug("Expiry sweep completed, nothing to evict")
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("Expiry sweep stopped")
	}
}

// Running reports whether the schedule is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep, or nil when not running.
func (s *Sweeper) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
