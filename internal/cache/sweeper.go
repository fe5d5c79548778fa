package cache

import (
	"context"
	"fmt"
	"log/slog"
	"opshop/internal/clock"
	"time"

	"github.com/robfig/cron/v3"
)

// SweepFunc removes expired state and reports how much it removed.
type SweepFunc func(ctx context.Context, now time.Time) (int, error)

// Sweeper runs cleanup jobs on cron schedules.
type Sweeper struct {
	cron    *cron.Cron
	clock   clock.Clock
	timeout time.Duration
}

// NewSweeper wraps c. Jobs run with a per-run timeout.
func NewSweeper(c *cron.Cron, clk clock.Clock) *Sweeper {
	if clk == nil {
		clk = clock.Real()
	}
	return &Sweeper{
		cron:    c,
		clock:   clk,
		timeout: time.Minute,
	}
}

// Add registers fn under name on schedule (standard cron spec or
// "@every 10m").
func (s *Sweeper) Add(name, schedule string, fn SweepFunc) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.Run(name, fn)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s sweep: %w", name, err)
	}
	slog.Debug("Sweep scheduled", "job", name, "schedule", schedule)
	return nil
}

// AddStore schedules Store.Sweep.
func (s *Sweeper) AddStore(name, schedule string, store Store) error {
	return s.Add(name, schedule, store.Sweep)
}

// Run executes fn once, logging the outcome.
func (s *Sweeper) Run(name string, fn SweepFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	removed, err := fn(ctx, s.clock.Now())
	if err != nil {
		slog.Warn("Sweep failed", "job", name, "error", err)
		return
	}
	if removed > 0 {
		slog.Info("Sweep removed expired entries", "job", name, "removed", removed)
	}
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
