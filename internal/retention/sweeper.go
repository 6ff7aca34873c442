package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper runs the engine's scheduled sweep on a cron schedule
// (e.g. "0 3 * * *" for daily at 3 AM). An empty schedule disables it.
type Sweeper struct {
	engine   *Engine
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

func NewSweeper(engine *Engine, schedule string) *Sweeper {
	return &Sweeper{
		engine:   engine,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "retention.sweeper"),
	}
}

// Start begins scheduled sweeping and stops automatically when ctx is
// cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, scheduler disabled")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.logger.Info("starting scheduled sweep")
		s.engine.Sweep(ctx)
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("sweep scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop halts the scheduler and waits for a sweep in progress to finish
// admitting runs. Admitted runs keep executing under the engine.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("sweep scheduler stopped")
	}
}

// NextRun returns the next scheduled sweep time, if any.
func (s *Sweeper) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil || !s.running {
		return nil
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
