package retention

import (
	"context"
	"log/slog"
	"sync"

	"github.com/poppopjmp/spiderfoot-sub001/internal/event"
	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
)

// Aggregator projects the append-only run history into running totals.
// The cached value is a convenience only: every number is recomputable
// from the terminal non-preview runs, so a crash loses nothing.
type Aggregator struct {
	rules RuleStore
	runs  RunStore

	mu     sync.RWMutex
	cached *model.RetentionStats

	logger *slog.Logger
	stop   func()
}

func NewAggregator(rules RuleStore, runs RunStore) *Aggregator {
	return &Aggregator{
		rules:  rules,
		runs:   runs,
		logger: slog.Default().With("component", "retention.stats"),
	}
}

// Watch refreshes the cache whenever a run reaches a terminal state.
// Preview runs publish no completion events and are excluded from the
// fold either way.
func (a *Aggregator) Watch(bus event.Bus) {
	ch, unsubscribe := bus.Subscribe()
	a.stop = unsubscribe

	go func() {
		for e := range ch {
			if e.Type != event.TypeRunCompleted && e.Type != event.TypeRunFailed {
				continue
			}
			if _, err := a.Recompute(context.Background()); err != nil {
				a.logger.Error("stats recompute failed", "error", err)
			}
		}
	}()
}

// Close stops the event subscription.
func (a *Aggregator) Close() {
	if a.stop != nil {
		a.stop()
	}
}

// Get returns the current stats, computing them on first use.
func (a *Aggregator) Get(ctx context.Context) (model.RetentionStats, error) {
	a.mu.RLock()
	cached := a.cached
	a.mu.RUnlock()

	if cached != nil {
		return *cached, nil
	}
	return a.Recompute(ctx)
}

// Recompute folds the full terminal non-preview run history into fresh
// totals and replaces the cache.
func (a *Aggregator) Recompute(ctx context.Context) (model.RetentionStats, error) {
	totals, err := a.runs.Aggregate(ctx)
	if err != nil {
		return model.RetentionStats{}, err
	}

	ruleCount, err := a.rules.Count(ctx)
	if err != nil {
		return model.RetentionStats{}, err
	}

	stats := model.RetentionStats{
		TotalRules:   ruleCount,
		TotalCleaned: totals.TotalCleaned,
		SpaceFreed:   totals.SpaceFreed,
		LastEnforced: totals.LastEnforced,
	}

	a.mu.Lock()
	a.cached = &stats
	a.mu.Unlock()

	return stats, nil
}
