package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/poppopjmp/spiderfoot-sub001/internal/event"
	"github.com/poppopjmp/spiderfoot-sub001/internal/export"
	"github.com/poppopjmp/spiderfoot-sub001/internal/metrics"
	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
	"github.com/poppopjmp/spiderfoot-sub001/internal/provider"
)

// Config bounds the engine's concurrency and run duration.
type Config struct {
	// MaxConcurrentRuns caps runs across distinct rules. Default 4.
	MaxConcurrentRuns int
	// RunTimeout marks a run failed once exceeded, preserving partial
	// per-resource results. Default 30 minutes.
	RunTimeout time.Duration
}

// Engine orchestrates enforcement runs: it admits triggers, serializes per
// rule, fixes the resource snapshot at run start, drives the executor and
// records the auditable run result.
type Engine struct {
	rules    RuleStore
	runs     RunStore
	provider provider.Provider
	executor *Executor
	bus      event.Bus
	metrics  *metrics.Metrics
	logger   *slog.Logger

	locks      *ruleLocks
	sem        chan struct{}
	runTimeout time.Duration
	now        func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc
}

func NewEngine(rules RuleStore, runs RunStore, p provider.Provider, sink export.Sink, bus event.Bus, m *metrics.Metrics, cfg Config) *Engine {
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 4
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Minute
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Engine{
		rules:      rules,
		runs:       runs,
		provider:   p,
		executor:   NewExecutor(p, sink),
		bus:        bus,
		metrics:    m,
		logger:     slog.Default().With("component", "retention.engine"),
		locks:      newRuleLocks(),
		sem:        make(chan struct{}, cfg.MaxConcurrentRuns),
		runTimeout: cfg.RunTimeout,
		now:        time.Now,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// SetClock overrides the engine's time source. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Busy reports whether a rule currently holds its run token.
func (e *Engine) Busy(ruleID string) bool { return e.locks.busy(ruleID) }

// Enforce admits one run for the rule and executes it asynchronously. A
// rule with an active run is rejected with model.ErrRuleBusy, never
// queued. The returned run is the pending audit record; callers poll it.
func (e *Engine) Enforce(ctx context.Context, ruleID string, trigger model.RunTrigger) (model.EnforcementRun, error) {
	rule, err := e.rules.Get(ctx, ruleID)
	if err != nil {
		return model.EnforcementRun{}, err
	}

	if !e.locks.tryAcquire(rule.ID) {
		return model.EnforcementRun{}, model.ErrRuleBusy
	}

	select {
	case e.sem <- struct{}{}:
	default:
		e.locks.release(rule.ID)
		return model.EnforcementRun{}, model.ErrRunLimit
	}

	run := model.EnforcementRun{
		ID:        uuid.NewString(),
		RuleID:    rule.ID,
		Trigger:   trigger,
		Status:    model.RunPending,
		StartedAt: e.now().UTC(),
	}
	if err := e.runs.Create(ctx, run); err != nil {
		<-e.sem
		e.locks.release(rule.ID)
		return model.EnforcementRun{}, fmt.Errorf("record run: %w", err)
	}

	runCtx, cancel := context.WithTimeout(e.baseCtx, e.runTimeout)
	e.cancelMu.Lock()
	e.cancels[run.ID] = cancel
	e.cancelMu.Unlock()

	e.wg.Add(1)
	go func() {
		defer func() {
			e.cancelMu.Lock()
			delete(e.cancels, run.ID)
			e.cancelMu.Unlock()
			cancel()
			<-e.sem
			e.locks.release(rule.ID)
			e.wg.Done()
		}()
		e.execute(runCtx, rule, run)
	}()

	return run, nil
}

// execute drives one admitted run to its terminal state.
func (e *Engine) execute(runCtx context.Context, rule model.RetentionRule, run model.EnforcementRun) {
	// Store writes use a fresh context: a cancelled run must still be able
	// to persist its terminal state.
	storeCtx := context.Background()

	run.Status = model.RunRunning
	if err := e.runs.Start(storeCtx, run.ID); err != nil {
		e.logger.Error("failed to mark run running", "run_id", run.ID, "error", err)
	}
	e.publish(event.TypeRunStarted, run)

	now := e.now().UTC()
	snapshot, err := e.provider.Snapshot(runCtx, rule.ResourceType, now)
	if err != nil {
		e.fail(storeCtx, run, fmt.Sprintf("snapshot fetch: %v", err))
		return
	}

	matched, err := Match(rule, snapshot, now)
	if err != nil {
		e.fail(storeCtx, run, fmt.Sprintf("criteria evaluation: %v", err))
		return
	}
	run.MatchedCount = len(matched.Matched)

	var pending map[string]string
	if rule.Action == model.ActionExportThenDelete {
		pending, err = e.runs.PendingDeletes(runCtx, rule.ID)
		if err != nil {
			e.fail(storeCtx, run, fmt.Sprintf("pending delete lookup: %v", err))
			return
		}
	}

	result := e.executor.Execute(runCtx, rule, matched.Matched, pending)
	run.SucceededCount = result.Succeeded
	run.FailedCount = result.Failed
	run.SpaceFreedBytes = result.SpaceFreed
	run.Errors = result.Errors

	switch {
	case result.Interrupted && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		run.Status = model.RunFailed
		run.FaultReason = "run exceeded maximum duration"
	case result.Interrupted:
		run.Status = model.RunFailed
		run.FaultReason = "run cancelled"
	case result.Failed > 0:
		run.Status = model.RunCompletedWithErrors
	default:
		run.Status = model.RunCompleted
	}

	e.finalize(storeCtx, rule, run)
}

// fail marks a run failed for a run-level fault not attributable to any
// individual resource.
func (e *Engine) fail(storeCtx context.Context, run model.EnforcementRun, reason string) {
	run.Status = model.RunFailed
	run.FaultReason = reason
	e.finalize(storeCtx, model.RetentionRule{ID: run.RuleID}, run)
}

func (e *Engine) finalize(storeCtx context.Context, rule model.RetentionRule, run model.EnforcementRun) {
	ended := e.now().UTC()
	run.EndedAt = &ended

	if err := e.runs.Finalize(storeCtx, run); err != nil {
		e.logger.Error("failed to finalize run", "run_id", run.ID, "error", err)
	}
	if len(run.Errors) > 0 {
		if err := e.runs.AppendErrors(storeCtx, run.ID, run.Errors); err != nil {
			e.logger.Error("failed to record run errors", "run_id", run.ID, "error", err)
		}
	}

	e.observe(rule, run)

	if run.Status == model.RunFailed {
		e.logger.Warn("run failed",
			"run_id", run.ID, "rule_id", run.RuleID, "reason", run.FaultReason,
			"matched", run.MatchedCount, "succeeded", run.SucceededCount, "failed", run.FailedCount,
		)
		e.publish(event.TypeRunFailed, run)
		return
	}

	e.logger.Info("run completed",
		"run_id", run.ID, "rule_id", run.RuleID, "status", run.Status,
		"matched", run.MatchedCount, "succeeded", run.SucceededCount,
		"failed", run.FailedCount, "space_freed_bytes", run.SpaceFreedBytes,
	)
	e.publish(event.TypeRunCompleted, run)
}

func (e *Engine) observe(rule model.RetentionRule, run model.EnforcementRun) {
	if e.metrics == nil {
		return
	}

	e.metrics.RunsTotal.WithLabelValues(string(run.Trigger), string(run.Status)).Inc()
	if rule.Action != "" {
		e.metrics.ResourcesTotal.WithLabelValues(string(rule.Action), "success").Add(float64(run.SucceededCount))
		e.metrics.ResourcesTotal.WithLabelValues(string(rule.Action), "failure").Add(float64(run.FailedCount))
	}
	e.metrics.SpaceFreedBytes.Add(float64(run.SpaceFreedBytes))
	if run.EndedAt != nil {
		e.metrics.RunDuration.Observe(run.EndedAt.Sub(run.StartedAt).Seconds())
	}
}

func (e *Engine) publish(t event.Type, run model.EnforcementRun) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(event.Event{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   run,
		Timestamp: e.now().UTC().Format(time.RFC3339Nano),
	})
}

// Preview evaluates a rule's criteria against a fresh snapshot without
// invoking any action. The result is advisory: enforcement re-matches at
// its own snapshot. Preview runs are recorded for audit with
// trigger=preview and are never folded into stats.
func (e *Engine) Preview(ctx context.Context, ruleID string) (model.PreviewResult, error) {
	rule, err := e.rules.Get(ctx, ruleID)
	if err != nil {
		return model.PreviewResult{}, err
	}

	now := e.now().UTC()
	snapshot, err := e.provider.Snapshot(ctx, rule.ResourceType, now)
	if err != nil {
		return model.PreviewResult{}, fmt.Errorf("snapshot fetch: %w", err)
	}

	matched, err := Match(rule, snapshot, now)
	if err != nil {
		return model.PreviewResult{}, err
	}

	ids := make([]string, 0, len(matched.Matched))
	for _, res := range matched.Matched {
		ids = append(ids, res.ResourceID)
	}

	run := model.EnforcementRun{
		ID:           uuid.NewString(),
		RuleID:       rule.ID,
		Trigger:      model.TriggerPreview,
		Status:       model.RunCompleted,
		StartedAt:    now,
		EndedAt:      &now,
		MatchedCount: len(ids),
	}
	if err := e.runs.Create(ctx, run); err != nil {
		return model.PreviewResult{}, fmt.Errorf("record preview run: %w", err)
	}
	if err := e.runs.Finalize(ctx, run); err != nil {
		return model.PreviewResult{}, fmt.Errorf("finalize preview run: %w", err)
	}

	return model.PreviewResult{
		RuleID:       rule.ID,
		ResourceType: rule.ResourceType,
		EvaluatedAt:  now,
		MatchedCount: len(ids),
		MatchedIDs:   ids,
		TotalBytes:   matched.TotalBytes,
		Rationale:    matched.Rationale,
	}, nil
}

// Sweep admits one run per enabled rule in ascending priority order. Busy
// rules are skipped, not queued; rules run concurrently with each other up
// to the engine's concurrency bound.
func (e *Engine) Sweep(ctx context.Context) {
	rules, err := e.rules.ListEnabledByPriority(ctx)
	if err != nil {
		e.logger.Error("sweep: listing enabled rules failed", "error", err)
		return
	}

	admitted := 0
	for _, rule := range rules {
		_, err := e.Enforce(ctx, rule.ID, model.TriggerScheduled)
		switch {
		case errors.Is(err, model.ErrRuleBusy):
			e.logger.Debug("sweep: rule busy, skipping", "rule_id", rule.ID)
		case errors.Is(err, model.ErrRunLimit):
			e.logger.Warn("sweep: concurrent run limit reached, skipping", "rule_id", rule.ID)
		case err != nil:
			e.logger.Error("sweep: admitting rule failed", "rule_id", rule.ID, "error", err)
		default:
			admitted++
		}
	}

	e.logger.Info("sweep admitted runs", "enabled_rules", len(rules), "admitted", admitted)
}

// Cancel asks a running run to stop at its next per-resource checkpoint.
// Completed per-resource actions are not rolled back.
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	run, err := e.runs.Get(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return model.ErrRunNotRunning
	}

	e.cancelMu.Lock()
	cancel, ok := e.cancels[runID]
	e.cancelMu.Unlock()
	if !ok {
		return model.ErrRunNotRunning
	}

	cancel()
	return nil
}

// Stop cancels all in-flight runs and waits for them to finalize.
func (e *Engine) Stop() {
	e.baseCancel()
	e.wg.Wait()
}
