package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/poppopjmp/spiderfoot-sub001/internal/event"
	"github.com/poppopjmp/spiderfoot-sub001/internal/export"
	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
	"github.com/poppopjmp/spiderfoot-sub001/internal/provider"
)

type engineFixture struct {
	rules    *MemRuleStore
	runs     *MemRunStore
	provider *provider.MemoryProvider
	sink     *export.MemorySink
	bus      *event.InMemoryBus
	engine   *Engine
}

func newEngineFixture(t *testing.T, cfg Config) *engineFixture {
	t.Helper()

	f := &engineFixture{
		rules:    NewMemRuleStore(),
		runs:     NewMemRunStore(),
		provider: provider.NewMemoryProvider(),
		sink:     export.NewMemorySink(),
		bus:      event.NewBus(),
	}
	f.engine = NewEngine(f.rules, f.runs, f.provider, f.sink, f.bus, nil, cfg)
	t.Cleanup(f.engine.Stop)

	return f
}

func (f *engineFixture) addRule(t *testing.T, rule model.RetentionRule) model.RetentionRule {
	t.Helper()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	require.NoError(t, f.rules.Create(context.Background(), rule))
	return rule
}

func waitTerminal(t *testing.T, runs RunStore, runID string) model.EnforcementRun {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := runs.Get(context.Background(), runID)
		require.NoError(t, err)
		if run.Status.Terminal() {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("run %s never reached a terminal state", runID)
	return model.EnforcementRun{}
}

func TestEnforceDeletesExpiredScans(t *testing.T) {
	f := newEngineFixture(t, Config{})

	now := time.Now().UTC()
	ages := []int{100, 95, 91, 30, 10}
	ids := []string{"s-100", "s-95", "s-91", "s-30", "s-10"}
	for i, id := range ids {
		f.provider.Put(model.ResourceDescriptor{
			ResourceType: model.ResourceScan,
			ResourceID:   id,
			CreatedAt:    now.AddDate(0, 0, -ages[i]),
			SizeBytes:    1000,
			Status:       "completed",
		}, []byte("payload"))
	}

	rule := f.addRule(t, model.RetentionRule{
		ID:           "rule-1",
		Name:         "expire scans after 90 days",
		ResourceType: model.ResourceScan,
		Action:       model.ActionDelete,
		Enabled:      true,
		Criteria:     []model.RuleCriterion{{Type: model.CriterionAge, Value: "90"}},
	})

	run, err := f.engine.Enforce(context.Background(), rule.ID, model.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, model.RunPending, run.Status)

	done := waitTerminal(t, f.runs, run.ID)
	assert.Equal(t, model.RunCompleted, done.Status)
	assert.Equal(t, 3, done.MatchedCount)
	assert.Equal(t, 3, done.SucceededCount)
	assert.Equal(t, 0, done.FailedCount)
	assert.Equal(t, int64(3000), done.SpaceFreedBytes)
	require.NotNil(t, done.EndedAt)

	assert.False(t, f.provider.Exists(model.ResourceScan, "s-100"))
	assert.False(t, f.provider.Exists(model.ResourceScan, "s-95"))
	assert.False(t, f.provider.Exists(model.ResourceScan, "s-91"))
	assert.True(t, f.provider.Exists(model.ResourceScan, "s-30"))
	assert.True(t, f.provider.Exists(model.ResourceScan, "s-10"))

	assert.False(t, f.engine.Busy(rule.ID))
}

// lateInsertProvider adds one resource immediately after the snapshot is
// captured, simulating a write racing the run.
type lateInsertProvider struct {
	*provider.MemoryProvider
	late    model.ResourceDescriptor
	payload []byte
	once    sync.Once
}

func (p *lateInsertProvider) Snapshot(ctx context.Context, resourceType model.ResourceType, asOf time.Time) ([]model.ResourceDescriptor, error) {
	snapshot, err := p.MemoryProvider.Snapshot(ctx, resourceType, asOf)
	p.once.Do(func() { p.Put(p.late, p.payload) })
	return snapshot, err
}

func TestEnforceIgnoresResourcesCreatedAfterSnapshot(t *testing.T) {
	now := time.Now().UTC()

	// The late scan satisfies the rule's criteria just as well as the old
	// one; only its arrival time differs.
	lateProvider := &lateInsertProvider{
		MemoryProvider: provider.NewMemoryProvider(),
		late: model.ResourceDescriptor{
			ResourceType: model.ResourceScan,
			ResourceID:   "late",
			CreatedAt:    now.AddDate(0, 0, -100),
			SizeBytes:    1000,
			Status:       "completed",
		},
		payload: []byte("late payload"),
	}
	lateProvider.Put(model.ResourceDescriptor{
		ResourceType: model.ResourceScan,
		ResourceID:   "old",
		CreatedAt:    now.AddDate(0, 0, -100),
		SizeBytes:    1000,
		Status:       "completed",
	}, []byte("old payload"))

	rules := NewMemRuleStore()
	runs := NewMemRunStore()
	engine := NewEngine(rules, runs, lateProvider, export.NewMemorySink(), nil, nil, Config{})
	t.Cleanup(engine.Stop)

	rule := model.RetentionRule{
		ID:           "rule-1",
		Name:         "expire scans after 90 days",
		ResourceType: model.ResourceScan,
		Action:       model.ActionDelete,
		Enabled:      true,
		Criteria:     []model.RuleCriterion{{Type: model.CriterionAge, Value: "90"}},
		CreatedAt:    now,
	}
	require.NoError(t, rules.Create(context.Background(), rule))

	run, err := engine.Enforce(context.Background(), rule.ID, model.TriggerManual)
	require.NoError(t, err)

	done := waitTerminal(t, runs, run.ID)
	assert.Equal(t, model.RunCompleted, done.Status)
	assert.Equal(t, 1, done.MatchedCount)
	assert.Equal(t, 1, done.SucceededCount)

	// The snapshot fixed the run's universe: the resource written after
	// capture survives untouched even though it satisfies every criterion.
	assert.False(t, lateProvider.Exists(model.ResourceScan, "old"))
	assert.True(t, lateProvider.Exists(model.ResourceScan, "late"))
}

func TestEnforceUnknownRule(t *testing.T) {
	f := newEngineFixture(t, Config{})

	_, err := f.engine.Enforce(context.Background(), "missing", model.TriggerManual)
	assert.ErrorIs(t, err, model.ErrRuleNotFound)
}

// gatedProvider blocks Snapshot until released so a run can be held open.
type gatedProvider struct {
	*provider.MemoryProvider
	gate chan struct{}
}

func (g *gatedProvider) Snapshot(ctx context.Context, resourceType model.ResourceType, asOf time.Time) ([]model.ResourceDescriptor, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.MemoryProvider.Snapshot(ctx, resourceType, asOf)
}

func TestEnforceRejectsBusyRule(t *testing.T) {
	rules := NewMemRuleStore()
	runs := NewMemRunStore()
	gated := &gatedProvider{MemoryProvider: provider.NewMemoryProvider(), gate: make(chan struct{})}
	engine := NewEngine(rules, runs, gated, export.NewMemorySink(), nil, nil, Config{})

	rule := model.RetentionRule{
		ID:           "rule-1",
		Name:         "r",
		ResourceType: model.ResourceScan,
		Action:       model.ActionDelete,
		Enabled:      true,
		Criteria:     []model.RuleCriterion{{Type: model.CriterionAge, Value: "1"}},
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, rules.Create(context.Background(), rule))

	first, err := engine.Enforce(context.Background(), rule.ID, model.TriggerManual)
	require.NoError(t, err)
	assert.True(t, engine.Busy(rule.ID))

	// Second trigger while the first run holds the rule token.
	_, err = engine.Enforce(context.Background(), rule.ID, model.TriggerManual)
	assert.ErrorIs(t, err, model.ErrRuleBusy)

	close(gated.gate)
	waitTerminal(t, runs, first.ID)
	engine.Stop()

	assert.False(t, engine.Busy(rule.ID))
}

func TestEnforceConcurrentRunLimit(t *testing.T) {
	rules := NewMemRuleStore()
	runs := NewMemRunStore()
	gated := &gatedProvider{MemoryProvider: provider.NewMemoryProvider(), gate: make(chan struct{})}
	engine := NewEngine(rules, runs, gated, export.NewMemorySink(), nil, nil, Config{MaxConcurrentRuns: 1})

	for _, id := range []string{"rule-1", "rule-2"} {
		require.NoError(t, rules.Create(context.Background(), model.RetentionRule{
			ID:           id,
			Name:         id,
			ResourceType: model.ResourceScan,
			Action:       model.ActionDelete,
			Enabled:      true,
			Criteria:     []model.RuleCriterion{{Type: model.CriterionAge, Value: "1"}},
			CreatedAt:    time.Now().UTC(),
		}))
	}

	first, err := engine.Enforce(context.Background(), "rule-1", model.TriggerManual)
	require.NoError(t, err)

	_, err = engine.Enforce(context.Background(), "rule-2", model.TriggerManual)
	assert.ErrorIs(t, err, model.ErrRunLimit)
	// The rejected rule must not be left holding its token.
	assert.False(t, engine.Busy("rule-2"))

	close(gated.gate)
	waitTerminal(t, runs, first.ID)
	engine.Stop()
}

func TestPreviewDoesNotMutate(t *testing.T) {
	f := newEngineFixture(t, Config{})

	now := time.Now().UTC()
	f.provider.Put(model.ResourceDescriptor{
		ResourceType: model.ResourceScan,
		ResourceID:   "s1",
		CreatedAt:    now.AddDate(0, 0, -100),
		SizeBytes:    4096,
		Status:       "completed",
	}, []byte("payload"))

	rule := f.addRule(t, model.RetentionRule{
		ID:           "rule-1",
		Name:         "r",
		ResourceType: model.ResourceScan,
		Action:       model.ActionDelete,
		Enabled:      true,
		Criteria:     []model.RuleCriterion{{Type: model.CriterionAge, Value: "90"}},
	})

	result, err := f.engine.Preview(context.Background(), rule.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.MatchedCount)
	assert.Equal(t, []string{"s1"}, result.MatchedIDs)
	assert.Equal(t, int64(4096), result.TotalBytes)
	assert.NotEmpty(t, result.Rationale["s1"])

	// The corpus is untouched and nothing was exported.
	assert.True(t, f.provider.Exists(model.ResourceScan, "s1"))
	assert.Zero(t, f.sink.Len())

	// The preview run is auditable but excluded from totals.
	listed, _, err := f.runs.List(context.Background(), model.RunQuery{RuleID: rule.ID})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, model.TriggerPreview, listed[0].Trigger)

	totals, err := f.runs.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, totals.TotalCleaned)
	assert.Nil(t, totals.LastEnforced)
}

func TestSweepSkipsDisabledRules(t *testing.T) {
	f := newEngineFixture(t, Config{})

	f.addRule(t, model.RetentionRule{
		ID:           "enabled-rule",
		Name:         "enabled",
		ResourceType: model.ResourceScan,
		Action:       model.ActionDelete,
		Enabled:      true,
		Priority:     1,
		Criteria:     []model.RuleCriterion{{Type: model.CriterionAge, Value: "90"}},
	})
	f.addRule(t, model.RetentionRule{
		ID:           "disabled-rule",
		Name:         "disabled",
		ResourceType: model.ResourceScan,
		Action:       model.ActionDelete,
		Enabled:      false,
		Priority:     2,
		Criteria:     []model.RuleCriterion{{Type: model.CriterionAge, Value: "90"}},
	})

	f.engine.Sweep(context.Background())
	f.engine.Stop()

	all, _, err := f.runs.List(context.Background(), model.RunQuery{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "enabled-rule", all[0].RuleID)
	assert.Equal(t, model.TriggerScheduled, all[0].Trigger)
}

func TestCancelRun(t *testing.T) {
	rules := NewMemRuleStore()
	runs := NewMemRunStore()
	gated := &gatedProvider{MemoryProvider: provider.NewMemoryProvider(), gate: make(chan struct{})}
	engine := NewEngine(rules, runs, gated, export.NewMemorySink(), nil, nil, Config{})

	rule := model.RetentionRule{
		ID:           "rule-1",
		Name:         "r",
		ResourceType: model.ResourceScan,
		Action:       model.ActionDelete,
		Enabled:      true,
		Criteria:     []model.RuleCriterion{{Type: model.CriterionAge, Value: "1"}},
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, rules.Create(context.Background(), rule))

	run, err := engine.Enforce(context.Background(), rule.ID, model.TriggerManual)
	require.NoError(t, err)

	require.NoError(t, engine.Cancel(context.Background(), run.ID))

	done := waitTerminal(t, runs, run.ID)
	assert.Equal(t, model.RunFailed, done.Status)
	engine.Stop()
}

func TestCancelTerminalRun(t *testing.T) {
	f := newEngineFixture(t, Config{})

	rule := f.addRule(t, model.RetentionRule{
		ID:           "rule-1",
		Name:         "r",
		ResourceType: model.ResourceScan,
		Action:       model.ActionDelete,
		Enabled:      true,
		Criteria:     []model.RuleCriterion{{Type: model.CriterionAge, Value: "90"}},
	})

	run, err := f.engine.Enforce(context.Background(), rule.ID, model.TriggerManual)
	require.NoError(t, err)
	waitTerminal(t, f.runs, run.ID)

	err = f.engine.Cancel(context.Background(), run.ID)
	assert.ErrorIs(t, err, model.ErrRunNotRunning)
}

func TestRunTimeoutMarksRunFailed(t *testing.T) {
	rules := NewMemRuleStore()
	runs := NewMemRunStore()
	gated := &gatedProvider{MemoryProvider: provider.NewMemoryProvider(), gate: make(chan struct{})}
	engine := NewEngine(rules, runs, gated, export.NewMemorySink(), nil, nil, Config{RunTimeout: 20 * time.Millisecond})

	rule := model.RetentionRule{
		ID:           "rule-1",
		Name:         "r",
		ResourceType: model.ResourceScan,
		Action:       model.ActionDelete,
		Enabled:      true,
		Criteria:     []model.RuleCriterion{{Type: model.CriterionAge, Value: "1"}},
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, rules.Create(context.Background(), rule))

	run, err := engine.Enforce(context.Background(), rule.ID, model.TriggerManual)
	require.NoError(t, err)

	done := waitTerminal(t, runs, run.ID)
	assert.Equal(t, model.RunFailed, done.Status)
	assert.NotEmpty(t, done.FaultReason)
	engine.Stop()
}

func TestCompletedWithErrors(t *testing.T) {
	rules := NewMemRuleStore()
	runs := NewMemRunStore()
	mockProvider := new(provider.MockProvider)
	engine := NewEngine(rules, runs, mockProvider, export.NewMemorySink(), nil, nil, Config{})
	t.Cleanup(engine.Stop)

	now := time.Now().UTC()
	snapshot := []model.ResourceDescriptor{
		{ResourceType: model.ResourceScan, ResourceID: "s1", CreatedAt: now.AddDate(0, 0, -100), SizeBytes: 100},
		{ResourceType: model.ResourceScan, ResourceID: "s2", CreatedAt: now.AddDate(0, 0, -100), SizeBytes: 200},
	}
	mockProvider.On("Snapshot", mock.Anything, model.ResourceScan, mock.Anything).Return(snapshot, nil)
	mockProvider.On("Delete", mock.Anything, model.ResourceScan, "s1").Return(nil)
	mockProvider.On("Delete", mock.Anything, model.ResourceScan, "s2").Return(errors.New("row locked"))

	rule := model.RetentionRule{
		ID:           "rule-1",
		Name:         "r",
		ResourceType: model.ResourceScan,
		Action:       model.ActionDelete,
		Enabled:      true,
		Criteria:     []model.RuleCriterion{{Type: model.CriterionAge, Value: "90"}},
		CreatedAt:    now,
	}
	require.NoError(t, rules.Create(context.Background(), rule))

	run, err := engine.Enforce(context.Background(), rule.ID, model.TriggerManual)
	require.NoError(t, err)

	done := waitTerminal(t, runs, run.ID)
	assert.Equal(t, model.RunCompletedWithErrors, done.Status)
	assert.Equal(t, 2, done.MatchedCount)
	assert.Equal(t, 1, done.SucceededCount)
	assert.Equal(t, 1, done.FailedCount)
	assert.Equal(t, int64(100), done.SpaceFreedBytes)
	require.Len(t, done.Errors, 1)
	assert.Equal(t, "s2", done.Errors[0].ResourceID)
	assert.Equal(t, model.ErrCodeDeleteFailed, done.Errors[0].Code)
}
