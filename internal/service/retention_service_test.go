package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poppopjmp/spiderfoot-sub001/internal/event"
	"github.com/poppopjmp/spiderfoot-sub001/internal/export"
	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
	"github.com/poppopjmp/spiderfoot-sub001/internal/provider"
	"github.com/poppopjmp/spiderfoot-sub001/internal/retention"
	"github.com/poppopjmp/spiderfoot-sub001/pkg/apierror"
)

type serviceFixture struct {
	rules   *retention.MemRuleStore
	runs    *retention.MemRunStore
	engine  *retention.Engine
	service *RetentionService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	rules := retention.NewMemRuleStore()
	runs := retention.NewMemRunStore()
	bus := event.NewBus()
	engine := retention.NewEngine(rules, runs, provider.NewMemoryProvider(), export.NewMemorySink(), bus, nil, retention.Config{})
	t.Cleanup(engine.Stop)

	aggregator := retention.NewAggregator(rules, runs)

	return &serviceFixture{
		rules:   rules,
		runs:    runs,
		engine:  engine,
		service: NewRetentionService(rules, runs, engine, aggregator, nil, bus),
	}
}

func validCreateRequest() model.CreateRuleRequest {
	return model.CreateRuleRequest{
		Name:         "expire old scans",
		ResourceType: model.ResourceScan,
		Action:       model.ActionDelete,
		Enabled:      true,
		Priority:     1,
		Criteria:     []model.RuleCriterion{{Type: model.CriterionAge, Operator: ">=", Value: "90"}},
	}
}

func TestCreateRule(t *testing.T) {
	f := newServiceFixture(t)

	rule, err := f.service.CreateRule(context.Background(), validCreateRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, "expire old scans", rule.Name)
	assert.False(t, rule.CreatedAt.IsZero())

	stored, err := f.rules.Get(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule, stored)
}

func TestCreateRuleRejectsInvalid(t *testing.T) {
	f := newServiceFixture(t)

	req := validCreateRequest()
	req.Criteria = nil

	_, err := f.service.CreateRule(context.Background(), req)
	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "BAD_REQUEST", apiErr.Code)
}

func TestUpdateRulePartial(t *testing.T) {
	f := newServiceFixture(t)

	rule, err := f.service.CreateRule(context.Background(), validCreateRequest())
	require.NoError(t, err)

	name := "expire stale scans"
	enabled := false
	updated, err := f.service.UpdateRule(context.Background(), rule.ID, model.UpdateRuleRequest{
		Name:    &name,
		Enabled: &enabled,
	})
	require.NoError(t, err)

	assert.Equal(t, name, updated.Name)
	assert.False(t, updated.Enabled)
	// Untouched fields carry over.
	assert.Equal(t, rule.Criteria, updated.Criteria)
	assert.Equal(t, rule.Action, updated.Action)
}

func TestUpdateRuleActionImmutableWithHistory(t *testing.T) {
	f := newServiceFixture(t)

	rule, err := f.service.CreateRule(context.Background(), validCreateRequest())
	require.NoError(t, err)

	require.NoError(t, f.runs.Create(context.Background(), model.EnforcementRun{
		ID: "run-1", RuleID: rule.ID, Trigger: model.TriggerManual,
		Status: model.RunCompleted, StartedAt: time.Now().UTC(),
	}))

	archive := model.ActionArchive
	_, err = f.service.UpdateRule(context.Background(), rule.ID, model.UpdateRuleRequest{Action: &archive})
	assert.ErrorIs(t, err, model.ErrActionImmutable)
}

func TestUpdateRuleActionChangesWhenDisabled(t *testing.T) {
	f := newServiceFixture(t)

	req := validCreateRequest()
	req.Enabled = false
	rule, err := f.service.CreateRule(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, f.runs.Create(context.Background(), model.EnforcementRun{
		ID: "run-1", RuleID: rule.ID, Trigger: model.TriggerManual,
		Status: model.RunCompleted, StartedAt: time.Now().UTC(),
	}))

	archive := model.ActionArchive
	updated, err := f.service.UpdateRule(context.Background(), rule.ID, model.UpdateRuleRequest{Action: &archive})
	require.NoError(t, err)
	assert.Equal(t, model.ActionArchive, updated.Action)
}

func TestDeleteRuleKeepsRunHistory(t *testing.T) {
	f := newServiceFixture(t)

	rule, err := f.service.CreateRule(context.Background(), validCreateRequest())
	require.NoError(t, err)

	require.NoError(t, f.runs.Create(context.Background(), model.EnforcementRun{
		ID: "run-1", RuleID: rule.ID, Trigger: model.TriggerManual,
		Status: model.RunCompleted, StartedAt: time.Now().UTC(),
	}))

	require.NoError(t, f.service.DeleteRule(context.Background(), rule.ID))

	_, err = f.rules.Get(context.Background(), rule.ID)
	assert.ErrorIs(t, err, model.ErrRuleNotFound)

	run, err := f.runs.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, rule.ID, run.RuleID)
}

func TestDeleteUnknownRule(t *testing.T) {
	f := newServiceFixture(t)

	err := f.service.DeleteRule(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrRuleNotFound)
}

func TestListRulesIncludesLastRun(t *testing.T) {
	f := newServiceFixture(t)

	rule, err := f.service.CreateRule(context.Background(), validCreateRequest())
	require.NoError(t, err)

	// Preview runs never surface as the last run.
	require.NoError(t, f.runs.Create(context.Background(), model.EnforcementRun{
		ID: "run-preview", RuleID: rule.ID, Trigger: model.TriggerPreview,
		Status: model.RunCompleted, StartedAt: time.Now().UTC(),
	}))
	require.NoError(t, f.runs.Create(context.Background(), model.EnforcementRun{
		ID: "run-manual", RuleID: rule.ID, Trigger: model.TriggerManual,
		Status: model.RunCompleted, StartedAt: time.Now().UTC(), SucceededCount: 4,
	}))

	summaries, err := f.service.ListRules(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.NotNil(t, summaries[0].LastRun)
	assert.Equal(t, "run-manual", summaries[0].LastRun.ID)
}

func TestGetStats(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.CreateRule(context.Background(), validCreateRequest())
	require.NoError(t, err)

	stats, err := f.service.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRules)
	assert.Nil(t, stats.NextSweep)
}
