package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/poppopjmp/spiderfoot-sub001/internal/event"
	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
	"github.com/poppopjmp/spiderfoot-sub001/internal/retention"
	"github.com/poppopjmp/spiderfoot-sub001/pkg/apierror"
)

// RetentionService owns the rule lifecycle and fronts the enforcement
// engine for the HTTP layer.
type RetentionService struct {
	rules   retention.RuleStore
	runs    retention.RunStore
	engine  *retention.Engine
	stats   *retention.Aggregator
	sweeper *retention.Sweeper
	bus     event.Bus
	logger  *slog.Logger
}

func NewRetentionService(
	rules retention.RuleStore,
	runs retention.RunStore,
	engine *retention.Engine,
	stats *retention.Aggregator,
	sweeper *retention.Sweeper,
	bus event.Bus,
) *RetentionService {
	return &RetentionService{
		rules:   rules,
		runs:    runs,
		engine:  engine,
		stats:   stats,
		sweeper: sweeper,
		bus:     bus,
		logger:  slog.Default().With("component", "retention.service"),
	}
}

// CreateRule validates and persists a new retention rule.
func (s *RetentionService) CreateRule(ctx context.Context, req model.CreateRuleRequest) (model.RetentionRule, error) {
	rule := model.RetentionRule{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		ResourceType: req.ResourceType,
		Criteria:     req.Criteria,
		Action:       req.Action,
		Enabled:      req.Enabled,
		Priority:     req.Priority,
		CreatedAt:    time.Now().UTC(),
	}

	if err := retention.ValidateRule(rule); err != nil {
		return model.RetentionRule{}, apierror.BadRequest("invalid retention rule", err.Error())
	}

	if err := s.rules.Create(ctx, rule); err != nil {
		return model.RetentionRule{}, fmt.Errorf("create rule: %w", err)
	}

	s.publish(event.TypeRuleCreated, rule)
	s.logger.Info("rule created", "rule_id", rule.ID, "resource_type", rule.ResourceType, "action", rule.Action)

	return rule, nil
}

// UpdateRule applies a partial update. The action is immutable while the
// rule is enabled and already has recorded runs, so the run history always
// reads consistently against its rule.
func (s *RetentionService) UpdateRule(ctx context.Context, ruleID string, req model.UpdateRuleRequest) (model.RetentionRule, error) {
	rule, err := s.rules.Get(ctx, ruleID)
	if err != nil {
		return model.RetentionRule{}, err
	}

	if req.Action != nil && *req.Action != rule.Action {
		runCount, err := s.runs.CountByRule(ctx, ruleID)
		if err != nil {
			return model.RetentionRule{}, fmt.Errorf("count rule runs: %w", err)
		}
		if rule.Enabled && runCount > 0 {
			return model.RetentionRule{}, model.ErrActionImmutable
		}
		rule.Action = *req.Action
	}

	if req.Name != nil {
		rule.Name = strings.TrimSpace(*req.Name)
	}
	if req.Criteria != nil {
		rule.Criteria = *req.Criteria
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}

	if err := retention.ValidateRule(rule); err != nil {
		return model.RetentionRule{}, apierror.BadRequest("invalid retention rule", err.Error())
	}

	if err := s.rules.Update(ctx, rule); err != nil {
		return model.RetentionRule{}, fmt.Errorf("update rule: %w", err)
	}

	s.publish(event.TypeRuleUpdated, rule)
	s.logger.Info("rule updated", "rule_id", rule.ID)

	return rule, nil
}

// DeleteRule removes a rule. A rule with an active run cannot be deleted;
// its run history survives the deletion either way.
func (s *RetentionService) DeleteRule(ctx context.Context, ruleID string) error {
	if s.engine.Busy(ruleID) {
		return model.ErrRuleBusy
	}

	if err := s.rules.Delete(ctx, ruleID); err != nil {
		return err
	}

	s.publish(event.TypeRuleDeleted, model.RetentionRule{ID: ruleID})
	s.logger.Info("rule deleted", "rule_id", ruleID)

	return nil
}

// ListRules returns every rule with its most recent non-preview run.
func (s *RetentionService) ListRules(ctx context.Context) ([]model.RuleSummary, error) {
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	summaries := make([]model.RuleSummary, 0, len(rules))
	for _, rule := range rules {
		summary := model.RuleSummary{RetentionRule: rule}

		last, err := s.runs.LastRun(ctx, rule.ID)
		switch {
		case errors.Is(err, model.ErrRunNotFound):
		case err != nil:
			return nil, fmt.Errorf("last run for rule %s: %w", rule.ID, err)
		default:
			summary.LastRun = &last
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// GetRule fetches one rule by ID.
func (s *RetentionService) GetRule(ctx context.Context, ruleID string) (model.RetentionRule, error) {
	return s.rules.Get(ctx, ruleID)
}

// Preview evaluates a rule's criteria without acting on any resource.
func (s *RetentionService) Preview(ctx context.Context, ruleID string) (model.PreviewResult, error) {
	return s.engine.Preview(ctx, ruleID)
}

// Enforce starts an enforcement run for the rule.
func (s *RetentionService) Enforce(ctx context.Context, ruleID string, trigger model.RunTrigger) (model.EnforcementRun, error) {
	return s.engine.Enforce(ctx, ruleID, trigger)
}

// ListRuns pages through the enforcement run history.
func (s *RetentionService) ListRuns(ctx context.Context, query model.RunQuery) ([]model.EnforcementRun, model.Meta, error) {
	return s.runs.List(ctx, query)
}

// GetRun fetches one run by ID.
func (s *RetentionService) GetRun(ctx context.Context, runID string) (model.EnforcementRun, error) {
	return s.runs.Get(ctx, runID)
}

// GetRunErrors pages through a run's per-resource errors.
func (s *RetentionService) GetRunErrors(ctx context.Context, runID string, page int, limit int) ([]model.RunError, model.Meta, error) {
	if _, err := s.runs.Get(ctx, runID); err != nil {
		return nil, model.Meta{}, err
	}
	return s.runs.Errors(ctx, runID, page, limit)
}

// CancelRun requests cooperative cancellation of an in-flight run.
func (s *RetentionService) CancelRun(ctx context.Context, runID string) error {
	return s.engine.Cancel(ctx, runID)
}

// GetStats returns the aggregate retention dashboard numbers.
func (s *RetentionService) GetStats(ctx context.Context) (model.RetentionStats, error) {
	stats, err := s.stats.Get(ctx)
	if err != nil {
		return model.RetentionStats{}, err
	}

	if s.sweeper != nil {
		stats.NextSweep = s.sweeper.NextRun()
	}

	return stats, nil
}

func (s *RetentionService) publish(t event.Type, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}
