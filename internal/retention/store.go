package retention

import (
	"context"
	"time"

	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
)

// RuleStore persists retention rules. Implemented by the Postgres
// repository and by MemRuleStore for tests.
type RuleStore interface {
	Create(ctx context.Context, rule model.RetentionRule) error
	Update(ctx context.Context, rule model.RetentionRule) error
	Delete(ctx context.Context, ruleID string) error
	Get(ctx context.Context, ruleID string) (model.RetentionRule, error)
	List(ctx context.Context) ([]model.RetentionRule, error)
	// ListEnabledByPriority returns enabled rules in ascending priority
	// order, the order the scheduled sweep admits them.
	ListEnabledByPriority(ctx context.Context) ([]model.RetentionRule, error)
	Count(ctx context.Context) (int, error)
}

// RunStore persists the append-only enforcement run history.
type RunStore interface {
	Create(ctx context.Context, run model.EnforcementRun) error
	// Start transitions a pending run to running.
	Start(ctx context.Context, runID string) error
	// Finalize writes a run's terminal state. Runs transition to terminal
	// exactly once and are never deleted.
	Finalize(ctx context.Context, run model.EnforcementRun) error
	AppendErrors(ctx context.Context, runID string, errs []model.RunError) error
	Get(ctx context.Context, runID string) (model.EnforcementRun, error)
	List(ctx context.Context, query model.RunQuery) ([]model.EnforcementRun, model.Meta, error)
	Errors(ctx context.Context, runID string, page int, limit int) ([]model.RunError, model.Meta, error)
	// LastRun returns the most recent non-preview run for a rule, or
	// model.ErrRunNotFound when none exists.
	LastRun(ctx context.Context, ruleID string) (model.EnforcementRun, error)
	// CountByRule counts non-preview runs recorded for a rule.
	CountByRule(ctx context.Context, ruleID string) (int, error)
	// PendingDeletes returns, per resource, the checksum of the latest
	// verified export whose delete is still pending for this rule.
	PendingDeletes(ctx context.Context, ruleID string) (map[string]string, error)
	// Aggregate folds all terminal non-preview runs into running totals.
	Aggregate(ctx context.Context) (RunTotals, error)
}

// RunTotals is the fold over terminal non-preview run history.
type RunTotals struct {
	TotalCleaned int64
	SpaceFreed   int64
	LastEnforced *time.Time
}
