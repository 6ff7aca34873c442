package retention

import (
	"context"
	"sort"
	"sync"

	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
)

// MemRuleStore and MemRunStore are in-process store implementations used
// by the engine's tests and by local development without Postgres.

type MemRuleStore struct {
	mu    sync.RWMutex
	rules map[string]model.RetentionRule
}

func NewMemRuleStore() *MemRuleStore {
	return &MemRuleStore{rules: make(map[string]model.RetentionRule)}
}

func (s *MemRuleStore) Create(_ context.Context, rule model.RetentionRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules[rule.ID] = rule
	return nil
}

func (s *MemRuleStore) Update(_ context.Context, rule model.RetentionRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[rule.ID]; !ok {
		return model.ErrRuleNotFound
	}
	s.rules[rule.ID] = rule
	return nil
}

func (s *MemRuleStore) Delete(_ context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[ruleID]; !ok {
		return model.ErrRuleNotFound
	}
	delete(s.rules, ruleID)
	return nil
}

func (s *MemRuleStore) Get(_ context.Context, ruleID string) (model.RetentionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[ruleID]
	if !ok {
		return model.RetentionRule{}, model.ErrRuleNotFound
	}
	return rule, nil
}

func (s *MemRuleStore) List(_ context.Context) ([]model.RetentionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RetentionRule, 0, len(s.rules))
	for _, rule := range s.rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemRuleStore) ListEnabledByPriority(_ context.Context) ([]model.RetentionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RetentionRule, 0, len(s.rules))
	for _, rule := range s.rules {
		if rule.Enabled {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (s *MemRuleStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.rules), nil
}

type MemRunStore struct {
	mu   sync.RWMutex
	runs map[string]model.EnforcementRun
	errs map[string][]model.RunError
	seq  []string
}

func NewMemRunStore() *MemRunStore {
	return &MemRunStore{
		runs: make(map[string]model.EnforcementRun),
		errs: make(map[string][]model.RunError),
	}
}

func (s *MemRunStore) Create(_ context.Context, run model.EnforcementRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.Errors = nil
	s.runs[run.ID] = run
	s.seq = append(s.seq, run.ID)
	return nil
}

func (s *MemRunStore) Start(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return model.ErrRunNotFound
	}
	run.Status = model.RunRunning
	s.runs[runID] = run
	return nil
}

func (s *MemRunStore) Finalize(_ context.Context, run model.EnforcementRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return model.ErrRunNotFound
	}
	run.Errors = nil
	s.runs[run.ID] = run
	return nil
}

func (s *MemRunStore) AppendErrors(_ context.Context, runID string, errs []model.RunError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errs[runID] = append(s.errs[runID], errs...)
	return nil
}

func (s *MemRunStore) Get(_ context.Context, runID string) (model.EnforcementRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return model.EnforcementRun{}, model.ErrRunNotFound
	}
	run.Errors = append([]model.RunError(nil), s.errs[runID]...)
	return run, nil
}

func (s *MemRunStore) List(_ context.Context, query model.RunQuery) ([]model.EnforcementRun, model.Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 50
	}

	filtered := make([]model.EnforcementRun, 0, len(s.seq))
	for i := len(s.seq) - 1; i >= 0; i-- {
		run := s.runs[s.seq[i]]
		if query.RuleID != "" && run.RuleID != query.RuleID {
			continue
		}
		if query.Trigger != "" && string(run.Trigger) != query.Trigger {
			continue
		}
		filtered = append(filtered, run)
	}

	total := len(filtered)
	start := (query.Page - 1) * query.Limit
	if start > total {
		start = total
	}
	end := start + query.Limit
	if end > total {
		end = total
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + query.Limit - 1) / query.Limit
	}
	meta := model.Meta{Page: query.Page, Limit: query.Limit, Total: total, TotalPages: totalPages}
	return filtered[start:end], meta, nil
}

func (s *MemRunStore) Errors(_ context.Context, runID string, page int, limit int) ([]model.RunError, model.Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 100
	}

	errs := s.errs[runID]
	total := len(errs)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}
	meta := model.Meta{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
	return append([]model.RunError(nil), errs[start:end]...), meta, nil
}

func (s *MemRunStore) LastRun(_ context.Context, ruleID string) (model.EnforcementRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.seq) - 1; i >= 0; i-- {
		run := s.runs[s.seq[i]]
		if run.RuleID == ruleID && run.Trigger != model.TriggerPreview {
			return run, nil
		}
	}
	return model.EnforcementRun{}, model.ErrRunNotFound
}

func (s *MemRunStore) CountByRule(_ context.Context, ruleID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, run := range s.runs {
		if run.RuleID == ruleID && run.Trigger != model.TriggerPreview {
			count++
		}
	}
	return count, nil
}

func (s *MemRunStore) PendingDeletes(_ context.Context, ruleID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make(map[string]string)
	// Oldest first so the newest marker per resource wins.
	for _, id := range s.seq {
		run := s.runs[id]
		if run.RuleID != ruleID {
			continue
		}
		for _, runErr := range s.errs[id] {
			if runErr.Code == model.ErrCodeExportedDeletePending {
				pending[runErr.ResourceID] = runErr.Checksum
			}
		}
	}
	return pending, nil
}

func (s *MemRunStore) Aggregate(_ context.Context) (RunTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totals RunTotals
	for _, run := range s.runs {
		if run.Trigger == model.TriggerPreview || !run.Status.Terminal() {
			continue
		}
		totals.TotalCleaned += int64(run.SucceededCount)
		totals.SpaceFreed += run.SpaceFreedBytes
		if totals.LastEnforced == nil || run.StartedAt.After(*totals.LastEnforced) {
			started := run.StartedAt
			totals.LastEnforced = &started
		}
	}
	return totals, nil
}
