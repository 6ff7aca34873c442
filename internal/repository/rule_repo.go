package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
)

type RuleRepository struct {
	pool *pgxpool.Pool
}

func NewRuleRepository(pool *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

func (r *RuleRepository) Create(ctx context.Context, rule model.RetentionRule) error {
	criteriaJSON, err := json.Marshal(rule.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO retention_rules (id, name, resource_type, criteria, action, enabled, priority, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rule.ID, rule.Name, rule.ResourceType, criteriaJSON, rule.Action,
		rule.Enabled, rule.Priority, rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (r *RuleRepository) Update(ctx context.Context, rule model.RetentionRule) error {
	criteriaJSON, err := json.Marshal(rule.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE retention_rules
		 SET name = $2, criteria = $3, action = $4, enabled = $5, priority = $6
		 WHERE id = $1`,
		rule.ID, rule.Name, criteriaJSON, rule.Action, rule.Enabled, rule.Priority)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrRuleNotFound
	}
	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, ruleID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM retention_rules WHERE id = $1`, ruleID)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrRuleNotFound
	}
	return nil
}

const ruleColumns = `id, name, resource_type, criteria, action, enabled, priority, created_at`

func scanRule(row pgx.Row) (model.RetentionRule, error) {
	var rule model.RetentionRule
	var criteriaJSON []byte

	err := row.Scan(&rule.ID, &rule.Name, &rule.ResourceType, &criteriaJSON,
		&rule.Action, &rule.Enabled, &rule.Priority, &rule.CreatedAt)
	if err != nil {
		return model.RetentionRule{}, err
	}

	if err := json.Unmarshal(criteriaJSON, &rule.Criteria); err != nil {
		return model.RetentionRule{}, fmt.Errorf("unmarshal criteria: %w", err)
	}
	return rule, nil
}

func (r *RuleRepository) Get(ctx context.Context, ruleID string) (model.RetentionRule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM retention_rules WHERE id = $1`, ruleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.RetentionRule{}, model.ErrRuleNotFound
	}
	if err != nil {
		return model.RetentionRule{}, fmt.Errorf("find rule: %w", err)
	}
	return rule, nil
}

func (r *RuleRepository) List(ctx context.Context) ([]model.RetentionRule, error) {
	return r.query(ctx,
		`SELECT `+ruleColumns+` FROM retention_rules ORDER BY created_at`)
}

func (r *RuleRepository) ListEnabledByPriority(ctx context.Context) ([]model.RetentionRule, error) {
	return r.query(ctx,
		`SELECT `+ruleColumns+` FROM retention_rules WHERE enabled ORDER BY priority, created_at`)
}

func (r *RuleRepository) query(ctx context.Context, sql string) ([]model.RetentionRule, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	rules := make([]model.RetentionRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *RuleRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM retention_rules`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rules: %w", err)
	}
	return count, nil
}
