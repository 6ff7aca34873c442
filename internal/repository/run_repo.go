package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
	"github.com/poppopjmp/spiderfoot-sub001/internal/retention"
)

// RunRepository persists the append-only enforcement run history. Run rows
// are never deleted; they are the audit trail the stats projection folds
// over.
type RunRepository struct {
	pool *pgxpool.Pool
}

func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

func (r *RunRepository) Create(ctx context.Context, run model.EnforcementRun) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO enforcement_runs
		 (id, rule_id, trigger, status, started_at, ended_at,
		  matched_count, succeeded_count, failed_count, space_freed_bytes, fault_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.RuleID, run.Trigger, run.Status, run.StartedAt, run.EndedAt,
		run.MatchedCount, run.SucceededCount, run.FailedCount, run.SpaceFreedBytes, run.FaultReason)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (r *RunRepository) Start(ctx context.Context, runID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE enforcement_runs SET status = $2 WHERE id = $1 AND status = $3`,
		runID, model.RunRunning, model.RunPending)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrRunNotFound
	}
	return nil
}

func (r *RunRepository) Finalize(ctx context.Context, run model.EnforcementRun) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE enforcement_runs
		 SET status = $2, ended_at = $3, matched_count = $4, succeeded_count = $5,
		     failed_count = $6, space_freed_bytes = $7, fault_reason = $8
		 WHERE id = $1`,
		run.ID, run.Status, run.EndedAt, run.MatchedCount, run.SucceededCount,
		run.FailedCount, run.SpaceFreedBytes, run.FaultReason)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrRunNotFound
	}
	return nil
}

func (r *RunRepository) AppendErrors(ctx context.Context, runID string, errs []model.RunError) error {
	if len(errs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, runErr := range errs {
		batch.Queue(
			`INSERT INTO enforcement_run_errors (run_id, resource_id, code, reason, checksum)
			 VALUES ($1, $2, $3, $4, $5)`,
			runID, runErr.ResourceID, runErr.Code, runErr.Reason, runErr.Checksum)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range errs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("append run error: %w", err)
		}
	}
	return nil
}

const runColumns = `id, rule_id, trigger, status, started_at, ended_at,
	matched_count, succeeded_count, failed_count, space_freed_bytes, fault_reason`

func scanRun(row pgx.Row) (model.EnforcementRun, error) {
	var run model.EnforcementRun
	err := row.Scan(&run.ID, &run.RuleID, &run.Trigger, &run.Status,
		&run.StartedAt, &run.EndedAt, &run.MatchedCount, &run.SucceededCount,
		&run.FailedCount, &run.SpaceFreedBytes, &run.FaultReason)
	return run, err
}

func (r *RunRepository) Get(ctx context.Context, runID string) (model.EnforcementRun, error) {
	run, err := scanRun(r.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM enforcement_runs WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.EnforcementRun{}, model.ErrRunNotFound
	}
	if err != nil {
		return model.EnforcementRun{}, fmt.Errorf("find run: %w", err)
	}
	return run, nil
}

func (r *RunRepository) List(ctx context.Context, query model.RunQuery) ([]model.EnforcementRun, model.Meta, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 200 {
		query.Limit = 200
	}

	where := make([]string, 0)
	args := make([]any, 0)
	argIdx := 1

	if ruleID := strings.TrimSpace(query.RuleID); ruleID != "" {
		where = append(where, fmt.Sprintf("rule_id = $%d", argIdx))
		args = append(args, ruleID)
		argIdx++
	}
	if trigger := strings.TrimSpace(query.Trigger); trigger != "" {
		where = append(where, fmt.Sprintf("trigger = $%d", argIdx))
		args = append(args, trigger)
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM enforcement_runs %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, model.Meta{}, fmt.Errorf("count runs: %w", err)
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + query.Limit - 1) / query.Limit
	}
	meta := model.Meta{Page: query.Page, Limit: query.Limit, Total: total, TotalPages: totalPages}

	offset := (query.Page - 1) * query.Limit
	dataQuery := fmt.Sprintf(
		`SELECT %s FROM enforcement_runs %s ORDER BY started_at DESC LIMIT $%d OFFSET $%d`,
		runColumns, whereClause, argIdx, argIdx+1)
	args = append(args, query.Limit, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]model.EnforcementRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, model.Meta{}, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, meta, rows.Err()
}

func (r *RunRepository) Errors(ctx context.Context, runID string, page int, limit int) ([]model.RunError, model.Meta, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM enforcement_run_errors WHERE run_id = $1`, runID).Scan(&total)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("count run errors: %w", err)
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}

	offset := (page - 1) * limit
	rows, err := r.pool.Query(ctx,
		`SELECT resource_id, code, reason, checksum
		 FROM enforcement_run_errors WHERE run_id = $1
		 ORDER BY id
		 LIMIT $2 OFFSET $3`, runID, limit, offset)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("query run errors: %w", err)
	}
	defer rows.Close()

	errs := make([]model.RunError, 0)
	for rows.Next() {
		var runErr model.RunError
		if err := rows.Scan(&runErr.ResourceID, &runErr.Code, &runErr.Reason, &runErr.Checksum); err != nil {
			return nil, model.Meta{}, fmt.Errorf("scan run error: %w", err)
		}
		errs = append(errs, runErr)
	}

	meta := model.Meta{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
	return errs, meta, rows.Err()
}

func (r *RunRepository) LastRun(ctx context.Context, ruleID string) (model.EnforcementRun, error) {
	run, err := scanRun(r.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM enforcement_runs
		 WHERE rule_id = $1 AND trigger <> $2
		 ORDER BY started_at DESC LIMIT 1`, ruleID, model.TriggerPreview))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.EnforcementRun{}, model.ErrRunNotFound
	}
	if err != nil {
		return model.EnforcementRun{}, fmt.Errorf("find last run: %w", err)
	}
	return run, nil
}

func (r *RunRepository) CountByRule(ctx context.Context, ruleID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM enforcement_runs WHERE rule_id = $1 AND trigger <> $2`,
		ruleID, model.TriggerPreview).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count runs for rule: %w", err)
	}
	return count, nil
}

// PendingDeletes returns the newest verified-export checksum per resource
// whose delete is still outstanding for the rule. Stale markers for
// resources deleted since are harmless: those resources no longer appear
// in any snapshot.
func (r *RunRepository) PendingDeletes(ctx context.Context, ruleID string) (map[string]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ON (e.resource_id) e.resource_id, e.checksum
		 FROM enforcement_run_errors e
		 JOIN enforcement_runs r ON r.id = e.run_id
		 WHERE r.rule_id = $1 AND e.code = $2
		 ORDER BY e.resource_id, r.started_at DESC`,
		ruleID, model.ErrCodeExportedDeletePending)
	if err != nil {
		return nil, fmt.Errorf("query pending deletes: %w", err)
	}
	defer rows.Close()

	pending := make(map[string]string)
	for rows.Next() {
		var resourceID, checksum string
		if err := rows.Scan(&resourceID, &checksum); err != nil {
			return nil, fmt.Errorf("scan pending delete: %w", err)
		}
		pending[resourceID] = checksum
	}
	return pending, rows.Err()
}

func (r *RunRepository) Aggregate(ctx context.Context) (retention.RunTotals, error) {
	var totals retention.RunTotals
	var lastEnforced *time.Time

	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(succeeded_count), 0),
		        COALESCE(SUM(space_freed_bytes), 0),
		        MAX(started_at)
		 FROM enforcement_runs
		 WHERE trigger <> $1 AND status = ANY($2)`,
		model.TriggerPreview,
		[]string{string(model.RunCompleted), string(model.RunCompletedWithErrors), string(model.RunFailed)},
	).Scan(&totals.TotalCleaned, &totals.SpaceFreed, &lastEnforced)
	if err != nil {
		return retention.RunTotals{}, fmt.Errorf("aggregate runs: %w", err)
	}

	totals.LastEnforced = lastEnforced
	return totals, nil
}
