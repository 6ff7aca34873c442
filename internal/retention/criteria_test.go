package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
)

func TestEvaluateAge(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		createdAt time.Time
		value     string
		want      bool
	}{
		{"older than threshold", now.AddDate(0, 0, -120), "90", true},
		{"exactly at threshold", now.Add(-90 * 24 * time.Hour), "90", true},
		{"younger than threshold", now.AddDate(0, 0, -30), "90", false},
		{"created just now", now, "1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := model.ResourceDescriptor{ResourceID: "r1", CreatedAt: tt.createdAt}
			ok, _, err := evaluate(model.RuleCriterion{Type: model.CriterionAge, Value: tt.value}, res, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestEvaluateAgeInvalidValue(t *testing.T) {
	res := model.ResourceDescriptor{ResourceID: "r1", CreatedAt: time.Now()}
	_, _, err := evaluate(model.RuleCriterion{Type: model.CriterionAge, Value: "ninety"}, res, time.Now())
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestEvaluateStatus(t *testing.T) {
	now := time.Now().UTC()
	res := model.ResourceDescriptor{ResourceID: "r1", Status: "completed"}

	ok, reason, err := evaluate(model.RuleCriterion{Type: model.CriterionStatus, Value: "completed"}, res, now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, reason, "completed")

	ok, _, err = evaluate(model.RuleCriterion{Type: model.CriterionStatus, Value: "running"}, res, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateSize(t *testing.T) {
	now := time.Now().UTC()
	res := model.ResourceDescriptor{ResourceID: "r1", SizeBytes: 1 << 20}

	ok, _, err := evaluate(model.RuleCriterion{Type: model.CriterionSize, Value: "1048576"}, res, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = evaluate(model.RuleCriterion{Type: model.CriterionSize, Value: "2097152"}, res, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateTag(t *testing.T) {
	now := time.Now().UTC()
	res := model.ResourceDescriptor{ResourceID: "r1", Tags: []string{"stale", "external"}}

	ok, _, err := evaluate(model.RuleCriterion{Type: model.CriterionTag, Value: "stale"}, res, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = evaluate(model.RuleCriterion{Type: model.CriterionTag, Value: "fresh"}, res, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateUnknownCriterion(t *testing.T) {
	_, _, err := evaluate(model.RuleCriterion{Type: "checksum", Value: "x"}, model.ResourceDescriptor{}, time.Now())
	assert.ErrorIs(t, err, model.ErrUnknownCriterion)
}

func TestValidateRule(t *testing.T) {
	valid := model.RetentionRule{
		Name:         "expire old scans",
		ResourceType: model.ResourceScan,
		Action:       model.ActionDelete,
		Criteria:     []model.RuleCriterion{{Type: model.CriterionAge, Operator: ">=", Value: "90"}},
	}

	tests := []struct {
		name    string
		mutate  func(r *model.RetentionRule)
		wantErr error
	}{
		{"valid rule", func(r *model.RetentionRule) {}, nil},
		{"blank name", func(r *model.RetentionRule) { r.Name = "  " }, model.ErrInvalidInput},
		{"unknown resource type", func(r *model.RetentionRule) { r.ResourceType = "snapshot" }, model.ErrUnknownResourceType},
		{"unknown action", func(r *model.RetentionRule) { r.Action = "purge" }, model.ErrInvalidInput},
		{"no criteria", func(r *model.RetentionRule) { r.Criteria = nil }, model.ErrInvalidInput},
		{"unknown criterion type", func(r *model.RetentionRule) {
			r.Criteria = []model.RuleCriterion{{Type: "checksum", Value: "x"}}
		}, model.ErrUnknownCriterion},
		{"wrong operator", func(r *model.RetentionRule) {
			r.Criteria = []model.RuleCriterion{{Type: model.CriterionAge, Operator: "<", Value: "90"}}
		}, model.ErrInvalidInput},
		{"unparseable age", func(r *model.RetentionRule) {
			r.Criteria = []model.RuleCriterion{{Type: model.CriterionAge, Value: "soon"}}
		}, model.ErrInvalidInput},
		{"unparseable size", func(r *model.RetentionRule) {
			r.Criteria = []model.RuleCriterion{{Type: model.CriterionSize, Value: "big"}}
		}, model.ErrInvalidInput},
		{"empty tag value", func(r *model.RetentionRule) {
			r.Criteria = []model.RuleCriterion{{Type: model.CriterionTag, Value: " "}}
		}, model.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := valid
			rule.Criteria = append([]model.RuleCriterion(nil), valid.Criteria...)
			tt.mutate(&rule)

			err := ValidateRule(rule)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
