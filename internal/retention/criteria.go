package retention

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
)

// Operators accepted per criterion type. The semantics are fixed; the
// operator field exists so rules read naturally on the dashboard.
var criterionOperators = map[model.CriterionType]string{
	model.CriterionAge:    ">=",
	model.CriterionSize:   ">=",
	model.CriterionStatus: "==",
	model.CriterionTag:    "contains",
}

// evaluate applies one criterion to one resource. now is captured once per
// run so every resource in the run is judged against the same instant.
// An unrecognized criterion type is a configuration fault, never a match.
func evaluate(c model.RuleCriterion, res model.ResourceDescriptor, now time.Time) (bool, string, error) {
	switch c.Type {
	case model.CriterionAge:
		days, err := strconv.Atoi(strings.TrimSpace(c.Value))
		if err != nil {
			return false, "", fmt.Errorf("age criterion value %q: %w", c.Value, model.ErrInvalidInput)
		}
		age := now.Sub(res.CreatedAt)
		threshold := time.Duration(days) * 24 * time.Hour
		if age >= threshold {
			return true, fmt.Sprintf("age %s >= %dd", formatAge(age), days), nil
		}
		return false, "", nil

	case model.CriterionStatus:
		if res.Status == c.Value {
			return true, fmt.Sprintf("status == %q", c.Value), nil
		}
		return false, "", nil

	case model.CriterionSize:
		bytes, err := strconv.ParseInt(strings.TrimSpace(c.Value), 10, 64)
		if err != nil {
			return false, "", fmt.Errorf("size criterion value %q: %w", c.Value, model.ErrInvalidInput)
		}
		if res.SizeBytes >= bytes {
			return true, fmt.Sprintf("size %d >= %d", res.SizeBytes, bytes), nil
		}
		return false, "", nil

	case model.CriterionTag:
		if res.HasTag(c.Value) {
			return true, fmt.Sprintf("tagged %q", c.Value), nil
		}
		return false, "", nil
	}

	return false, "", fmt.Errorf("%w: %q", model.ErrUnknownCriterion, c.Type)
}

func formatAge(age time.Duration) string {
	return fmt.Sprintf("%dd", int(age.Hours()/24))
}

// ValidateRule checks the structural invariants the engine relies on.
// The API layer calls this at rule creation so malformed rules never
// reach execution.
func ValidateRule(rule model.RetentionRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("%w: rule name is required", model.ErrInvalidInput)
	}
	if !rule.ResourceType.Valid() {
		return fmt.Errorf("%w: %q", model.ErrUnknownResourceType, rule.ResourceType)
	}
	if !rule.Action.Valid() {
		return fmt.Errorf("%w: action %q", model.ErrInvalidInput, rule.Action)
	}
	if len(rule.Criteria) == 0 {
		return fmt.Errorf("%w: rule requires at least one criterion", model.ErrInvalidInput)
	}

	for i, c := range rule.Criteria {
		expected, ok := criterionOperators[c.Type]
		if !ok {
			return fmt.Errorf("%w: criterion %d type %q", model.ErrUnknownCriterion, i, c.Type)
		}
		if op := strings.TrimSpace(c.Operator); op != "" && op != expected {
			return fmt.Errorf("%w: criterion %d operator %q (want %q)", model.ErrInvalidInput, i, c.Operator, expected)
		}

		switch c.Type {
		case model.CriterionAge:
			if _, err := strconv.Atoi(strings.TrimSpace(c.Value)); err != nil {
				return fmt.Errorf("%w: criterion %d age value %q", model.ErrInvalidInput, i, c.Value)
			}
		case model.CriterionSize:
			if _, err := strconv.ParseInt(strings.TrimSpace(c.Value), 10, 64); err != nil {
				return fmt.Errorf("%w: criterion %d size value %q", model.ErrInvalidInput, i, c.Value)
			}
		case model.CriterionStatus, model.CriterionTag:
			if strings.TrimSpace(c.Value) == "" {
				return fmt.Errorf("%w: criterion %d requires a value", model.ErrInvalidInput, i)
			}
		}
	}

	return nil
}
