package retention

import (
	"strings"
	"time"

	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
)

// MatchResult holds every resource a rule matched within one snapshot,
// with a human-readable rationale per resource id.
type MatchResult struct {
	Matched    []model.ResourceDescriptor
	Rationale  map[string]string
	TotalBytes int64
}

// Match applies a rule's criteria (combined with AND) across a fixed,
// already-fetched snapshot. It is read-only and safe to call concurrently;
// preview and enforcement share this exact path so the two agree whenever
// the underlying corpus is unchanged between them.
func Match(rule model.RetentionRule, snapshot []model.ResourceDescriptor, now time.Time) (MatchResult, error) {
	result := MatchResult{
		Matched:   make([]model.ResourceDescriptor, 0),
		Rationale: make(map[string]string),
	}

	for _, res := range snapshot {
		reasons := make([]string, 0, len(rule.Criteria))
		all := true
		for _, c := range rule.Criteria {
			ok, reason, err := evaluate(c, res, now)
			if err != nil {
				return MatchResult{}, err
			}
			if !ok {
				all = false
				break
			}
			reasons = append(reasons, reason)
		}
		if !all {
			continue
		}

		result.Matched = append(result.Matched, res)
		result.Rationale[res.ResourceID] = strings.Join(reasons, "; ")
		result.TotalBytes += res.SizeBytes
	}

	return result, nil
}
