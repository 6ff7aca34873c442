package model

// CreateRuleRequest is the POST /rules payload.
type CreateRuleRequest struct {
	Name         string          `json:"name"`
	ResourceType ResourceType    `json:"resource_type"`
	Criteria     []RuleCriterion `json:"criteria"`
	Action       RuleAction      `json:"action"`
	Enabled      bool            `json:"enabled"`
	Priority     int             `json:"priority"`
}

// UpdateRuleRequest is the PUT /rules/{rule_id} payload. Nil fields keep
// their current value. Action changes are refused while the rule is enabled
// and already has recorded runs.
type UpdateRuleRequest struct {
	Name     *string          `json:"name,omitempty"`
	Criteria *[]RuleCriterion `json:"criteria,omitempty"`
	Action   *RuleAction      `json:"action,omitempty"`
	Enabled  *bool            `json:"enabled,omitempty"`
	Priority *int             `json:"priority,omitempty"`
}

// RunQuery filters the paginated run history listing.
type RunQuery struct {
	RuleID  string
	Trigger string
	Page    int
	Limit   int
}
