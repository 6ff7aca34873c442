package model

import "time"

// ResourceType identifies a class of retainable platform data.
type ResourceType string

const (
	ResourceScan   ResourceType = "scan"
	ResourceEntity ResourceType = "entity"
	ResourceEvent  ResourceType = "event"
	ResourceReport ResourceType = "report"
	ResourceLog    ResourceType = "log"
)

// ResourceTypes lists every resource type the engine knows about, in the
// order the scheduled sweep reports them.
var ResourceTypes = []ResourceType{
	ResourceScan, ResourceEntity, ResourceEvent, ResourceReport, ResourceLog,
}

func (t ResourceType) Valid() bool {
	switch t {
	case ResourceScan, ResourceEntity, ResourceEvent, ResourceReport, ResourceLog:
		return true
	}
	return false
}

// CriterionType is one of the fixed predicate kinds a rule may use.
type CriterionType string

const (
	CriterionAge    CriterionType = "age"
	CriterionStatus CriterionType = "status"
	CriterionTag    CriterionType = "tag"
	CriterionSize   CriterionType = "size"
)

// RuleAction is the closed set of enforcement actions.
type RuleAction string

const (
	ActionDelete           RuleAction = "delete"
	ActionArchive          RuleAction = "archive"
	ActionExportThenDelete RuleAction = "export_then_delete"
)

func (a RuleAction) Valid() bool {
	switch a {
	case ActionDelete, ActionArchive, ActionExportThenDelete:
		return true
	}
	return false
}

// RuleCriterion is a single predicate a resource must satisfy.
// Value is interpreted per Type: days for age, bytes for size,
// an exact status string, or a tag name.
type RuleCriterion struct {
	Type     CriterionType `json:"criteria_type"`
	Operator string        `json:"operator"`
	Value    string        `json:"value"`
}

// RetentionRule declares what to clean up and how. Rules are read-only
// input to the engine; the API layer owns their lifecycle.
type RetentionRule struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	ResourceType ResourceType    `json:"resource_type"`
	Criteria     []RuleCriterion `json:"criteria"`
	Action       RuleAction      `json:"action"`
	Enabled      bool            `json:"enabled"`
	Priority     int             `json:"priority"`
	CreatedAt    time.Time       `json:"created_at"`
}

// RuleSummary is a rule plus its most recent non-preview run, as shown on
// the dashboard rule list.
type RuleSummary struct {
	RetentionRule
	LastRun *EnforcementRun `json:"last_run,omitempty"`
}

// ResourceDescriptor is the engine's opaque view of one stored resource.
// The engine holds descriptors only for the duration of a run's snapshot.
type ResourceDescriptor struct {
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id"`
	CreatedAt    time.Time    `json:"created_at"`
	SizeBytes    int64        `json:"size_bytes"`
	Status       string       `json:"status"`
	Tags         []string     `json:"tags,omitempty"`
}

// HasTag reports whether the descriptor carries the given tag.
func (d ResourceDescriptor) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// RunTrigger records what started an enforcement run.
type RunTrigger string

const (
	TriggerManual    RunTrigger = "manual"
	TriggerScheduled RunTrigger = "scheduled"
	TriggerPreview   RunTrigger = "preview"
)

// RunStatus is the run state machine. A run transitions
// running -> terminal exactly once and is never deleted.
type RunStatus string

const (
	RunPending             RunStatus = "pending"
	RunRunning             RunStatus = "running"
	RunCompleted           RunStatus = "completed"
	RunCompletedWithErrors RunStatus = "completed_with_errors"
	RunFailed              RunStatus = "failed"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunCompletedWithErrors, RunFailed:
		return true
	}
	return false
}

// Error codes recorded on per-resource run errors. ErrCodeExportedDeletePending
// marks a resource whose export was verified but whose delete failed; a later
// run skips the export and retries only the delete.
const (
	ErrCodeDeleteFailed          = "delete_failed"
	ErrCodeArchiveFailed         = "archive_failed"
	ErrCodeStatusUpdateFailed    = "status_update_failed"
	ErrCodeExportFailed          = "export_failed"
	ErrCodeVerifyFailed          = "verify_failed"
	ErrCodeContentFetchFailed    = "content_fetch_failed"
	ErrCodeExportedDeletePending = "exported_delete_pending"
)

// RunError is one per-resource failure inside a run.
type RunError struct {
	ResourceID string `json:"resource_id"`
	Code       string `json:"code"`
	Reason     string `json:"reason"`
	// Checksum is set only for exported_delete_pending entries so a retry
	// can re-verify the export without re-uploading.
	Checksum string `json:"checksum,omitempty"`
}

// EnforcementRun is the audit record of one matching+action pipeline
// execution. Preview runs carry trigger=preview and never mutate resources.
type EnforcementRun struct {
	ID              string     `json:"id"`
	RuleID          string     `json:"rule_id"`
	Trigger         RunTrigger `json:"trigger"`
	Status          RunStatus  `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	MatchedCount    int        `json:"matched_count"`
	SucceededCount  int        `json:"succeeded_count"`
	FailedCount     int        `json:"failed_count"`
	SpaceFreedBytes int64      `json:"space_freed_bytes"`
	FaultReason     string     `json:"fault_reason,omitempty"`
	Errors          []RunError `json:"errors,omitempty"`
}

// PreviewResult is the advisory matched set for a rule. Matching is redone
// at actual enforcement time; a preview never pins resources.
type PreviewResult struct {
	RuleID       string            `json:"rule_id"`
	ResourceType ResourceType      `json:"resource_type"`
	EvaluatedAt  time.Time         `json:"evaluated_at"`
	MatchedCount int               `json:"matched_count"`
	MatchedIDs   []string          `json:"matched_ids"`
	TotalBytes   int64             `json:"total_bytes"`
	Rationale    map[string]string `json:"rationale,omitempty"`
}

// RetentionStats is a derived projection over terminal non-preview runs.
// It is recomputable from the run history at any time.
type RetentionStats struct {
	TotalRules   int        `json:"total_rules"`
	TotalCleaned int64      `json:"total_cleaned"`
	SpaceFreed   int64      `json:"space_freed"`
	LastEnforced *time.Time `json:"last_enforced,omitempty"`
	NextSweep    *time.Time `json:"next_sweep,omitempty"`
}
