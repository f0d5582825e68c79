package models

import "time"

// RunStatus is the lifecycle state of an automation run.
// Transitions are monotonic: PENDING -> RUNNING -> {SUCCESS|FAILED|SKIPPED}.
type RunStatus string

const (
	RunStatusPending RunStatus = "PENDING"
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailed  RunStatus = "FAILED"
	RunStatusSkipped RunStatus = "SKIPPED"
)

// Terminal reports whether a run in this status may never change again.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusFailed, RunStatusSkipped:
		return true
	}
	return false
}

// ActionStatus is the outcome of a single action invocation.
type ActionStatus string

const (
	ActionStatusSuccess ActionStatus = "SUCCESS"
	ActionStatusFailed  ActionStatus = "FAILED"
	ActionStatusSkipped ActionStatus = "SKIPPED"
)

// Execution sources carried on the shared action context.
const (
	SourceSystem     = "SYSTEM"
	SourceAPI        = "API"
	SourceAutomation = "AUTOMATION"
)

// DomainEvent is an immutable fact published by another subsystem.
// The engine consumes it read-only; Payload is opaque JSON.
type DomainEvent struct {
	Type           string                 `json:"type"`
	CompanyID      string                 `json:"companyId"`
	Payload        map[string]interface{} `json:"payload"`
	OccurredAt     time.Time              `json:"occurredAt"`
	IdempotencyKey string                 `json:"idempotencyKey,omitempty"`
	Source         string                 `json:"source,omitempty"`
}

// Condition is a single predicate over a dot-notation path into the event.
// Supported operators: equals, contains, exists.
type Condition struct {
	Path  string      `json:"path"`
	Op    string      `json:"op"`
	Value interface{} `json:"value,omitempty"`
}

// ConditionGroup combines conditions: All entries are AND-ed, Any entries
// are OR-ed. An empty group trivially matches.
type ConditionGroup struct {
	All []Condition `json:"all,omitempty"`
	Any []Condition `json:"any,omitempty"`
}

// ActionInvocation is one entry of an ordered action plan.
type ActionInvocation struct {
	ActionKey string                 `json:"actionKey"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// ActionContext is shared read-only state for every action in one run.
type ActionContext struct {
	ExecutionID    string            `json:"executionId"`
	IdempotencyKey string            `json:"idempotencyKey"`
	CompanyID      string            `json:"companyId"`
	Source         string            `json:"source"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// ActionResult is the recorded outcome of one invocation. Results are
// collected in plan order, one per invocation.
type ActionResult struct {
	ActionKey      string         `json:"actionKey"`
	Status         ActionStatus   `json:"status"`
	Error          string         `json:"error,omitempty"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
	SubResults     []ActionResult `json:"subResults,omitempty"`
}

// AutomationRule is a tenant-scoped rule configuration. Owned by the rule
// store; the engine reads it and never mutates it. A nil BrandID matches any
// brand, a nil TriggerEvent matches any event type. Conditions and Actions
// are stored as JSON text, matching how trigger configuration is persisted
// elsewhere in the platform.
type AutomationRule struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	CompanyID    string    `gorm:"index;not null" json:"company_id"`
	BrandID      *string   `gorm:"index" json:"brand_id,omitempty"`
	TriggerEvent *string   `gorm:"index" json:"trigger_event,omitempty"`
	Enabled      bool      `gorm:"default:true" json:"enabled"`
	Conditions   string    `gorm:"type:text" json:"conditions"`
	Actions      string    `gorm:"type:text" json:"actions"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AutomationRun is one processing attempt of an event occurrence. At most one
// run exists per idempotency key, enforced by the unique index.
type AutomationRun struct {
	ID             string     `gorm:"primaryKey;size:64" json:"id"`
	RuleID         string     `gorm:"index" json:"rule_id,omitempty"`
	RuleVersionID  string     `json:"rule_version_id,omitempty"`
	EventType      string     `gorm:"index" json:"event_type"`
	CompanyID      string     `gorm:"index" json:"company_id"`
	IdempotencyKey string     `gorm:"uniqueIndex;size:128;not null" json:"idempotency_key"`
	Status         RunStatus  `gorm:"index;size:16" json:"status"`
	Plan           string     `gorm:"type:text" json:"plan,omitempty"`
	Trace          string     `gorm:"type:text" json:"trace,omitempty"`
	Summary        string     `gorm:"type:text" json:"summary,omitempty"`
	Error          string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	DurationMs     int64      `json:"duration_ms"`
}

// Audit record classification.
type AuditKind string

const (
	AuditKindPlanTrace     AuditKind = "PLAN_TRACE"
	AuditKindRuntimeResult AuditKind = "RUNTIME_RESULT"
)

type AuditLevel string

const (
	AuditLevelRule   AuditLevel = "RULE"
	AuditLevelRun    AuditLevel = "RUN"
	AuditLevelSystem AuditLevel = "SYSTEM"
)

// AutomationAuditRecord is append-only: written once, never updated.
type AutomationAuditRecord struct {
	AuditID       string     `gorm:"primaryKey;size:64" json:"audit_id"`
	OccurredAt    time.Time  `gorm:"index" json:"occurred_at"`
	TenantID      string     `gorm:"index" json:"tenant_id"`
	Kind          AuditKind  `gorm:"size:32" json:"kind"`
	Level         AuditLevel `gorm:"size:16" json:"level"`
	Trace         string     `gorm:"type:text" json:"trace,omitempty"`
	RuntimeResult string     `gorm:"type:text" json:"runtime_result,omitempty"`
}

// RuleTrace explains how one rule fared against one event: whether it
// matched, per-condition reasons in evaluation order, and per-action results.
type RuleTrace struct {
	RuleID   string         `json:"ruleId"`
	RuleName string         `json:"ruleName"`
	Matched  bool           `json:"matched"`
	Reasons  []string       `json:"reasons,omitempty"`
	Results  []ActionResult `json:"results,omitempty"`
}

// RunTrace is the full explainability trace of one run, the input to the
// summary/narrative projections and to audience redaction.
type RunTrace struct {
	RunID          string      `json:"runId"`
	EventType      string      `json:"eventType"`
	CompanyID      string      `json:"companyId"`
	IdempotencyKey string      `json:"idempotencyKey"`
	Status         RunStatus   `json:"status"`
	Error          string      `json:"error,omitempty"`
	Rules          []RuleTrace `json:"rules,omitempty"`
}
