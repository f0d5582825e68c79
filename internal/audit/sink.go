package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"opsflow/internal/models"
)

// SchemaVersion tags every captured envelope so downstream consumers can
// migrate record shapes.
const SchemaVersion = 1

// Envelope wraps an audit record for capture.
type Envelope struct {
	Record        models.AutomationAuditRecord `json:"record"`
	SchemaVersion int                          `json:"schemaVersion"`
}

// Sink receives append-only audit envelopes. Captures are fire-and-forget
// relative to run processing: a sink failure must never fail the run.
type Sink interface {
	Capture(ctx context.Context, env Envelope) error
}

// Reader lists previously captured records, newest first.
type Reader interface {
	ListRecords(ctx context.Context, tenantID string, limit int) ([]models.AutomationAuditRecord, error)
}

// NewPlanTraceRecord builds a RUN-level PLAN_TRACE record from a run trace.
func NewPlanTraceRecord(trace models.RunTrace) models.AutomationAuditRecord {
	encoded, _ := json.Marshal(trace)
	return models.AutomationAuditRecord{
		AuditID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		TenantID:   trace.CompanyID,
		Kind:       models.AuditKindPlanTrace,
		Level:      models.AuditLevelRun,
		Trace:      string(encoded),
	}
}

// NewRuntimeResultRecord builds a RULE-level RUNTIME_RESULT record for one
// rule's action results.
func NewRuntimeResultRecord(tenantID string, ruleTrace models.RuleTrace) models.AutomationAuditRecord {
	encoded, _ := json.Marshal(ruleTrace.Results)
	return models.AutomationAuditRecord{
		AuditID:       uuid.NewString(),
		OccurredAt:    time.Now().UTC(),
		TenantID:      tenantID,
		Kind:          models.AuditKindRuntimeResult,
		Level:         models.AuditLevelRule,
		RuntimeResult: string(encoded),
	}
}

// MemorySink keeps envelopes in memory. Used in tests and as a safe default
// when no durable sink is configured.
type MemorySink struct {
	mu       sync.Mutex
	captured []Envelope
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Capture(_ context.Context, env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captured = append(s.captured, env)
	return nil
}

// Captured returns a copy of everything captured so far.
func (s *MemorySink) Captured() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.captured...)
}

func (s *MemorySink) ListRecords(_ context.Context, tenantID string, limit int) ([]models.AutomationAuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]models.AutomationAuditRecord, 0, len(s.captured))
	for i := len(s.captured) - 1; i >= 0; i-- {
		rec := s.captured[i].Record
		if tenantID != "" && rec.TenantID != tenantID {
			continue
		}
		records = append(records, rec)
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}
