package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"opsflow/internal/models"
)

// RunStore is the persistence contract for automation runs. CreateRun must be
// an atomic insert-if-absent over the idempotency key (a uniqueness constraint
// at the storage layer), returning ErrDuplicateIdempotencyKey on conflict.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.AutomationRun) error
	FindRunByKey(ctx context.Context, idempotencyKey string) (*models.AutomationRun, error)
	FindRun(ctx context.Context, runID string) (*models.AutomationRun, error)
	ListRuns(ctx context.Context, companyID string, limit int) ([]models.AutomationRun, error)
	UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus) error
	FinalizeRun(ctx context.Context, runID string, status models.RunStatus, summary, trace, errMsg string, finishedAt time.Time) (bool, error)
}

// BeginRunInput captures everything the ledger records when a run begins.
type BeginRunInput struct {
	EventType      string
	CompanyID      string
	IdempotencyKey string
	RuleID         string
	RuleVersionID  string
	Plan           []models.ActionInvocation
}

// FinalizeInput moves a run into a terminal state.
type FinalizeInput struct {
	RunID   string
	Status  models.RunStatus
	Summary string
	Trace   models.RunTrace
	Error   string
}

// RunLedger owns the idempotent run lifecycle. BeginRun is the engine's only
// synchronization point: concurrent duplicates of the same logical event are
// serialized by the run store's uniqueness constraint, never by locks here.
type RunLedger struct {
	store  RunStore
	logger *logrus.Logger
}

func NewRunLedger(store RunStore, logger *logrus.Logger) *RunLedger {
	if logger == nil {
		logger = logrus.New()
	}
	return &RunLedger{store: store, logger: logger}
}

// BeginRun returns the run for an idempotency key, creating it when absent.
// The second return value reports whether this call created the run: false
// means a run already existed (terminal or in flight) and the caller must not
// re-execute side effects.
func (l *RunLedger) BeginRun(ctx context.Context, input BeginRunInput) (*models.AutomationRun, bool, error) {
	if input.IdempotencyKey == "" {
		return nil, false, fmt.Errorf("begin run: idempotency key required")
	}

	existing, err := l.store.FindRunByKey(ctx, input.IdempotencyKey)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrRunNotFound) {
		return nil, false, fmt.Errorf("begin run: lookup: %w", err)
	}

	planJSON, err := json.Marshal(input.Plan)
	if err != nil {
		return nil, false, fmt.Errorf("begin run: encode plan: %w", err)
	}

	run := &models.AutomationRun{
		ID:             uuid.NewString(),
		RuleID:         input.RuleID,
		RuleVersionID:  input.RuleVersionID,
		EventType:      input.EventType,
		CompanyID:      input.CompanyID,
		IdempotencyKey: input.IdempotencyKey,
		Status:         models.RunStatusPending,
		Plan:           string(planJSON),
		StartedAt:      time.Now().UTC(),
	}

	switch err := l.store.CreateRun(ctx, run); {
	case err == nil:
		return run, true, nil
	case errors.Is(err, ErrDuplicateIdempotencyKey):
		// Lost the insert race: another writer began this run first.
		winner, ferr := l.store.FindRunByKey(ctx, input.IdempotencyKey)
		if ferr != nil {
			return nil, false, fmt.Errorf("begin run: fetch after conflict: %w", ferr)
		}
		return winner, false, nil
	default:
		return nil, false, fmt.Errorf("begin run: create: %w", err)
	}
}

// MarkRunning transitions a pending run to RUNNING.
func (l *RunLedger) MarkRunning(ctx context.Context, runID string) error {
	if err := l.store.UpdateRunStatus(ctx, runID, models.RunStatusRunning); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	return nil
}

// FinalizeRun moves a run into a terminal state. Finalizing an already
// terminal run is a no-op: terminal states are immutable.
func (l *RunLedger) FinalizeRun(ctx context.Context, input FinalizeInput) error {
	if !input.Status.Terminal() {
		return fmt.Errorf("finalize run: %s is not a terminal status", input.Status)
	}

	traceJSON, err := json.Marshal(input.Trace)
	if err != nil {
		return fmt.Errorf("finalize run: encode trace: %w", err)
	}

	applied, err := l.store.FinalizeRun(ctx, input.RunID, input.Status, input.Summary, string(traceJSON), input.Error, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	if !applied {
		l.logger.WithField("run_id", input.RunID).Debug("automation: finalize skipped, run already terminal")
	}
	return nil
}
