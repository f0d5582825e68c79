package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"opsflow/internal/automation"
	"opsflow/internal/models"
)

// RunStore persists automation runs. The idempotency guarantee lives here:
// automation_runs carries a unique index on idempotency_key, so concurrent
// duplicate begin-run calls collapse into one insert winner and losers get
// ErrDuplicateIdempotencyKey.
type RunStore struct {
	db *gorm.DB
}

func NewRunStore(db *gorm.DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) CreateRun(ctx context.Context, run *models.AutomationRun) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", automation.ErrDuplicateIdempotencyKey, run.IdempotencyKey)
		}
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *RunStore) FindRunByKey(ctx context.Context, idempotencyKey string) (*models.AutomationRun, error) {
	var run models.AutomationRun
	err := s.db.WithContext(ctx).Where("idempotency_key = ?", idempotencyKey).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: key %s", automation.ErrRunNotFound, idempotencyKey)
	}
	if err != nil {
		return nil, fmt.Errorf("find run by key: %w", err)
	}
	return &run, nil
}

func (s *RunStore) FindRun(ctx context.Context, runID string) (*models.AutomationRun, error) {
	var run models.AutomationRun
	err := s.db.WithContext(ctx).First(&run, "id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %s", automation.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}
	return &run, nil
}

func (s *RunStore) ListRuns(ctx context.Context, companyID string, limit int) ([]models.AutomationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if companyID != "" {
		query = query.Where("company_id = ?", companyID)
	}
	var runs []models.AutomationRun
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// UpdateRunStatus advances a non-terminal run. Terminal runs are left
// untouched; status regressions cannot happen because the guard only selects
// PENDING and RUNNING rows.
func (s *RunStore) UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus) error {
	result := s.db.WithContext(ctx).Model(&models.AutomationRun{}).
		Where("id = ? AND status IN ?", runID, []models.RunStatus{models.RunStatusPending, models.RunStatusRunning}).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("update run status: %w", result.Error)
	}
	return nil
}

// FinalizeRun moves a run into a terminal state. Returns false when the run
// was already terminal (the update matched no rows), which callers treat as
// a no-op rather than an error.
func (s *RunStore) FinalizeRun(ctx context.Context, runID string, status models.RunStatus, summary, trace, errMsg string, finishedAt time.Time) (bool, error) {
	run, err := s.FindRun(ctx, runID)
	if err != nil {
		return false, err
	}

	result := s.db.WithContext(ctx).Model(&models.AutomationRun{}).
		Where("id = ? AND status IN ?", runID, []models.RunStatus{models.RunStatusPending, models.RunStatusRunning}).
		Updates(map[string]interface{}{
			"status":      status,
			"summary":     summary,
			"trace":       trace,
			"error":       errMsg,
			"finished_at": finishedAt,
			"duration_ms": finishedAt.Sub(run.StartedAt).Milliseconds(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("finalize run: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// isUniqueViolation recognizes duplicate-key errors from the backends the
// platform runs on (postgres in production, sqlite in tests).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
