package audit

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"opsflow/internal/models"
)

// GormSink appends audit records to the automation_audit_records table.
// Records are inserted once and never updated.
type GormSink struct {
	db *gorm.DB
}

func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

func (s *GormSink) Capture(ctx context.Context, env Envelope) error {
	record := env.Record
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("capture audit record: %w", err)
	}
	return nil
}

func (s *GormSink) ListRecords(ctx context.Context, tenantID string, limit int) ([]models.AutomationAuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Order("occurred_at DESC").Limit(limit)
	if tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}
	var records []models.AutomationAuditRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	return records, nil
}
