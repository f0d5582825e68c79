package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"opsflow/internal/automation"
	"opsflow/internal/models"
)

// RuleStore loads tenant-scoped automation rules from the database and
// decodes their JSON condition/action columns into the engine's domain view.
// The engine never writes rules; rule CRUD lives with the surrounding
// platform.
type RuleStore struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewRuleStore(db *gorm.DB, logger *logrus.Logger) *RuleStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &RuleStore{db: db, logger: logger}
}

// FindEnabledRules returns enabled rules for the tenant whose trigger event
// is NULL (any event) or equal to eventType, and whose brand is NULL (any
// brand) or equal to brandID. Rules with undecodable configuration are
// logged and dropped rather than failing the whole event.
func (s *RuleStore) FindEnabledRules(ctx context.Context, companyID, eventType, brandID string) ([]automation.Rule, error) {
	var rows []models.AutomationRule
	query := s.db.WithContext(ctx).
		Where("company_id = ? AND enabled = ?", companyID, true).
		Where("trigger_event IS NULL OR trigger_event = ?", eventType)
	if brandID != "" {
		query = query.Where("brand_id IS NULL OR brand_id = ?", brandID)
	} else {
		query = query.Where("brand_id IS NULL")
	}
	if err := query.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query enabled rules: %w", err)
	}

	rules := make([]automation.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := decodeRule(row)
		if err != nil {
			s.logger.WithField("rule_id", row.ID).Warnf("automation: invalid rule config, skipping: %v", err)
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func decodeRule(row models.AutomationRule) (automation.Rule, error) {
	rule := automation.Rule{
		ID:           row.ID,
		VersionID:    fmt.Sprintf("%s@%d", row.ID, row.UpdatedAt.Unix()),
		Name:         row.Name,
		CompanyID:    row.CompanyID,
		BrandID:      row.BrandID,
		TriggerEvent: row.TriggerEvent,
		Enabled:      row.Enabled,
	}
	if row.Conditions != "" {
		if err := json.Unmarshal([]byte(row.Conditions), &rule.Conditions); err != nil {
			return automation.Rule{}, fmt.Errorf("decode conditions: %w", err)
		}
	}
	if row.Actions != "" {
		if err := json.Unmarshal([]byte(row.Actions), &rule.Plan); err != nil {
			return automation.Rule{}, fmt.Errorf("decode actions: %w", err)
		}
	}
	return rule, nil
}
