package repository

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"opsflow/internal/models"
)

func newRuleTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.AutomationRule{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func quietRuleLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func seedRule(t *testing.T, db *gorm.DB, rule models.AutomationRule) {
	t.Helper()
	if rule.Name == "" {
		rule.Name = rule.ID
	}
	if err := db.Create(&rule).Error; err != nil {
		t.Fatalf("seed rule %s: %v", rule.ID, err)
	}
}

func TestFindEnabledRulesScoping(t *testing.T) {
	db := newRuleTestDB(t)
	store := NewRuleStore(db, quietRuleLogger())
	ctx := context.Background()

	event := "ORDER_PLACED"
	other := "INVOICE_PAID"
	brand := "brand-a"

	seedRule(t, db, models.AutomationRule{ID: "r-exact", CompanyID: "comp-1", TriggerEvent: &event, Enabled: true})
	seedRule(t, db, models.AutomationRule{ID: "r-wildcard", CompanyID: "comp-1", Enabled: true})
	seedRule(t, db, models.AutomationRule{ID: "r-other-event", CompanyID: "comp-1", TriggerEvent: &other, Enabled: true})
	seedRule(t, db, models.AutomationRule{ID: "r-disabled", CompanyID: "comp-1", TriggerEvent: &event, Enabled: false})
	seedRule(t, db, models.AutomationRule{ID: "r-other-tenant", CompanyID: "comp-2", TriggerEvent: &event, Enabled: true})
	seedRule(t, db, models.AutomationRule{ID: "r-branded", CompanyID: "comp-1", TriggerEvent: &event, BrandID: &brand, Enabled: true})

	// No brand scope: brand-specific rules are excluded.
	rules, err := store.FindEnabledRules(ctx, "comp-1", event, "")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	ids := make(map[string]bool, len(rules))
	for _, r := range rules {
		ids[r.ID] = true
	}
	if len(rules) != 2 || !ids["r-exact"] || !ids["r-wildcard"] {
		t.Fatalf("unbranded rules: %v", ids)
	}

	// Brand scope includes both brand-specific and brand-wildcard rules.
	rules, err = store.FindEnabledRules(ctx, "comp-1", event, brand)
	if err != nil {
		t.Fatalf("find branded: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("expected 3 branded-scope rules, got %d", len(rules))
	}
}

func TestFindEnabledRulesDecodesConfig(t *testing.T) {
	db := newRuleTestDB(t)
	store := NewRuleStore(db, quietRuleLogger())
	ctx := context.Background()

	seedRule(t, db, models.AutomationRule{
		ID:         "r-1",
		CompanyID:  "comp-1",
		Enabled:    true,
		Conditions: `{"all":[{"path":"payload.total","op":"equals","value":42}]}`,
		Actions:    `[{"actionKey":"internal_log","payload":{"note":"hi"}}]`,
		UpdatedAt:  time.Now(),
	})

	rules, err := store.FindEnabledRules(ctx, "comp-1", "ORDER_PLACED", "")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}

	rule := rules[0]
	if len(rule.Conditions.All) != 1 || rule.Conditions.All[0].Path != "payload.total" {
		t.Fatalf("conditions not decoded: %+v", rule.Conditions)
	}
	if len(rule.Plan) != 1 || rule.Plan[0].ActionKey != "internal_log" {
		t.Fatalf("plan not decoded: %+v", rule.Plan)
	}
	if rule.VersionID == "" || rule.VersionID == rule.ID {
		t.Fatalf("version id not derived: %q", rule.VersionID)
	}
}

func TestFindEnabledRulesSkipsInvalidConfig(t *testing.T) {
	db := newRuleTestDB(t)
	store := NewRuleStore(db, quietRuleLogger())
	ctx := context.Background()

	seedRule(t, db, models.AutomationRule{ID: "r-bad", CompanyID: "comp-1", Enabled: true, Conditions: "{not json"})
	seedRule(t, db, models.AutomationRule{ID: "r-good", CompanyID: "comp-1", Enabled: true})

	rules, err := store.FindEnabledRules(ctx, "comp-1", "ANY", "")
	if err != nil {
		t.Fatalf("a broken rule must not fail the query: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != "r-good" {
		t.Fatalf("rules: %+v", rules)
	}
}
