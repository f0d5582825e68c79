package automation

import (
	"context"
	"fmt"
	"sync"

	"opsflow/internal/models"
)

// Rule is the decoded, read-only view of a stored automation rule that the
// engine evaluates. Nil TriggerEvent or BrandID act as wildcards.
type Rule struct {
	ID           string
	VersionID    string
	Name         string
	CompanyID    string
	BrandID      *string
	TriggerEvent *string
	Enabled      bool
	Conditions   models.ConditionGroup
	Plan         []models.ActionInvocation
}

// RuleStore is the rule persistence contract. Implementations return only
// enabled rules already narrowed to the event type and brand scope (both
// including wildcard rows).
type RuleStore interface {
	FindEnabledRules(ctx context.Context, companyID, eventType, brandID string) ([]Rule, error)
}

// RuleMatcher resolves the candidate rule set for an incoming event. An
// override rule list can be injected for deterministic tests, bypassing the
// store entirely.
type RuleMatcher struct {
	store RuleStore

	mu          sync.RWMutex
	override    []Rule
	overrideSet bool
}

func NewRuleMatcher(store RuleStore) *RuleMatcher {
	return &RuleMatcher{store: store}
}

// UseOverride makes subsequent Match calls filter the given fixed list
// instead of querying the store. The list is copied so later caller
// mutations cannot leak in.
func (m *RuleMatcher) UseOverride(rules []Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.override = append([]Rule(nil), rules...)
	m.overrideSet = true
}

// ClearOverride restores store-backed matching.
func (m *RuleMatcher) ClearOverride() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.override = nil
	m.overrideSet = false
}

// Match returns the rules eligible for the event: enabled, trigger event nil
// or equal to the event type, brand nil or equal to the event's brand scope.
func (m *RuleMatcher) Match(ctx context.Context, evt models.DomainEvent, brandID string) ([]Rule, error) {
	m.mu.RLock()
	override, overrideSet := m.override, m.overrideSet
	m.mu.RUnlock()

	if overrideSet {
		return FilterRules(override, evt.Type, brandID), nil
	}

	rules, err := m.store.FindEnabledRules(ctx, evt.CompanyID, evt.Type, brandID)
	if err != nil {
		return nil, fmt.Errorf("find enabled rules: %w", err)
	}
	return FilterRules(rules, evt.Type, brandID), nil
}

// FilterRules is the pure matching filter. It never mutates or reorders its
// input; eligible rules are returned in a fresh slice in input order.
func FilterRules(rules []Rule, eventType, brandID string) []Rule {
	matched := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if rule.TriggerEvent != nil && *rule.TriggerEvent != eventType {
			continue
		}
		if rule.BrandID != nil && *rule.BrandID != brandID {
			continue
		}
		matched = append(matched, rule)
	}
	return matched
}
