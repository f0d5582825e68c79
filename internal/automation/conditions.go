package automation

import (
	"fmt"
	"reflect"
	"strings"

	"opsflow/internal/models"
)

// Evaluation is the outcome of checking a condition group against an event:
// whether it matched plus one human-readable reason per evaluated condition,
// in evaluation order. Reasons feed the audit trail.
type Evaluation struct {
	Matches bool     `json:"matches"`
	Reasons []string `json:"reasons"`
}

// EvaluateConditions checks a condition group against a domain event. It is
// pure and never returns an error: unsupported operators and missing paths
// simply count as non-matches with an explanatory reason.
//
// Semantics: all entries of All must hold; at least one entry of Any must
// hold. A vacuous All or Any holds trivially, and a group with neither
// configured matches trivially.
func EvaluateConditions(group models.ConditionGroup, evt models.DomainEvent) Evaluation {
	if len(group.All) == 0 && len(group.Any) == 0 {
		return Evaluation{Matches: true, Reasons: []string{"no conditions configured"}}
	}

	root := eventDocument(evt)
	reasons := make([]string, 0, len(group.All)+len(group.Any))

	allOK := true
	for _, cond := range group.All {
		ok, reason := evaluateCondition(cond, root)
		reasons = append(reasons, reason)
		if !ok {
			allOK = false
		}
	}

	anyOK := len(group.Any) == 0
	for _, cond := range group.Any {
		ok, reason := evaluateCondition(cond, root)
		reasons = append(reasons, reason)
		if ok {
			anyOK = true
		}
	}

	return Evaluation{Matches: allOK && anyOK, Reasons: reasons}
}

func evaluateCondition(cond models.Condition, root map[string]interface{}) (bool, string) {
	actual, found := resolvePath(root, cond.Path)

	switch cond.Op {
	case "equals":
		ok := found && valueEquals(actual, cond.Value)
		return ok, conditionReason(cond, ok, actual)
	case "contains":
		ok := found && valueContains(actual, cond.Value)
		return ok, conditionReason(cond, ok, actual)
	case "exists":
		ok := found && actual != nil
		return ok, conditionReason(cond, ok, actual)
	default:
		return false, fmt.Sprintf("%s: unsupported operator %q, treated as no match", cond.Path, cond.Op)
	}
}

func conditionReason(cond models.Condition, matched bool, actual interface{}) string {
	verdict := "no match"
	if matched {
		verdict = "match"
	}
	if cond.Op == "exists" {
		return fmt.Sprintf("%s exists: %s", cond.Path, verdict)
	}
	return fmt.Sprintf("%s %s %v (actual %v): %s", cond.Path, cond.Op, cond.Value, actual, verdict)
}

// eventDocument exposes the event as a plain document so condition paths like
// "payload.role" or "companyId" resolve uniformly.
func eventDocument(evt models.DomainEvent) map[string]interface{} {
	return map[string]interface{}{
		"type":      evt.Type,
		"companyId": evt.CompanyID,
		"payload":   evt.Payload,
		"source":    evt.Source,
	}
}

// resolvePath walks dot-separated segments through nested maps. Any missing
// intermediate yields (nil, false); it never panics on absent keys.
func resolvePath(root map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	var current interface{} = root
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// valueEquals is strict equality over JSON-decoded values. Numeric types are
// normalized to float64 first so 2 and 2.0 compare equal after decoding.
func valueEquals(a, b interface{}) bool {
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		return ok && af == bf
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a).Comparable() && reflect.TypeOf(b).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// valueContains implements the permissive containment check: substring match
// for strings, element equality for slices, false for anything else.
func valueContains(actual, expected interface{}) bool {
	switch v := actual.(type) {
	case string:
		return strings.Contains(v, fmt.Sprintf("%v", expected))
	case []interface{}:
		for _, item := range v {
			if valueEquals(item, expected) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range v {
			if valueEquals(item, expected) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
