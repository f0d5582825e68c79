package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"opsflow/internal/models"
)

// ActionKeyConditional branches between two sub-plans based on a single
// predicate over the shared execution context.
const ActionKeyConditional = "conditional"

// conditionalPayload is the decoded invocation payload for the conditional
// adapter. Branch items carry a Key used for deterministic ordering.
type conditionalPayload struct {
	Path        string              `json:"path"`
	Op          string              `json:"op"`
	Value       interface{}         `json:"value,omitempty"`
	ThenActions []conditionalBranch `json:"thenActions,omitempty"`
	ElseActions []conditionalBranch `json:"elseActions,omitempty"`
}

type conditionalBranch struct {
	Key       string                 `json:"key"`
	ActionKey string                 `json:"actionKey"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// ConditionalAction evaluates exists/equals/contains against a dot-path into
// the execution context and runs the chosen branch through the delegated
// executor. Branch items are sorted lexicographically by Key before execution
// so ordering is reproducible regardless of input order; the sort operates on
// a copy and the shared context is never touched.
type ConditionalAction struct {
	executor PlanExecutor
}

func NewConditionalAction(executor PlanExecutor) *ConditionalAction {
	return &ConditionalAction{executor: executor}
}

func (a *ConditionalAction) Execute(ctx context.Context, payload map[string]interface{}, actx models.ActionContext) (ActionOutcome, error) {
	if a.executor == nil {
		return ActionOutcome{Status: models.ActionStatusFailed, Error: "conditional action requires a delegated executor"}, nil
	}

	decoded, err := decodeConditionalPayload(payload)
	if err != nil {
		return ActionOutcome{Status: models.ActionStatusFailed, Error: err.Error()}, nil
	}

	branch := decoded.ElseActions
	if evaluateContextPredicate(decoded, actx) {
		branch = decoded.ThenActions
	}

	plan := orderedBranchPlan(branch)
	subResults := a.executor.ExecutePlan(ctx, plan, actx)

	outcome := ActionOutcome{Status: models.ActionStatusSuccess, SubResults: subResults}
	for _, sub := range subResults {
		if sub.Status == models.ActionStatusFailed {
			outcome.Status = models.ActionStatusFailed
			outcome.Error = fmt.Sprintf("branch action %s failed", sub.ActionKey)
			break
		}
	}
	return outcome, nil
}

func decodeConditionalPayload(payload map[string]interface{}) (conditionalPayload, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return conditionalPayload{}, fmt.Errorf("conditional payload not encodable: %v", err)
	}
	var decoded conditionalPayload
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return conditionalPayload{}, fmt.Errorf("invalid conditional payload: %v", err)
	}
	if decoded.Path == "" || decoded.Op == "" {
		return conditionalPayload{}, fmt.Errorf("conditional payload requires path and op")
	}
	return decoded, nil
}

func evaluateContextPredicate(p conditionalPayload, actx models.ActionContext) bool {
	doc := map[string]interface{}{
		"executionId":    actx.ExecutionID,
		"idempotencyKey": actx.IdempotencyKey,
		"companyId":      actx.CompanyID,
		"source":         actx.Source,
	}
	if len(actx.Metadata) > 0 {
		meta := make(map[string]interface{}, len(actx.Metadata))
		for k, v := range actx.Metadata {
			meta[k] = v
		}
		doc["metadata"] = meta
	}

	actual, found := resolvePath(doc, p.Path)
	switch p.Op {
	case "exists":
		return found && actual != nil
	case "equals":
		return found && valueEquals(actual, p.Value)
	case "contains":
		return found && valueContains(actual, p.Value)
	default:
		return false
	}
}

// orderedBranchPlan copies the branch, sorts it by Key and lowers it to an
// ordinary plan for the delegated executor.
func orderedBranchPlan(branch []conditionalBranch) []models.ActionInvocation {
	ordered := append([]conditionalBranch(nil), branch...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Key < ordered[j].Key })

	plan := make([]models.ActionInvocation, 0, len(ordered))
	for _, item := range ordered {
		plan = append(plan, models.ActionInvocation{ActionKey: item.ActionKey, Payload: item.Payload})
	}
	return plan
}
