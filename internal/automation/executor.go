package automation

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"opsflow/internal/metrics"
	"opsflow/internal/models"
)

// PlanExecutor runs an ordered action plan against one shared context. The
// conditional adapter delegates its branches through this interface.
type PlanExecutor interface {
	ExecutePlan(ctx context.Context, plan []models.ActionInvocation, actx models.ActionContext) []models.ActionResult
}

// ActionExecutor executes plans strictly in order with fail-open
// continuation: one action's failure never aborts the plan, since most
// actions are independent side effects. The returned result slice always has
// exactly one entry per invocation, index-aligned with the plan.
type ActionExecutor struct {
	registry *ActionRegistry
	metrics  *metrics.Collector
	logger   *logrus.Logger
}

func NewActionExecutor(registry *ActionRegistry, collector *metrics.Collector, logger *logrus.Logger) *ActionExecutor {
	if logger == nil {
		logger = logrus.New()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &ActionExecutor{registry: registry, metrics: collector, logger: logger}
}

// ExecutePlan runs every invocation in plan order. Unknown action keys yield
// SKIPPED results, adapter errors and panics yield FAILED results with the
// error formatted to a string; neither stops the remaining actions.
func (e *ActionExecutor) ExecutePlan(ctx context.Context, plan []models.ActionInvocation, actx models.ActionContext) []models.ActionResult {
	results := make([]models.ActionResult, 0, len(plan))

	for _, invocation := range plan {
		handler, ok := e.registry.Resolve(invocation.ActionKey)
		if !ok {
			e.metrics.ActionSkipped()
			e.logger.WithFields(logrus.Fields{
				"action":       invocation.ActionKey,
				"execution_id": actx.ExecutionID,
			}).Warn("automation: action not registered, skipping")
			results = append(results, models.ActionResult{
				ActionKey:      invocation.ActionKey,
				Status:         models.ActionStatusSkipped,
				IdempotencyKey: actx.IdempotencyKey,
			})
			continue
		}

		e.metrics.ActionStarted()
		outcome, err := e.invoke(ctx, handler, invocation.Payload, actx)

		result := models.ActionResult{
			ActionKey:      invocation.ActionKey,
			IdempotencyKey: actx.IdempotencyKey,
			SubResults:     outcome.SubResults,
		}
		switch {
		case err != nil:
			result.Status = models.ActionStatusFailed
			result.Error = err.Error()
		case outcome.Status == "":
			result.Status = models.ActionStatusSuccess
			result.Error = outcome.Error
		default:
			result.Status = outcome.Status
			result.Error = outcome.Error
		}

		switch result.Status {
		case models.ActionStatusFailed:
			e.metrics.ActionFailed(invocation.ActionKey)
			e.logger.WithFields(logrus.Fields{
				"action":       invocation.ActionKey,
				"execution_id": actx.ExecutionID,
			}).Warnf("automation: action failed: %s", result.Error)
		case models.ActionStatusSkipped:
			e.metrics.ActionSkipped()
		default:
			e.metrics.ActionSucceeded()
		}

		results = append(results, result)
	}

	return results
}

// invoke calls the handler and converts panics into plain errors so a
// misbehaving adapter cannot take down the run.
func (e *ActionExecutor) invoke(ctx context.Context, handler ActionHandler, payload map[string]interface{}, actx models.ActionContext) (outcome ActionOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = ActionOutcome{}
			err = fmt.Errorf("%v", r)
		}
	}()
	return handler.Execute(ctx, payload, actx)
}
