package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"opsflow/internal/audit"
	"opsflow/internal/metrics"
	"opsflow/internal/models"
)

// BridgeResult is what the event-routing layer gets back: whether the event
// had a registered trigger, and the idempotency key the run was filed under.
type BridgeResult struct {
	Handled        bool   `json:"handled"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// Service is the event-to-automation bridge and run orchestrator. One event
// flows through: trigger resolution, idempotent begin-run, rule matching,
// condition evaluation, ordered action execution, finalization, and audit/
// metrics projection.
type Service struct {
	triggers *TriggerRegistry
	matcher  *RuleMatcher
	ledger   *RunLedger
	executor *ActionExecutor
	metrics  *metrics.Collector
	sink     audit.Sink
	logger   *logrus.Logger
	tracer   trace.Tracer
}

func NewService(
	triggers *TriggerRegistry,
	matcher *RuleMatcher,
	ledger *RunLedger,
	executor *ActionExecutor,
	collector *metrics.Collector,
	sink audit.Sink,
	logger *logrus.Logger,
) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	if sink == nil {
		sink = audit.NewMemorySink()
	}
	return &Service{
		triggers: triggers,
		matcher:  matcher,
		ledger:   ledger,
		executor: executor,
		metrics:  collector,
		sink:     sink,
		logger:   logger,
		tracer:   otel.Tracer("opsflow/automation"),
	}
}

// HandleEvent is the single entry point for domain events. Events without a
// registered trigger return handled=false without touching the run ledger.
// A trigger context missing its company scope is a wiring defect and is the
// only error surfaced to the caller; everything downstream of begin-run is
// contained so sibling event consumers keep dispatching.
func (s *Service) HandleEvent(ctx context.Context, evt models.DomainEvent) (BridgeResult, error) {
	builder, ok := s.triggers.Resolve(evt.Type)
	if !ok {
		return BridgeResult{Handled: false}, nil
	}

	tctx := builder(evt)
	if tctx.CompanyID == "" {
		return BridgeResult{}, fmt.Errorf("%w: event type %s", ErrMissingCompany, evt.Type)
	}

	key := evt.IdempotencyKey
	if key == "" {
		key = IdempotencyKey(evt.Type, tctx.CompanyID, tctx.Payload)
	}

	ctx, span := s.tracer.Start(ctx, "automation.handle_event")
	span.SetAttributes(
		attribute.String("event.type", evt.Type),
		attribute.String("company.id", tctx.CompanyID),
	)
	defer span.End()

	run, created, err := s.ledger.BeginRun(ctx, BeginRunInput{
		EventType:      evt.Type,
		CompanyID:      tctx.CompanyID,
		IdempotencyKey: key,
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"event_type":      evt.Type,
			"idempotency_key": key,
		}).Errorf("automation: begin run failed: %v", err)
		return BridgeResult{Handled: true, IdempotencyKey: key}, nil
	}
	if !created {
		// Duplicate delivery: the existing run stands, side effects do not
		// re-execute.
		s.logger.WithFields(logrus.Fields{
			"run_id":          run.ID,
			"idempotency_key": key,
			"status":          run.Status,
		}).Debug("automation: duplicate event, returning existing run")
		return BridgeResult{Handled: true, IdempotencyKey: key}, nil
	}

	s.processRun(ctx, run, evt, tctx)
	return BridgeResult{Handled: true, IdempotencyKey: key}, nil
}

// processRun drives one freshly created run to a terminal state. Failures
// are recorded on the run and never escape to the caller.
func (s *Service) processRun(ctx context.Context, run *models.AutomationRun, evt models.DomainEvent, tctx TriggerContext) {
	started := time.Now()
	s.metrics.RunStarted()

	if err := s.ledger.MarkRunning(ctx, run.ID); err != nil {
		s.logger.WithField("run_id", run.ID).Warnf("automation: mark running failed: %v", err)
	}

	runTrace := models.RunTrace{
		RunID:          run.ID,
		EventType:      evt.Type,
		CompanyID:      tctx.CompanyID,
		IdempotencyKey: run.IdempotencyKey,
	}

	scoped := evt
	scoped.CompanyID = tctx.CompanyID
	if tctx.Payload != nil {
		scoped.Payload = tctx.Payload
	}

	rules, err := s.matcher.Match(ctx, scoped, tctx.BrandID)
	if err != nil {
		s.finalize(ctx, run, runTrace, models.RunStatusFailed, fmt.Sprintf("rule matching failed: %v", err), started)
		return
	}

	anyMatched := false
	anyActionFailed := false
	for _, rule := range rules {
		ruleTrace := models.RuleTrace{RuleID: rule.ID, RuleName: rule.Name}

		evaluation := EvaluateConditions(rule.Conditions, scoped)
		ruleTrace.Reasons = evaluation.Reasons
		ruleTrace.Matched = evaluation.Matches

		if evaluation.Matches {
			anyMatched = true
			actx := models.ActionContext{
				ExecutionID:    run.ID,
				IdempotencyKey: run.IdempotencyKey,
				CompanyID:      tctx.CompanyID,
				Source:         executionSource(evt.Source),
			}
			ruleTrace.Results = s.executor.ExecutePlan(ctx, rule.Plan, actx)
			for _, result := range ruleTrace.Results {
				if result.Status == models.ActionStatusFailed {
					anyActionFailed = true
				}
			}
			s.capture(ctx, audit.NewRuntimeResultRecord(tctx.CompanyID, ruleTrace))
		}

		runTrace.Rules = append(runTrace.Rules, ruleTrace)
	}

	status := models.RunStatusSuccess
	switch {
	case !anyMatched:
		status = models.RunStatusSkipped
	case anyActionFailed:
		status = models.RunStatusFailed
	}
	s.finalize(ctx, run, runTrace, status, "", started)
}

func (s *Service) finalize(ctx context.Context, run *models.AutomationRun, runTrace models.RunTrace, status models.RunStatus, errMsg string, started time.Time) {
	runTrace.Status = status
	runTrace.Error = errMsg

	summary := audit.Summarize(runTrace)
	summaryText := fmt.Sprintf("%s: %d/%d rules matched, %d actions (%d failed, %d skipped)",
		summary.Decision, summary.RulesMatched, summary.RulesEvaluated,
		summary.ActionsExecuted, summary.ActionsFailed, summary.ActionsSkipped)

	if err := s.ledger.FinalizeRun(ctx, FinalizeInput{
		RunID:   run.ID,
		Status:  status,
		Summary: summaryText,
		Trace:   runTrace,
		Error:   errMsg,
	}); err != nil {
		s.logger.WithField("run_id", run.ID).Errorf("automation: finalize failed: %v", err)
	}

	elapsed := time.Since(started).Milliseconds()
	s.metrics.AddRunDuration(elapsed)
	switch status {
	case models.RunStatusSuccess:
		s.metrics.RunSucceeded()
	case models.RunStatusFailed:
		s.metrics.RunFailed()
	case models.RunStatusSkipped:
		s.metrics.RunSkipped()
	}

	s.capture(ctx, audit.NewPlanTraceRecord(runTrace))

	s.logger.WithFields(logrus.Fields{
		"run_id":      run.ID,
		"event_type":  run.EventType,
		"status":      status,
		"duration_ms": elapsed,
	}).Info("automation: run finished")
}

// capture writes an audit record, fire-and-forget: sink failures are logged
// and never fail or roll back the run.
func (s *Service) capture(ctx context.Context, record models.AutomationAuditRecord) {
	env := audit.Envelope{Record: record, SchemaVersion: audit.SchemaVersion}
	if err := s.sink.Capture(ctx, env); err != nil {
		s.logger.Warnf("automation: audit capture failed: %v", err)
	}
}

func executionSource(source string) string {
	switch source {
	case models.SourceSystem, models.SourceAPI, models.SourceAutomation:
		return source
	default:
		return models.SourceAutomation
	}
}
