package automation

import (
	"context"
	"errors"
	"testing"

	"opsflow/internal/audit"
	"opsflow/internal/metrics"
	"opsflow/internal/models"
)

type bridgeFixture struct {
	service   *Service
	triggers  *TriggerRegistry
	actions   *ActionRegistry
	matcher   *RuleMatcher
	runStore  *memoryRunStore
	collector *metrics.Collector
	sink      *audit.MemorySink
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()

	triggers := NewTriggerRegistry()
	actions := NewActionRegistry()
	runStore := newMemoryRunStore()
	collector := metrics.NewCollector()
	sink := audit.NewMemorySink()
	logger := quietLogger()

	matcher := NewRuleMatcher(&stubRuleStore{})
	executor := NewActionExecutor(actions, collector, logger)
	ledger := NewRunLedger(runStore, logger)
	service := NewService(triggers, matcher, ledger, executor, collector, sink, logger)

	return &bridgeFixture{
		service:   service,
		triggers:  triggers,
		actions:   actions,
		matcher:   matcher,
		runStore:  runStore,
		collector: collector,
		sink:      sink,
	}
}

func (f *bridgeFixture) registerEnvelopeTrigger(t *testing.T, eventType string) {
	t.Helper()
	err := f.triggers.Register(eventType, func(evt models.DomainEvent) TriggerContext {
		return TriggerContext{CompanyID: evt.CompanyID, Payload: evt.Payload}
	})
	if err != nil {
		t.Fatalf("register trigger: %v", err)
	}
}

func TestHandleEventUnregisteredTrigger(t *testing.T) {
	f := newBridgeFixture(t)

	result, err := f.service.HandleEvent(context.Background(), models.DomainEvent{
		Type:      "UNKNOWN_EVENT",
		CompanyID: "comp-1",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Handled {
		t.Fatal("unregistered event type must report handled=false")
	}
	if f.runStore.creates != 0 {
		t.Fatal("unhandled events must never touch the run ledger")
	}
}

func TestHandleEventMissingCompany(t *testing.T) {
	f := newBridgeFixture(t)
	f.triggers.Register("ORPHAN_EVENT", func(evt models.DomainEvent) TriggerContext {
		return TriggerContext{} // builder yields no company scope
	})

	_, err := f.service.HandleEvent(context.Background(), models.DomainEvent{Type: "ORPHAN_EVENT"})
	if !errors.Is(err, ErrMissingCompany) {
		t.Fatalf("got %v, want ErrMissingCompany", err)
	}
	if f.runStore.creates != 0 {
		t.Fatal("no run may be created without a company scope")
	}
}

func TestHandleEventRunsMatchingRule(t *testing.T) {
	f := newBridgeFixture(t)
	f.registerEnvelopeTrigger(t, "CUSTOMER_CREATED")

	var executed int
	mustRegister(t, f.actions, "count", func(ctx context.Context, payload map[string]interface{}, actx models.ActionContext) (ActionOutcome, error) {
		executed++
		return ActionOutcome{}, nil
	})

	f.matcher.UseOverride([]Rule{{
		ID:      "rule-1",
		Name:    "welcome",
		Enabled: true,
		Conditions: models.ConditionGroup{
			All: []models.Condition{{Path: "payload.role", Op: "equals", Value: "ADMIN"}},
		},
		Plan: []models.ActionInvocation{{ActionKey: "count"}},
	}})

	evt := models.DomainEvent{
		Type:      "CUSTOMER_CREATED",
		CompanyID: "comp-1",
		Payload:   map[string]interface{}{"role": "ADMIN"},
	}
	result, err := f.service.HandleEvent(context.Background(), evt)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !result.Handled || result.IdempotencyKey == "" {
		t.Fatalf("result: %+v", result)
	}
	if executed != 1 {
		t.Fatalf("action executed %d times, want 1", executed)
	}

	run, err := f.runStore.FindRunByKey(context.Background(), result.IdempotencyKey)
	if err != nil {
		t.Fatalf("find run: %v", err)
	}
	if run.Status != models.RunStatusSuccess {
		t.Fatalf("run status %s, want SUCCESS", run.Status)
	}
	if run.FinishedAt == nil || run.Trace == "" || run.Summary == "" {
		t.Fatalf("run missing finalization data: %+v", run)
	}

	snap := f.collector.Snapshot()
	if snap.RunsStarted != 1 || snap.RunsSucceeded != 1 {
		t.Fatalf("metrics: %+v", snap)
	}
	// Plan trace plus one runtime result record.
	if got := len(f.sink.Captured()); got != 2 {
		t.Fatalf("audit records: %d, want 2", got)
	}
}

func TestHandleEventDuplicateDeliveryIsIdempotent(t *testing.T) {
	f := newBridgeFixture(t)
	f.registerEnvelopeTrigger(t, "ORDER_PLACED")

	var executed int
	mustRegister(t, f.actions, "count", func(ctx context.Context, payload map[string]interface{}, actx models.ActionContext) (ActionOutcome, error) {
		executed++
		return ActionOutcome{}, nil
	})
	f.matcher.UseOverride([]Rule{{ID: "rule-1", Enabled: true, Plan: []models.ActionInvocation{{ActionKey: "count"}}}})

	evt := models.DomainEvent{
		Type:      "ORDER_PLACED",
		CompanyID: "comp-1",
		Payload:   map[string]interface{}{"orderId": "o-1"},
	}

	first, err := f.service.HandleEvent(context.Background(), evt)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	second, err := f.service.HandleEvent(context.Background(), evt)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	if first.IdempotencyKey != second.IdempotencyKey {
		t.Fatalf("keys differ: %s vs %s", first.IdempotencyKey, second.IdempotencyKey)
	}
	if executed != 1 {
		t.Fatalf("side effects ran %d times, want exactly once", executed)
	}
	if f.runStore.creates != 1 {
		t.Fatalf("runs created: %d, want 1", f.runStore.creates)
	}
}

func TestHandleEventExplicitKeyWins(t *testing.T) {
	f := newBridgeFixture(t)
	f.registerEnvelopeTrigger(t, "INVOICE_PAID")
	f.matcher.UseOverride(nil)

	evt := models.DomainEvent{
		Type:           "INVOICE_PAID",
		CompanyID:      "comp-1",
		IdempotencyKey: "caller-chose-this",
	}
	result, err := f.service.HandleEvent(context.Background(), evt)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.IdempotencyKey != "caller-chose-this" {
		t.Fatalf("key %s, want caller-supplied key", result.IdempotencyKey)
	}
}

func TestHandleEventNoMatchingRuleSkips(t *testing.T) {
	f := newBridgeFixture(t)
	f.registerEnvelopeTrigger(t, "PRICE_CHANGED")
	f.matcher.UseOverride([]Rule{{
		ID:      "rule-1",
		Enabled: true,
		Conditions: models.ConditionGroup{
			All: []models.Condition{{Path: "payload.delta", Op: "equals", Value: float64(100)}},
		},
	}})

	evt := models.DomainEvent{
		Type:      "PRICE_CHANGED",
		CompanyID: "comp-1",
		Payload:   map[string]interface{}{"delta": float64(5)},
	}
	result, err := f.service.HandleEvent(context.Background(), evt)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	run, err := f.runStore.FindRunByKey(context.Background(), result.IdempotencyKey)
	if err != nil {
		t.Fatalf("find run: %v", err)
	}
	if run.Status != models.RunStatusSkipped {
		t.Fatalf("run status %s, want SKIPPED", run.Status)
	}
	if snap := f.collector.Snapshot(); snap.RunsSkipped != 1 {
		t.Fatalf("metrics: %+v", snap)
	}
}

func TestHandleEventFailedActionFailsRun(t *testing.T) {
	f := newBridgeFixture(t)
	f.registerEnvelopeTrigger(t, "ORDER_PLACED")

	mustRegister(t, f.actions, "boom", func(ctx context.Context, payload map[string]interface{}, actx models.ActionContext) (ActionOutcome, error) {
		return ActionOutcome{}, errors.New("boom")
	})
	var afterRan bool
	mustRegister(t, f.actions, "after", func(ctx context.Context, payload map[string]interface{}, actx models.ActionContext) (ActionOutcome, error) {
		afterRan = true
		return ActionOutcome{}, nil
	})

	f.matcher.UseOverride([]Rule{{
		ID:      "rule-1",
		Enabled: true,
		Plan: []models.ActionInvocation{
			{ActionKey: "boom"},
			{ActionKey: "after"},
		},
	}})

	evt := models.DomainEvent{Type: "ORDER_PLACED", CompanyID: "comp-1"}
	result, err := f.service.HandleEvent(context.Background(), evt)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !afterRan {
		t.Fatal("plan must continue past a failed action")
	}

	run, err := f.runStore.FindRunByKey(context.Background(), result.IdempotencyKey)
	if err != nil {
		t.Fatalf("find run: %v", err)
	}
	if run.Status != models.RunStatusFailed {
		t.Fatalf("run status %s, want FAILED", run.Status)
	}
}

func TestHandleEventBeginRunFailureIsContained(t *testing.T) {
	f := newBridgeFixture(t)
	f.registerEnvelopeTrigger(t, "ORDER_PLACED")
	f.runStore.createErr = errors.New("storage down")

	result, err := f.service.HandleEvent(context.Background(), models.DomainEvent{Type: "ORDER_PLACED", CompanyID: "comp-1"})
	if err != nil {
		t.Fatalf("ledger failures must not escape to the caller, got %v", err)
	}
	if !result.Handled {
		t.Fatal("event with a registered trigger is still handled")
	}
}
