package automation

import (
	"context"
	"fmt"
	"sync"

	"opsflow/internal/models"
)

// TriggerContext is what a trigger builder derives from a raw event: the
// tenant scope the engine requires, the optional brand scope used for rule
// matching, and the payload rules evaluate against.
type TriggerContext struct {
	CompanyID string
	BrandID   string
	Payload   map[string]interface{}
}

// TriggerBuilder turns a domain event into a TriggerContext.
type TriggerBuilder func(evt models.DomainEvent) TriggerContext

// TriggerRegistry maps event types to context builders. Registration is
// write-once per key and happens at startup; instances are constructed
// explicitly and injected so tests can use isolated registries.
type TriggerRegistry struct {
	mu       sync.RWMutex
	builders map[string]TriggerBuilder
}

func NewTriggerRegistry() *TriggerRegistry {
	return &TriggerRegistry{builders: make(map[string]TriggerBuilder)}
}

// Register binds an event type to a builder. Re-registering an event type is
// a wiring defect and fails with ErrTriggerRegistered.
func (r *TriggerRegistry) Register(eventType string, builder TriggerBuilder) error {
	if eventType == "" || builder == nil {
		return fmt.Errorf("trigger registration requires event type and builder")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builders[eventType]; exists {
		return fmt.Errorf("%w: %s", ErrTriggerRegistered, eventType)
	}
	r.builders[eventType] = builder
	return nil
}

// Resolve returns the builder for an event type. A missing trigger is not an
// error: the bridge treats it as "event not handled".
func (r *TriggerRegistry) Resolve(eventType string) (TriggerBuilder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	builder, ok := r.builders[eventType]
	return builder, ok
}

// EventTypes lists registered event types, for diagnostics.
func (r *TriggerRegistry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.builders))
	for t := range r.builders {
		types = append(types, t)
	}
	return types
}

// ActionOutcome is what an adapter reports back. An empty Status counts as
// SUCCESS so trivial adapters need not spell it out.
type ActionOutcome struct {
	Status     models.ActionStatus
	Error      string
	SubResults []models.ActionResult
}

// ActionHandler is a pluggable unit of work identified by a string key.
// Execute receives the invocation payload and the shared run context; the
// context is read-only and must not be mutated for sibling actions.
type ActionHandler interface {
	Execute(ctx context.Context, payload map[string]interface{}, actx models.ActionContext) (ActionOutcome, error)
}

// ActionHandlerFunc adapts a plain function to ActionHandler.
type ActionHandlerFunc func(ctx context.Context, payload map[string]interface{}, actx models.ActionContext) (ActionOutcome, error)

func (f ActionHandlerFunc) Execute(ctx context.Context, payload map[string]interface{}, actx models.ActionContext) (ActionOutcome, error) {
	return f(ctx, payload, actx)
}

// ActionRegistry maps action keys to handlers. Like the trigger registry it
// is an injected instance, not a process-wide singleton.
type ActionRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ActionHandler
}

func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{handlers: make(map[string]ActionHandler)}
}

func (r *ActionRegistry) Register(key string, handler ActionHandler) error {
	if key == "" || handler == nil {
		return fmt.Errorf("action registration requires key and handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("%w: %s", ErrActionRegistered, key)
	}
	r.handlers[key] = handler
	return nil
}

// Resolve returns the handler for a key. Unresolved keys are handled by the
// executor as SKIPPED results, not errors.
func (r *ActionRegistry) Resolve(key string) (ActionHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[key]
	return handler, ok
}
