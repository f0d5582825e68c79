package automation

import "errors"

var (
	// ErrMissingCompany indicates a trigger built a context without a company
	// scope. That is a wiring defect, surfaced to the caller immediately.
	ErrMissingCompany = errors.New("trigger context missing companyId")

	// ErrTriggerRegistered is returned when an event type is registered twice.
	ErrTriggerRegistered = errors.New("trigger already registered")

	// ErrActionRegistered is returned when an action key is registered twice.
	ErrActionRegistered = errors.New("action already registered")

	// ErrRunNotFound is returned by run stores for unknown run IDs or
	// idempotency keys.
	ErrRunNotFound = errors.New("automation run not found")

	// ErrDuplicateIdempotencyKey is returned by run stores when an insert
	// hits the idempotency uniqueness constraint. Callers treat it as
	// "already begun, fetch and return the existing run".
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)
