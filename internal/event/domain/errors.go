package domain

import "errors"

// Validation errors, rejected synchronously at the ingestion boundary.
var (
	ErrInvalidOrganization   = errors.New("invalid_organization")
	ErrInvalidIdempotencyKey = errors.New("invalid_idempotency_key")
	ErrInvalidCustomer       = errors.New("invalid_customer_external_id")
	ErrInvalidEventType      = errors.New("invalid_event_type")
	ErrInvalidRevenue        = errors.New("invalid_revenue_cents")
	ErrInvalidOccurredAt     = errors.New("invalid_occurred_at")
	ErrInvalidVendorCost     = errors.New("invalid_vendor_cost")
	ErrEventNotFound         = errors.New("event_not_found")
)

// ErrTenantMismatch is the structural consistency failure: a customer row
// resolved for an event belongs to a different organization. Should be
// impossible under tenant scoping, checked anyway.
var ErrTenantMismatch = errors.New("customer_organization_mismatch")

// FatalError marks a failure that must park the event in the failed status
// instead of being retried. Anything not wrapped this way is treated as
// transient and redriven by the worker.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

func IsFatal(err error) bool {
	var target *FatalError
	return errors.As(err, &target)
}
