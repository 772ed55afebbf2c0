package billing

import "errors"

var (
	// ErrNoActiveLease indicates the unit has no lease in effect. The scheduler treats it as a no-op.
	ErrNoActiveLease = errors.New("billing: no active lease for unit")
	// ErrPolicyInvariant indicates a corrupt late-fee policy row.
	ErrPolicyInvariant = errors.New("billing: late fee policy invariant violated")
	// ErrChargeTypeContradiction flags a recurring charge saved with a status; it is coerced, not returned to callers.
	ErrChargeTypeContradiction = errors.New("billing: recurring charge cannot carry a status")
	// ErrIntervalOverlap indicates a concurrent tick already billed the interval.
	ErrIntervalOverlap = errors.New("billing: invoice interval overlaps an existing invoice")
	// ErrLedgerImbalance indicates debit != credit for one event.
	ErrLedgerImbalance = errors.New("billing: ledger event does not balance")
	// ErrUnknownInvoice indicates a gateway event references a missing invoice.
	ErrUnknownInvoice = errors.New("billing: webhook references unknown invoice")
	// ErrNotFound indicates a missing row.
	ErrNotFound = errors.New("billing: not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("billing: validation failed")
	// ErrTenantMismatch indicates the caller is not the lease's primary tenant.
	ErrTenantMismatch = errors.New("billing: tenant is not the primary tenant of the lease")
	// ErrInvalidPaymentMethod indicates a method/account mismatch.
	ErrInvalidPaymentMethod = errors.New("billing: invalid payment method")
	// ErrInvalidTransition indicates a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("billing: invalid status transition")
	// ErrChargeBound indicates a charge is already attached to an invoice.
	ErrChargeBound = errors.New("billing: charge already bound to an invoice")
)
