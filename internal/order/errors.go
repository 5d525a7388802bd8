package order

import "errors"

// Error kinds surfaced by the order domain and the stack engine. Callers
// match with errors.Is; call sites wrap these with fmt.Errorf("...: %w", ...)
// to add context.
var (
	// ErrValidation marks malformed input rejected before any mutation:
	// bad key strings, mismatched vector lengths, empty leg lists.
	ErrValidation = errors.New("order validation failed")

	// ErrConflict marks a state conflict: duplicate active order,
	// concurrent-modification check failure, structural change on a
	// locked order. No automatic retry; retry policy belongs to the caller.
	ErrConflict = errors.New("conflicting order state")

	// ErrNotFound marks an operation addressing an order id not on the
	// stack. Fatal for control-transfer and fill operations.
	ErrNotFound = errors.New("order not found")

	// ErrFillExceedsTrade marks a proposed fill beyond the desired trade.
	// Fills are rejected at the boundary, never clamped.
	ErrFillExceedsTrade = errors.New("proposed fill exceeds desired trade")

	// ErrAlreadyControlled marks a double algo-control attempt. Undetected
	// dual control is a financial-risk hazard, so this fails loudly.
	ErrAlreadyControlled = errors.New("order already controlled by an algo")
)
