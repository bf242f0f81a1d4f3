package apperrors

import "errors"

// Invariant and arithmetic errors
var (
	ErrBrokenInvariant  = errors.New("broken invariant")
	ErrOverflow         = errors.New("arithmetic overflow")
	ErrUnderflow        = errors.New("arithmetic underflow")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrUnknownCurrency  = errors.New("unknown currency")
)

// Market data errors
var (
	ErrNoPrice    = errors.New("no price available")
	ErrStalePrice = errors.New("stale price")
)

// Lease errors
var (
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrLeaseNotFound       = errors.New("lease not found")
	ErrLeaseClosed         = errors.New("lease closed")
	ErrLeaseExists         = errors.New("lease already exists")
	ErrLiquidationInFlight = errors.New("liquidation in flight")
)

// IsRetryable reports whether the operation may succeed if repeated later
// without any change of state on our side.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNoPrice) || errors.Is(err, ErrStalePrice)
}
