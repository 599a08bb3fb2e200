package sale

import "errors"

// Validation errors: rejected before any state change, safe to retry with
// corrected input.
var (
	ErrSaleNotActive    = errors.New("sale: pool is not active")
	ErrSaleWindowClosed = errors.New("sale: outside the contribution window")
	ErrInvalidAmount    = errors.New("sale: amount must be positive")
	ErrNotEligible      = errors.New("sale: participant is not eligible")
	ErrBelowMinimum     = errors.New("sale: contribution below per-participant minimum")
	ErrAboveMaximum     = errors.New("sale: contribution above per-participant maximum")
	ErrHardCapExceeded  = errors.New("sale: contribution would exceed the hard cap")
	ErrInvalidConfig    = errors.New("sale: invalid sale configuration")
	ErrNotOperator      = errors.New("sale: caller is not the pool operator")
)

// State-conflict errors: a precondition does not hold; blind retries will
// fail the same way.
var (
	ErrAlreadyFinalized  = errors.New("sale: pool already finalized or cancelled")
	ErrSaleNotEnded      = errors.New("sale: sale window has not ended")
	ErrSaleNotFinalized  = errors.New("sale: pool is not finalized")
	ErrNotCancelled      = errors.New("sale: pool is not cancelled")
	ErrNothingToRefund   = errors.New("sale: no contribution to refund")
	ErrAlreadyRefunded   = errors.New("sale: contribution already refunded")
	ErrNothingToWithdraw = errors.New("sale: raised funds already withdrawn")
	ErrReentrantCall     = errors.New("sale: re-entrant call rejected")
)
