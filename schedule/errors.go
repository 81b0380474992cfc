/*
errors.go - Centralized error types for the allocation engine

PURPOSE:
  All engine error types in one place for consistency and discoverability.
  Domain packages (receivable, payable) wrap these with additional context.

ERROR CATEGORIES:
  1. Validation errors - precondition violations, always recoverable by
     fixing the input and retrying
  2. Persistence errors - surfaced by stores implementing the interfaces
     in store.go

NOT ERRORS:
  "Payment exceeds total outstanding" is NOT an error. The allocator
  reports it via AllocationResult.RemainingUnapplied and leaves the
  policy decision (reject, hold as credit) to the caller.

USAGE:
  result, err := schedule.Allocate(amount, sched, idx)
  if errors.Is(err, schedule.ErrValidation) {
      var verr *schedule.ValidationError
      errors.As(err, &verr)
      // verr.Code names the violated precondition
  }

SEE ALSO:
  - allocator.go: Raises these before any allocation work
  - receivable/payments.go, payable/payments.go: Wrap with domain context
*/
package schedule

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all precondition violations.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateIdempotencyKey is returned when a payment with the same
	// idempotency key already exists. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrScheduleNotFound is returned when no schedule exists for the
	// requested parent record.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrInstallmentNotFound is returned when a referenced installment
	// doesn't exist in its schedule.
	ErrInstallmentNotFound = errors.New("installment not found")

	// ErrRecordNotFound is returned when a referenced parent record
	// doesn't exist.
	ErrRecordNotFound = errors.New("record not found")
)

// =============================================================================
// VALIDATION ERROR - Names the violated precondition
// =============================================================================

// ValidationCode identifies which precondition the caller violated.
type ValidationCode string

const (
	// CodeNonPositiveAmount: the payment amount was zero or negative.
	CodeNonPositiveAmount ValidationCode = "non_positive_amount"

	// CodeTargetNotPayable: the start installment is in a terminal state.
	CodeTargetNotPayable ValidationCode = "target_installment_not_payable"

	// CodeStartOutOfRange: the start index does not refer to an
	// installment in the schedule.
	CodeStartOutOfRange ValidationCode = "start_index_out_of_range"

	// CodeMalformedSchedule: installment numbers are not strictly
	// increasing. Re-sorting would paper over a caller bug, so the
	// allocator refuses instead.
	CodeMalformedSchedule ValidationCode = "malformed_schedule"
)

// ValidationError reports a precondition violation. The allocator fails
// fast with one of these before doing any allocation work.
type ValidationError struct {
	Code    ValidationCode
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func newValidationError(code ValidationCode, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// OVERPAYMENT - Recording-layer policy error
// =============================================================================

// ErrOverpayment is the sentinel for overpayment rejections. Note this is
// a RECORDING policy: Allocate itself reports an unapplied remainder as a
// successful result, and the payment services decide to reject it.
var ErrOverpayment = errors.New("payment exceeds total outstanding")

// OverpaymentError reports how much of a payment could not be applied.
type OverpaymentError struct {
	Amount             decimal.Decimal
	RemainingUnapplied decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s exceeds outstanding balance by %s",
		e.Amount, e.RemainingUnapplied)
}

func (e *OverpaymentError) Unwrap() error {
	return ErrOverpayment
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error is a recoverable input problem.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound) ||
		errors.Is(err, ErrInstallmentNotFound) ||
		errors.Is(err, ErrRecordNotFound)
}
