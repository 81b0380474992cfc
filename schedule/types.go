/*
Package schedule provides the core installment allocation engine.

PURPOSE:
  This package contains the domain-agnostic types and algorithms for
  distributing a payment across an ordered schedule of installments.
  Whether the schedule belongs to a trip revenue receivable or an
  expense reimbursement payable, the same engine computes how a payment
  cascades through it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Installment: One scheduled partial payment within an obligation
  - Schedule: An ordered sequence of installments for one parent record
  - Status: The installment lifecycle state machine (see status.go)
  - AllocationResult: The allocator's output - a plan, never a mutation

DESIGN PRINCIPLES:
  1. Purity: The allocator never mutates its inputs and performs no I/O
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Conservation: Applied amounts plus unapplied remainder always equal
     the payment amount exactly
  4. Explicitness: Overpayment is a reported fact, not an error

USAGE:
  sched := schedule.Schedule{...}
  result, err := schedule.Allocate(schedule.MustDecimal("1200"), sched, 0)
  if err != nil {
      // precondition violation - see errors.go
  }
  // result.Affected holds the per-installment plan;
  // result.RemainingUnapplied holds any overpayment.

SEE ALSO:
  - allocator.go: The cascade algorithm
  - status.go: Status transition rule
  - errors.go: Validation error taxonomy
*/
package schedule

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type InstallmentID string
type RecordID string

// =============================================================================
// STATUS - Installment lifecycle state
// =============================================================================

type Status string

const (
	StatusPending       Status = "PENDING"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusOverdue       Status = "OVERDUE"
	StatusCompleted     Status = "COMPLETED"
	StatusCancelled     Status = "CANCELLED"
	StatusWrittenOff    Status = "WRITTEN_OFF"
)

// =============================================================================
// INSTALLMENT - One entry in a schedule
// =============================================================================

// Installment is one scheduled partial payment within a larger obligation.
//
// INVARIANTS:
//   - AmountDue is fixed at schedule creation; the allocator never changes it
//   - AmountPaid is monotonically non-decreasing
//   - Balance() is never negative; excess spills to the next installment
type Installment struct {
	ID         InstallmentID
	Number     int // canonical ordering within the schedule, ascending
	DueDate    time.Time
	AmountDue  decimal.Decimal
	AmountPaid decimal.Decimal
	Status     Status
}

// Balance returns the outstanding amount: AmountDue - AmountPaid.
func (i Installment) Balance() decimal.Decimal {
	return i.AmountDue.Sub(i.AmountPaid)
}

// Payable reports whether the allocator may apply money to this installment.
// Terminal installments and installments with no outstanding balance are not
// payable.
func (i Installment) Payable() bool {
	return !i.Status.Terminal() && i.Balance().IsPositive()
}

// =============================================================================
// SCHEDULE - Ordered installments for one parent record
// =============================================================================

// Schedule is the ordered sequence of installments belonging to one parent
// record. It is a view over the installments, not a stored entity of its own.
//
// INVARIANT: Number values are unique and strictly increasing in sequence
// order. Validate() checks this; Allocate() refuses a schedule that fails it
// rather than silently re-sorting (a mis-ordered schedule is a caller bug).
type Schedule []Installment

// TotalOutstanding sums the balances of all non-terminal installments.
func (s Schedule) TotalOutstanding() decimal.Decimal {
	total := decimal.Zero
	for _, inst := range s {
		if !inst.Status.Terminal() {
			total = total.Add(inst.Balance())
		}
	}
	return total
}

// IndexOf returns the index of the installment with the given ID, or -1.
func (s Schedule) IndexOf(id InstallmentID) int {
	for i, inst := range s {
		if inst.ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// ALLOCATION RESULT - The allocator's sole output
// =============================================================================

// AllocationLine records the effect of the allocation on one installment.
type AllocationLine struct {
	InstallmentID   InstallmentID
	Number          int
	AmountApplied   decimal.Decimal
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
	NewStatus       Status
}

// AllocationResult is the plan produced by Allocate. It is ephemeral: the
// caller is responsible for persisting the new paid amounts and statuses.
//
// GUARANTEES (see allocator.go):
//   - Affected is ordered by ascending installment Number, starting at the
//     caller's start installment
//   - Every line has AmountApplied > 0
//   - Sum of AmountApplied plus RemainingUnapplied equals the payment
//     amount exactly
type AllocationResult struct {
	Affected []AllocationLine

	// RemainingUnapplied is the amount left over after every payable
	// installment from the start point onward has been driven to zero
	// balance. A positive value is an overpayment beyond the total
	// outstanding - a reportable fact, not an error.
	RemainingUnapplied decimal.Decimal
}

// TotalApplied sums AmountApplied over all affected installments.
func (r AllocationResult) TotalApplied() decimal.Decimal {
	total := decimal.Zero
	for _, line := range r.Affected {
		total = total.Add(line.AmountApplied)
	}
	return total
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// MustDecimal parses a decimal string, returning zero on failure.
// For literals in tests and fixtures.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
