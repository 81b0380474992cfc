/*
status.go - Installment status state machine

PURPOSE:
  A small, reusable transition rule shared by the allocator and the
  administrative flows. The allocator only ever moves an installment
  along PENDING/OVERDUE -> PARTIALLY_PAID -> COMPLETED; everything else
  is set by external processes.

STATE DIAGRAM:
  PENDING --------> PARTIALLY_PAID --------> COMPLETED (terminal)
     |                    |
     +---- OVERDUE -------+   (orthogonal, time-based, external process)

  CANCELLED / WRITTEN_OFF: reachable from any non-terminal state by
  explicit administrative action. Terminal.

WHO SETS WHAT:
  - Allocator:        PARTIALLY_PAID, COMPLETED (via StatusForBalance)
  - Overdue sweep:    OVERDUE (api/scheduler.go)
  - Admin endpoints:  CANCELLED, WRITTEN_OFF

SEE ALSO:
  - allocator.go: Applies StatusForBalance when closing the gap
  - api/scheduler.go: The time-based overdue marker
*/
package schedule

import "github.com/shopspring/decimal"

// Terminal reports whether the status permanently closes the installment.
// A terminal installment must never be selected as an allocation target.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusWrittenOff:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPartiallyPaid, StatusOverdue,
		StatusCompleted, StatusCancelled, StatusWrittenOff:
		return true
	default:
		return false
	}
}

// StatusForBalance is the transition rule the allocator applies after
// closing the gap on one installment:
//
//	new balance == 0  =>  COMPLETED (terminal)
//	new balance  > 0  =>  PARTIALLY_PAID (eligible for future allocation)
//
// The allocator never transitions an installment into OVERDUE, CANCELLED,
// or WRITTEN_OFF; those are set exclusively by external processes.
func StatusForBalance(newBalance decimal.Decimal) Status {
	if newBalance.IsZero() {
		return StatusCompleted
	}
	return StatusPartiallyPaid
}
