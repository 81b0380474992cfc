/*
Package payable handles expense-side reimbursement schedules.

PURPOSE:
  Operational expenses fronted by crew members are paid back in
  installments. Each expense record tracks one independent schedule per
  employee role (driver, conductor), and payments against them run
  through the same cascade allocator as revenue receivables.

WHY THE SAME CASCADE?
  An earlier implementation restricted payable payments to a single
  installment while receivables cascaded. Nothing in the domain
  justifies the asymmetry, so both sides share the full cascade; a
  payment covering several reimbursement installments closes them in
  order, exactly like a receivable.

SEE ALSO:
  - payments.go: The transactional payment recording service
  - receivable: The revenue-side twin of this package
*/
package payable

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleetops/finance-engine/schedule"
)

// =============================================================================
// ROLES - One independent schedule per role
// =============================================================================

// Role identifies whose reimbursement schedule a payment targets.
type Role string

const (
	RoleDriver    Role = "driver"
	RoleConductor Role = "conductor"
)

var ErrInvalidRole = errors.New("invalid reimbursement role")

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleDriver || r == RoleConductor
}

// ParseRole validates a role string from an API boundary.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidRole, s, RoleDriver, RoleConductor)
	}
	return r, nil
}

// =============================================================================
// EXPENSE RECORD
// =============================================================================

var ErrInvalidRecord = errors.New("invalid expense record")

// Record is an operational expense whose reimbursement is owed to crew
// members, tracked as one schedule per role.
type Record struct {
	ID          schedule.RecordID
	Description string
	TotalAmount decimal.Decimal
	IncurredAt  time.Time
	CreatedAt   time.Time
}

// Validate checks record-level invariants.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}
	if !r.TotalAmount.IsPositive() {
		return fmt.Errorf("%w: total amount must be positive, got %s", ErrInvalidRecord, r.TotalAmount)
	}
	return nil
}

// KeyFor returns the schedule key for one role's reimbursement schedule.
func (r Record) KeyFor(role Role) schedule.Key {
	return schedule.Key{RecordID: r.ID, Subschedule: string(role)}
}
