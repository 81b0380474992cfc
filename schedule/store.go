/*
store.go - Persistence interfaces for schedules, payments, and audit

PURPOSE:
  Defines the interface between the allocation engine and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:   Schedule reads + installment writes + payment appends
  TxStore: Transactional wrapper for the read-allocate-write cycle

PAYMENTS ARE APPEND-ONLY:
  A recorded payment is never updated or deleted. Every write carries an
  idempotency key; if the key already exists the write is rejected with
  ErrDuplicateIdempotencyKey, so network retries and double-clicks
  cannot double-spend a schedule's balance.

THE TRANSACTION CONTRACT:
  Two concurrent payments against the same schedule must not both
  allocate against the same stale view of the balances. Callers MUST run
  load-schedule -> Allocate -> write-installments -> append-payment
  inside WithTx, keyed by the parent record. The SQLite implementation
  serializes writers; a PostgreSQL implementation would use row locks on
  the parent record instead.

SCHEDULE KEYS:
  A schedule is identified by its parent record plus a sub-schedule
  label. Revenue receivables use an empty label; expense reimbursements
  track one independent schedule per employee role ("driver",
  "conductor").

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - schedule/store/memory.go: In-memory for testing

SEE ALSO:
  - allocator.go: Produces the plan these interfaces persist
  - receivable/payments.go, payable/payments.go: The transactional callers
*/
package schedule

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SCHEDULE KEY - Which schedule a payment targets
// =============================================================================

// Key identifies one schedule: a parent record plus an optional
// sub-schedule label (empty for receivables, the employee role for
// reimbursement payables).
type Key struct {
	RecordID    RecordID
	Subschedule string
}

// =============================================================================
// PAYMENT - Append-only record of one applied payment
// =============================================================================

// Payment is the persisted record of one recorded payment. Append-only:
// corrections happen at the business level, never by editing a payment.
type Payment struct {
	ID             string
	Key            Key
	InstallmentID  InstallmentID // start installment of the cascade
	Amount         decimal.Decimal
	MethodCode     string
	Reference      string
	IdempotencyKey string
	RecordedBy     string
	RecordedAt     time.Time
}

// =============================================================================
// STORE - Schedule persistence
// =============================================================================

// Store handles persistence of schedules and payments.
//
// Payments are APPEND-ONLY. Installment rows are updated only with the
// output of Allocate (amount_paid, status) or by the overdue/admin flows.
type Store interface {
	// LoadSchedule returns the schedule for key, ordered by installment
	// number ascending. Returns ErrScheduleNotFound if no installments
	// exist for the key.
	LoadSchedule(ctx context.Context, key Key) (Schedule, error)

	// UpdateInstallments persists new AmountPaid/Status for the given
	// installments. AmountDue is never written.
	UpdateInstallments(ctx context.Context, key Key, installments []Installment) error

	// AppendPayment persists a payment. Returns
	// ErrDuplicateIdempotencyKey if the idempotency key exists.
	AppendPayment(ctx context.Context, p Payment) error

	// PaymentExists checks whether an idempotency key was already used.
	PaymentExists(ctx context.Context, idempotencyKey string) (bool, error)
}

// TxStore wraps Store with transaction support. WithTx executes fn within
// a transaction: if fn returns an error the transaction is rolled back,
// otherwise it is committed.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Who did what when. Also append-only.
// =============================================================================

type AuditAction string

const (
	AuditPaymentRecorded       AuditAction = "payment_recorded"
	AuditInstallmentCancelled  AuditAction = "installment_cancelled"
	AuditInstallmentWrittenOff AuditAction = "installment_written_off"
	AuditOverdueMarked         AuditAction = "overdue_marked"
)

// AuditEntry records one administrative or financial action.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	ActorID   string
	Action    AuditAction
	RecordID  RecordID
	Payload   map[string]any // action-specific data
}

// AuditLog stores audit entries.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	RecordID *RecordID
	ActorID  *string
	Actions  []AuditAction
	From     *time.Time
	To       *time.Time
	Limit    int
}
