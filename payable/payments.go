/*
payments.go - Transactional payment recording for reimbursement schedules

PURPOSE:
  Mirror of receivable/payments.go for the expense side. Differences:
  schedules are keyed by (record, role), and the REIMBURSEMENT payment
  method is accepted here - it is the normal way an expense is settled
  against an employee's outlay.

The transaction and overpayment policies are identical to the revenue
side; see receivable/payments.go for the rationale.
*/
package payable

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fleetops/finance-engine/methods"
	"github.com/fleetops/finance-engine/schedule"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service records reimbursement payments against expense schedules.
type Service struct {
	Store   schedule.TxStore
	Audit   schedule.AuditLog
	Methods *methods.Catalog
	Log     *logrus.Logger

	Now func() time.Time
}

func NewService(store schedule.TxStore, audit schedule.AuditLog, catalog *methods.Catalog, log *logrus.Logger) *Service {
	return &Service{
		Store:   store,
		Audit:   audit,
		Methods: catalog,
		Log:     log,
		Now:     time.Now,
	}
}

// PaymentInput is one reimbursement payment to record.
type PaymentInput struct {
	RecordID       schedule.RecordID
	Role           Role
	InstallmentID  schedule.InstallmentID
	Amount         decimal.Decimal
	MethodCode     string
	Reference      string
	IdempotencyKey string
	ActorID        string
}

// Receipt is the outcome of a recorded payment.
type Receipt struct {
	Payment    schedule.Payment
	Allocation schedule.AllocationResult
}

// RecordPayment validates the input, allocates the amount across the
// role's reimbursement schedule, and persists installment updates plus
// the payment row in one transaction.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (Receipt, error) {
	if !in.Role.Valid() {
		return Receipt{}, fmt.Errorf("%w: %q", ErrInvalidRole, in.Role)
	}
	method, err := s.Methods.ValidateForFlow(in.MethodCode, methods.FlowPayable)
	if err != nil {
		return Receipt{}, err
	}

	key := schedule.Key{RecordID: in.RecordID, Subschedule: string(in.Role)}
	var receipt Receipt

	err = s.Store.WithTx(ctx, func(store schedule.Store) error {
		// Same early idempotency check as the revenue side; the unique
		// index on the payments table is the real guarantee.
		if in.IdempotencyKey != "" {
			exists, err := store.PaymentExists(ctx, in.IdempotencyKey)
			if err != nil {
				return err
			}
			if exists {
				return schedule.ErrDuplicateIdempotencyKey
			}
		}

		sched, err := store.LoadSchedule(ctx, key)
		if err != nil {
			return err
		}

		startIndex := sched.IndexOf(in.InstallmentID)
		if startIndex < 0 {
			return fmt.Errorf("%w: %s in record %s role %s",
				schedule.ErrInstallmentNotFound, in.InstallmentID, in.RecordID, in.Role)
		}

		result, err := schedule.Allocate(in.Amount, sched, startIndex)
		if err != nil {
			return err
		}
		if result.RemainingUnapplied.IsPositive() {
			return &schedule.OverpaymentError{
				Amount:             in.Amount,
				RemainingUnapplied: result.RemainingUnapplied,
			}
		}

		updated := schedule.Apply(sched, result)
		changed := make([]schedule.Installment, 0, len(result.Affected))
		for _, line := range result.Affected {
			changed = append(changed, updated[sched.IndexOf(line.InstallmentID)])
		}
		if err := store.UpdateInstallments(ctx, key, changed); err != nil {
			return err
		}

		payment := schedule.Payment{
			ID:             uuid.NewString(),
			Key:            key,
			InstallmentID:  in.InstallmentID,
			Amount:         in.Amount,
			MethodCode:     method.MethodCode,
			Reference:      in.Reference,
			IdempotencyKey: in.IdempotencyKey,
			RecordedBy:     in.ActorID,
			RecordedAt:     s.Now(),
		}
		if err := store.AppendPayment(ctx, payment); err != nil {
			return err
		}

		receipt = Receipt{Payment: payment, Allocation: result}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	s.audit(ctx, in, receipt)
	return receipt, nil
}

// PreviewAllocation computes the cascade for one role's schedule without
// persisting anything.
func (s *Service) PreviewAllocation(ctx context.Context, recordID schedule.RecordID, role Role, installmentID schedule.InstallmentID, amount decimal.Decimal) (schedule.AllocationResult, error) {
	if !role.Valid() {
		return schedule.AllocationResult{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	sched, err := s.Store.LoadSchedule(ctx, schedule.Key{RecordID: recordID, Subschedule: string(role)})
	if err != nil {
		return schedule.AllocationResult{}, err
	}

	startIndex := sched.IndexOf(installmentID)
	if startIndex < 0 {
		return schedule.AllocationResult{}, fmt.Errorf("%w: %s in record %s role %s",
			schedule.ErrInstallmentNotFound, installmentID, recordID, role)
	}

	return schedule.Allocate(amount, sched, startIndex)
}

func (s *Service) audit(ctx context.Context, in PaymentInput, receipt Receipt) {
	entry := schedule.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: receipt.Payment.RecordedAt,
		ActorID:   in.ActorID,
		Action:    schedule.AuditPaymentRecorded,
		RecordID:  in.RecordID,
		Payload: map[string]any{
			"payment_id":        receipt.Payment.ID,
			"role":              string(in.Role),
			"amount":            in.Amount.String(),
			"method":            receipt.Payment.MethodCode,
			"installments_hit":  len(receipt.Allocation.Affected),
			"start_installment": string(in.InstallmentID),
		},
	}
	if err := s.Audit.AppendAudit(ctx, entry); err != nil {
		s.Log.WithError(err).WithField("payment_id", receipt.Payment.ID).
			Warn("failed to append audit entry for reimbursement payment")
	}
}
