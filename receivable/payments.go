/*
payments.go - Transactional payment recording for revenue schedules

PURPOSE:
  The allocator computes a plan; this service makes it real. It owns the
  read-allocate-write cycle the engine's concurrency contract demands:
  the schedule is loaded, the cascade computed, and the new balances and
  payment row written inside ONE store transaction, so two concurrent
  payments can never allocate against the same stale balances.

OVERPAYMENT POLICY:
  Payments exceeding the schedule's total outstanding are REJECTED with
  an OverpaymentError naming the remainder. The allocator itself treats
  overpayment as a reportable fact; rejecting is this layer's choice so
  money never silently disappears. Preview is available for callers that
  want to show the remainder to a user first.

AUDIT:
  Every recorded payment appends an audit entry (actor, record, amount,
  cascade summary) after the transaction commits.
*/
package receivable

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

// Service records payments against revenue schedules.
type Service struct {
	Store   schedule.TxStore
	Audit   schedule.AuditLog
	Methods *methods.Catalog
	Log     *logrus.Logger

	// Now allows tests to pin the clock. Defaults to time.Now.
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

// PaymentInput is one payment to record against a revenue schedule.
type PaymentInput struct {
	RecordID       schedule.RecordID
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
// record's schedule, and persists installment updates plus the payment
// row in one transaction.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (Receipt, error) {
	method, err := s.Methods.ValidateForFlow(in.MethodCode, methods.FlowReceivable)
	if err != nil {
		return Receipt{}, err
	}

	key := schedule.Key{RecordID: in.RecordID}
	var receipt Receipt

	err = s.Store.WithTx(ctx, func(store schedule.Store) error {
		// Check the idempotency key before allocating; the unique index on
		// the payments table is the real guarantee, this just fails earlier.
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
			return fmt.Errorf("%w: %s in record %s",
				schedule.ErrInstallmentNotFound, in.InstallmentID, in.RecordID)
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

// PreviewAllocation computes the cascade without persisting anything.
// Overpayment is NOT rejected here; the remainder is part of the preview.
func (s *Service) PreviewAllocation(ctx context.Context, recordID schedule.RecordID, installmentID schedule.InstallmentID, amount decimal.Decimal) (schedule.AllocationResult, error) {
	sched, err := s.Store.LoadSchedule(ctx, schedule.Key{RecordID: recordID})
	if err != nil {
		return schedule.AllocationResult{}, err
	}

	startIndex := sched.IndexOf(installmentID)
	if startIndex < 0 {
		return schedule.AllocationResult{}, fmt.Errorf("%w: %s in record %s",
			schedule.ErrInstallmentNotFound, installmentID, recordID)
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
			"amount":            in.Amount.String(),
			"method":            receipt.Payment.MethodCode,
			"installments_hit":  len(receipt.Allocation.Affected),
			"start_installment": string(in.InstallmentID),
		},
	}
	if err := s.Audit.AppendAudit(ctx, entry); err != nil {
		s.Log.WithError(err).WithField("payment_id", receipt.Payment.ID).
			Warn("failed to append audit entry for payment")
	}
}
