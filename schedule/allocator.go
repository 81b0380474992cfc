/*
allocator.go - Cascading installment payment allocation

PURPOSE:
  The core of the engine: a pure function that distributes a payment
  across an ordered schedule of installments. When the amount exceeds
  one installment's balance, the excess spills into subsequent
  installments in order. Balance is never driven below zero and an
  installment is never overpaid beyond its AmountDue.

WHY A PURE FUNCTION?
  The previous generation of this logic recomputed cascade previews from
  form state on every render, with the allocation entangled in UI
  lifecycle. Here it is a function of explicit inputs: same inputs, same
  AllocationResult, no hidden state, no clock, no I/O. Callers that need
  a preview call it and discard the result; callers that need to commit
  call it and persist the plan inside one store transaction.

CONSERVATION INVARIANT:
  sum(line.AmountApplied) + result.RemainingUnapplied == amount, exactly.
  All arithmetic is decimal.Decimal; monetary amounts never touch
  floating point.

SKIP POLICY:
  A terminal (COMPLETED/CANCELLED/WRITTEN_OFF) or zero-balance
  installment encountered mid-cascade is skipped without consuming any
  of the payment. This lets a schedule carry already-closed installments
  interleaved with open ones (e.g. a written-off installment followed by
  open ones) without breaking the cascade. The START installment is the
  exception: a terminal start target is a caller error.

CONCURRENCY:
  None here. The caller that persists the result must treat
  read-allocate-write as a single logical transaction per parent record
  (see store.go TxStore); the allocator itself is safe to call from any
  goroutine.

SEE ALSO:
  - status.go: StatusForBalance transition rule
  - errors.go: ValidationError taxonomy
  - receivable/payments.go, payable/payments.go: Transactional callers
*/
package schedule

import (
	"github.com/shopspring/decimal"
)

// Allocate distributes amount across sched starting at startIndex and
// returns the allocation plan. It never mutates its inputs.
//
// PRECONDITIONS (violations return a *ValidationError):
//   - amount > 0
//   - startIndex refers to an installment in sched
//   - the start installment is not terminal
//   - installment numbers are strictly increasing
//
// Overpayment beyond the schedule's outstanding total is NOT an error;
// it is reported via AllocationResult.RemainingUnapplied.
func Allocate(amount decimal.Decimal, sched Schedule, startIndex int) (AllocationResult, error) {
	if !amount.IsPositive() {
		return AllocationResult{}, newValidationError(CodeNonPositiveAmount,
			"payment amount must be positive, got %s", amount)
	}
	if startIndex < 0 || startIndex >= len(sched) {
		return AllocationResult{}, newValidationError(CodeStartOutOfRange,
			"start index %d outside schedule of %d installments", startIndex, len(sched))
	}
	if err := validateOrdering(sched); err != nil {
		return AllocationResult{}, err
	}
	if start := sched[startIndex]; start.Status.Terminal() {
		return AllocationResult{}, newValidationError(CodeTargetNotPayable,
			"installment %d is %s and cannot accept payment", start.Number, start.Status)
	}

	remaining := amount
	affected := []AllocationLine{}

	for cursor := startIndex; cursor < len(sched) && remaining.IsPositive(); cursor++ {
		inst := sched[cursor]

		// Closed or already-settled installments mid-cascade are skipped
		// without consuming any of the payment.
		if !inst.Payable() {
			continue
		}

		balance := inst.Balance()
		applied := decimal.Min(remaining, balance)
		newBalance := balance.Sub(applied)

		affected = append(affected, AllocationLine{
			InstallmentID:   inst.ID,
			Number:          inst.Number,
			AmountApplied:   applied,
			PreviousBalance: balance,
			NewBalance:      newBalance,
			NewStatus:       StatusForBalance(newBalance),
		})

		remaining = remaining.Sub(applied)
	}

	return AllocationResult{
		Affected:           affected,
		RemainingUnapplied: remaining,
	}, nil
}

// validateOrdering checks that installment numbers are strictly increasing.
func validateOrdering(sched Schedule) error {
	for i := 1; i < len(sched); i++ {
		if sched[i].Number <= sched[i-1].Number {
			return newValidationError(CodeMalformedSchedule,
				"installment numbers not strictly increasing at position %d (%d after %d)",
				i, sched[i].Number, sched[i-1].Number)
		}
	}
	return nil
}

// Apply returns a copy of sched with the allocation plan applied: for each
// affected installment, AmountPaid is increased by AmountApplied and Status
// is replaced with NewStatus. The input schedule is not modified.
//
// This is the bridge between the pure plan and the persisted state; stores
// use it inside a transaction to compute the rows to write.
func Apply(sched Schedule, result AllocationResult) Schedule {
	byID := make(map[InstallmentID]AllocationLine, len(result.Affected))
	for _, line := range result.Affected {
		byID[line.InstallmentID] = line
	}

	out := make(Schedule, len(sched))
	copy(out, sched)
	for i := range out {
		if line, ok := byID[out[i].ID]; ok {
			out[i].AmountPaid = out[i].AmountPaid.Add(line.AmountApplied)
			out[i].Status = line.NewStatus
		}
	}
	return out
}
