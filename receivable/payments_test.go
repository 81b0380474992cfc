package receivable_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/finance-engine/methods"
	"github.com/fleetops/finance-engine/receivable"
	"github.com/fleetops/finance-engine/schedule"
	"github.com/fleetops/finance-engine/schedule/store"
)

func d(s string) decimal.Decimal {
	return schedule.MustDecimal(s)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newService(t *testing.T) (*receivable.Service, *store.TxMemory) {
	t.Helper()
	mem := store.NewTxMemory()
	svc := receivable.NewService(mem, mem.Memory, methods.NewCatalog(), quietLogger())
	svc.Now = func() time.Time {
		return time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	}
	return svc, mem
}

func seedSchedule(mem *store.TxMemory, recordID string) schedule.Key {
	key := schedule.Key{RecordID: schedule.RecordID(recordID)}
	mem.Seed(key, schedule.Schedule{
		{ID: "i1", Number: 1, AmountDue: d("1000"), AmountPaid: d("0"), Status: schedule.StatusPending},
		{ID: "i2", Number: 2, AmountDue: d("500"), AmountPaid: d("0"), Status: schedule.StatusPending},
	})
	return key
}

func TestRecordPayment_CascadePersistsBalancesAndPayment(t *testing.T) {
	svc, mem := newService(t)
	key := seedSchedule(mem, "rev-1")
	ctx := context.Background()

	receipt, err := svc.RecordPayment(ctx, receivable.PaymentInput{
		RecordID:       "rev-1",
		InstallmentID:  "i1",
		Amount:         d("1200"),
		MethodCode:     methods.CodeCash,
		IdempotencyKey: "pay-1",
		ActorID:        "clerk-7",
	})
	require.NoError(t, err)
	require.Len(t, receipt.Allocation.Affected, 2)

	sched, err := mem.LoadSchedule(ctx, key)
	require.NoError(t, err)
	assert.True(t, sched[0].AmountPaid.Equal(d("1000")), "i1 paid %s", sched[0].AmountPaid)
	assert.Equal(t, schedule.StatusCompleted, sched[0].Status)
	assert.True(t, sched[1].AmountPaid.Equal(d("200")), "i2 paid %s", sched[1].AmountPaid)
	assert.Equal(t, schedule.StatusPartiallyPaid, sched[1].Status)

	payments := mem.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, methods.CodeCash, payments[0].MethodCode)
	assert.Equal(t, "clerk-7", payments[0].RecordedBy)

	// Audit trail carries the payment.
	entries, err := mem.QueryAudit(ctx, schedule.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, schedule.AuditPaymentRecorded, entries[0].Action)
	assert.Equal(t, "1200", entries[0].Payload["amount"])
}

func TestRecordPayment_OverpaymentRejectedAndRolledBack(t *testing.T) {
	svc, mem := newService(t)
	key := seedSchedule(mem, "rev-1")
	ctx := context.Background()

	_, err := svc.RecordPayment(ctx, receivable.PaymentInput{
		RecordID:      "rev-1",
		InstallmentID: "i1",
		Amount:        d("2000"), // outstanding is 1500
		MethodCode:    methods.CodeBankTransfer,
		ActorID:       "clerk-7",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, schedule.ErrOverpayment)

	var overErr *schedule.OverpaymentError
	require.ErrorAs(t, err, &overErr)
	assert.True(t, overErr.RemainingUnapplied.Equal(d("500")),
		"remainder %s", overErr.RemainingUnapplied)

	// Nothing was persisted.
	sched, err := mem.LoadSchedule(ctx, key)
	require.NoError(t, err)
	assert.True(t, sched[0].AmountPaid.IsZero())
	assert.Empty(t, mem.Payments())
}

func TestRecordPayment_IdempotencyReplayRejected(t *testing.T) {
	svc, mem := newService(t)
	seedSchedule(mem, "rev-1")
	ctx := context.Background()

	in := receivable.PaymentInput{
		RecordID:       "rev-1",
		InstallmentID:  "i1",
		Amount:         d("100"),
		MethodCode:     methods.CodeCash,
		IdempotencyKey: "pay-dup",
		ActorID:        "clerk-7",
	}

	_, err := svc.RecordPayment(ctx, in)
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, in)
	assert.ErrorIs(t, err, schedule.ErrDuplicateIdempotencyKey)

	// The replay must not double-apply.
	sched, _ := mem.LoadSchedule(ctx, schedule.Key{RecordID: "rev-1"})
	assert.True(t, sched[0].AmountPaid.Equal(d("100")), "i1 paid %s", sched[0].AmountPaid)
}

func TestRecordPayment_ReimbursementMethodRejectedOnRevenue(t *testing.T) {
	svc, mem := newService(t)
	seedSchedule(mem, "rev-1")

	_, err := svc.RecordPayment(context.Background(), receivable.PaymentInput{
		RecordID:      "rev-1",
		InstallmentID: "i1",
		Amount:        d("100"),
		MethodCode:    methods.CodeReimbursement,
		ActorID:       "clerk-7",
	})
	assert.ErrorIs(t, err, methods.ErrMethodNotAllowed)
	assert.Empty(t, mem.Payments())
}

func TestRecordPayment_ValidationErrorsPropagate(t *testing.T) {
	svc, mem := newService(t)
	seedSchedule(mem, "rev-1")
	ctx := context.Background()

	// Unknown installment.
	_, err := svc.RecordPayment(ctx, receivable.PaymentInput{
		RecordID:      "rev-1",
		InstallmentID: "missing",
		Amount:        d("100"),
		MethodCode:    methods.CodeCash,
	})
	assert.ErrorIs(t, err, schedule.ErrInstallmentNotFound)

	// Non-positive amount surfaces the allocator's validation error.
	_, err = svc.RecordPayment(ctx, receivable.PaymentInput{
		RecordID:      "rev-1",
		InstallmentID: "i1",
		Amount:        d("0"),
		MethodCode:    methods.CodeCash,
	})
	assert.ErrorIs(t, err, schedule.ErrValidation)

	// Unknown record.
	_, err = svc.RecordPayment(ctx, receivable.PaymentInput{
		RecordID:      "rev-missing",
		InstallmentID: "i1",
		Amount:        d("100"),
		MethodCode:    methods.CodeCash,
	})
	assert.ErrorIs(t, err, schedule.ErrScheduleNotFound)

	assert.Empty(t, mem.Payments())
}

func TestPreviewAllocation_ReportsOverpaymentWithoutPersisting(t *testing.T) {
	svc, mem := newService(t)
	seedSchedule(mem, "rev-1")
	ctx := context.Background()

	result, err := svc.PreviewAllocation(ctx, "rev-1", "i1", d("2000"))
	require.NoError(t, err)
	assert.True(t, result.RemainingUnapplied.Equal(d("500")))

	sched, _ := mem.LoadSchedule(ctx, schedule.Key{RecordID: "rev-1"})
	assert.True(t, sched[0].AmountPaid.IsZero(), "preview must not persist")
	assert.Empty(t, mem.Payments())
}

func TestRecordValidate_TaggedUnion(t *testing.T) {
	trip := &receivable.TripDetails{RouteCode: "R-12", BusPlate: "B-4433"}
	rental := &receivable.RentalDetails{ContractNumber: "C-9", LesseeName: "Acme"}

	cases := []struct {
		name    string
		record  receivable.Record
		wantErr bool
	}{
		{"trip ok", receivable.Record{ID: "r1", Kind: receivable.KindTrip, Trip: trip}, false},
		{"rental ok", receivable.Record{ID: "r2", Kind: receivable.KindRental, Rental: rental}, false},
		{"trip missing payload", receivable.Record{ID: "r3", Kind: receivable.KindTrip}, true},
		{"both payloads", receivable.Record{ID: "r4", Kind: receivable.KindTrip, Trip: trip, Rental: rental}, true},
		{"unknown kind", receivable.Record{ID: "r5", Kind: "charter", Trip: trip}, true},
		{"missing id", receivable.Record{Kind: receivable.KindTrip, Trip: trip}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.record.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, receivable.ErrInvalidRecord)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
