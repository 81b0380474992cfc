package payable_test

import (
	"context"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/finance-engine/methods"
	"github.com/fleetops/finance-engine/payable"
	"github.com/fleetops/finance-engine/schedule"
	"github.com/fleetops/finance-engine/schedule/store"
)

func d(s string) decimal.Decimal {
	return schedule.MustDecimal(s)
}

func newService(t *testing.T) (*payable.Service, *store.TxMemory) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	mem := store.NewTxMemory()
	return payable.NewService(mem, mem.Memory, methods.NewCatalog(), log), mem
}

// Each role gets its own independent reimbursement schedule.
func seedRoles(mem *store.TxMemory, recordID string) {
	id := schedule.RecordID(recordID)
	mem.Seed(schedule.Key{RecordID: id, Subschedule: string(payable.RoleDriver)}, schedule.Schedule{
		{ID: "d1", Number: 1, AmountDue: d("300"), AmountPaid: d("0"), Status: schedule.StatusPending},
		{ID: "d2", Number: 2, AmountDue: d("300"), AmountPaid: d("0"), Status: schedule.StatusPending},
	})
	mem.Seed(schedule.Key{RecordID: id, Subschedule: string(payable.RoleConductor)}, schedule.Schedule{
		{ID: "c1", Number: 1, AmountDue: d("150"), AmountPaid: d("0"), Status: schedule.StatusPending},
	})
}

func TestRecordPayment_ReimbursementCascades(t *testing.T) {
	// Payables use the full cascade, same as receivables.
	svc, mem := newService(t)
	seedRoles(mem, "exp-1")
	ctx := context.Background()

	receipt, err := svc.RecordPayment(ctx, payable.PaymentInput{
		RecordID:      "exp-1",
		Role:          payable.RoleDriver,
		InstallmentID: "d1",
		Amount:        d("450"),
		MethodCode:    methods.CodeReimbursement,
		ActorID:       "admin-1",
	})
	require.NoError(t, err)
	require.Len(t, receipt.Allocation.Affected, 2)

	driver, err := mem.LoadSchedule(ctx, schedule.Key{RecordID: "exp-1", Subschedule: "driver"})
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusCompleted, driver[0].Status)
	assert.True(t, driver[1].AmountPaid.Equal(d("150")))
	assert.Equal(t, schedule.StatusPartiallyPaid, driver[1].Status)
}

func TestRecordPayment_RoleSchedulesAreIndependent(t *testing.T) {
	svc, mem := newService(t)
	seedRoles(mem, "exp-1")
	ctx := context.Background()

	_, err := svc.RecordPayment(ctx, payable.PaymentInput{
		RecordID:      "exp-1",
		Role:          payable.RoleConductor,
		InstallmentID: "c1",
		Amount:        d("150"),
		MethodCode:    methods.CodeCash,
		ActorID:       "admin-1",
	})
	require.NoError(t, err)

	// Driver schedule untouched.
	driver, err := mem.LoadSchedule(ctx, schedule.Key{RecordID: "exp-1", Subschedule: "driver"})
	require.NoError(t, err)
	assert.True(t, driver[0].AmountPaid.IsZero())

	conductor, err := mem.LoadSchedule(ctx, schedule.Key{RecordID: "exp-1", Subschedule: "conductor"})
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusCompleted, conductor[0].Status)
}

func TestRecordPayment_RejectsUnknownRole(t *testing.T) {
	svc, mem := newService(t)
	seedRoles(mem, "exp-1")

	_, err := svc.RecordPayment(context.Background(), payable.PaymentInput{
		RecordID:      "exp-1",
		Role:          "mechanic",
		InstallmentID: "d1",
		Amount:        d("100"),
		MethodCode:    methods.CodeCash,
	})
	assert.ErrorIs(t, err, payable.ErrInvalidRole)
	assert.Empty(t, mem.Payments())
}

func TestRecordPayment_OverpaymentRejected(t *testing.T) {
	svc, mem := newService(t)
	seedRoles(mem, "exp-1")

	_, err := svc.RecordPayment(context.Background(), payable.PaymentInput{
		RecordID:      "exp-1",
		Role:          payable.RoleConductor,
		InstallmentID: "c1",
		Amount:        d("200"), // conductor outstanding is 150
		MethodCode:    methods.CodeCash,
	})
	assert.ErrorIs(t, err, schedule.ErrOverpayment)
	assert.Empty(t, mem.Payments())
}

func TestPreviewAllocation_Payable(t *testing.T) {
	svc, mem := newService(t)
	seedRoles(mem, "exp-1")

	result, err := svc.PreviewAllocation(context.Background(), "exp-1", payable.RoleDriver, "d1", d("700"))
	require.NoError(t, err)
	assert.Len(t, result.Affected, 2)
	assert.True(t, result.RemainingUnapplied.Equal(d("100")))
	assert.Empty(t, mem.Payments())
}

func TestParseRole(t *testing.T) {
	role, err := payable.ParseRole("driver")
	require.NoError(t, err)
	assert.Equal(t, payable.RoleDriver, role)

	_, err = payable.ParseRole("pilot")
	assert.ErrorIs(t, err, payable.ErrInvalidRole)
}

func TestRecordValidate(t *testing.T) {
	ok := payable.Record{ID: "exp-1", TotalAmount: d("600")}
	assert.NoError(t, ok.Validate())

	missing := payable.Record{TotalAmount: d("600")}
	assert.ErrorIs(t, missing.Validate(), payable.ErrInvalidRecord)

	zero := payable.Record{ID: "exp-2", TotalAmount: d("0")}
	assert.ErrorIs(t, zero.Validate(), payable.ErrInvalidRecord)
}
