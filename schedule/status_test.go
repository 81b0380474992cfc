package schedule_test

import (
	"testing"

	"github.com/fleetops/finance-engine/schedule"
)

func TestStatus_Terminal(t *testing.T) {
	cases := map[schedule.Status]bool{
		schedule.StatusPending:       false,
		schedule.StatusPartiallyPaid: false,
		schedule.StatusOverdue:       false,
		schedule.StatusCompleted:     true,
		schedule.StatusCancelled:     true,
		schedule.StatusWrittenOff:    true,
	}

	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestStatusForBalance(t *testing.T) {
	if got := schedule.StatusForBalance(d("0")); got != schedule.StatusCompleted {
		t.Errorf("zero balance: got %s, want COMPLETED", got)
	}
	if got := schedule.StatusForBalance(d("0.01")); got != schedule.StatusPartiallyPaid {
		t.Errorf("positive balance: got %s, want PARTIALLY_PAID", got)
	}
}

func TestSchedule_TotalOutstanding(t *testing.T) {
	sched := schedule.Schedule{
		inst("i1", 1, "100", "40", schedule.StatusPartiallyPaid),
		inst("i2", 2, "200", "0", schedule.StatusPending),
		inst("i3", 3, "300", "0", schedule.StatusWrittenOff), // excluded
	}

	if got := sched.TotalOutstanding(); !got.Equal(d("260")) {
		t.Errorf("TotalOutstanding = %s, want 260", got)
	}
}

func TestSchedule_IndexOf(t *testing.T) {
	sched := schedule.Schedule{
		inst("i1", 1, "100", "0", schedule.StatusPending),
		inst("i2", 2, "100", "0", schedule.StatusPending),
	}

	if idx := sched.IndexOf("i2"); idx != 1 {
		t.Errorf("IndexOf(i2) = %d, want 1", idx)
	}
	if idx := sched.IndexOf("missing"); idx != -1 {
		t.Errorf("IndexOf(missing) = %d, want -1", idx)
	}
}
