/*
scheduler.go - Cron-driven overdue marking

PURPOSE:
  Once a day, flips every PENDING or PARTIALLY_PAID installment whose due
  date has passed to OVERDUE and writes one audit entry per flipped
  installment under the system actor. OVERDUE installments stay fully
  payable; the status exists for reporting and collections, not to block
  money.

TRIGGERING:
  - Scheduled: robfig/cron with the spec from OVERDUE_CRON
  - Manual: POST /api/admin/overdue/sweep runs the same sweep
*/
package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/fleetops/finance-engine/schedule"
	"github.com/fleetops/finance-engine/store/sqlite"
)

const systemActor = "system"

// Scheduler owns the periodic overdue sweep.
type Scheduler struct {
	cron  *cron.Cron
	store *sqlite.Store
	log   *logrus.Logger
}

// NewScheduler registers the overdue sweep under cronSpec.
func NewScheduler(store *sqlite.Store, log *logrus.Logger, cronSpec string) (*Scheduler, error) {
	s := &Scheduler{
		cron:  cron.New(),
		store: store,
		log:   log,
	}

	_, err := s.cron.AddFunc(cronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		marked, err := sweepOverdue(ctx, s.store, s.log, time.Now())
		if err != nil {
			s.log.WithError(err).Error("overdue sweep failed")
			return
		}
		s.log.WithField("marked", marked).Info("overdue sweep completed")
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the cron schedule in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// sweepOverdue runs one sweep and audits every flipped installment. Shared
// by the cron job and the manual admin endpoint.
func sweepOverdue(ctx context.Context, store *sqlite.Store, log *logrus.Logger, asOf time.Time) (int, error) {
	flipped, err := store.SweepOverdue(ctx, asOf)
	if err != nil {
		return 0, err
	}

	for _, f := range flipped {
		entry := schedule.AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: asOf,
			ActorID:   systemActor,
			Action:    schedule.AuditOverdueMarked,
			RecordID:  f.RecordID,
			Payload: map[string]any{
				"installment_id":  string(f.InstallmentID),
				"previous_status": string(f.Previous),
			},
		}
		if err := store.AppendAudit(ctx, entry); err != nil {
			log.WithError(err).WithField("installment_id", f.InstallmentID).
				Warn("failed to append audit entry for overdue marking")
		}
	}
	return len(flipped), nil
}
