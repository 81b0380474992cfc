// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/fleetops/finance-engine/schedule"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	schedules   map[schedule.Key]schedule.Schedule
	payments    []schedule.Payment
	idempotency map[string]bool
	audit       []schedule.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		schedules:   make(map[schedule.Key]schedule.Schedule),
		idempotency: make(map[string]bool),
	}
}

// Seed installs a schedule for a key, sorted by installment number.
// Test/dev helper; production schedules come from record creation.
func (m *Memory) Seed(key schedule.Key, sched schedule.Schedule) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make(schedule.Schedule, len(sched))
	copy(cp, sched)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Number < cp[j].Number })
	m.schedules[key] = cp
}

func (m *Memory) LoadSchedule(_ context.Context, key schedule.Key) (schedule.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadLocked(key)
}

func (m *Memory) loadLocked(key schedule.Key) (schedule.Schedule, error) {
	sched, ok := m.schedules[key]
	if !ok {
		return nil, schedule.ErrScheduleNotFound
	}
	result := make(schedule.Schedule, len(sched))
	copy(result, sched)
	return result, nil
}

func (m *Memory) UpdateInstallments(_ context.Context, key schedule.Key, installments []schedule.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(key, installments)
}

func (m *Memory) updateLocked(key schedule.Key, installments []schedule.Installment) error {
	sched, ok := m.schedules[key]
	if !ok {
		return schedule.ErrScheduleNotFound
	}
	for _, upd := range installments {
		idx := sched.IndexOf(upd.ID)
		if idx < 0 {
			return schedule.ErrInstallmentNotFound
		}
		sched[idx].AmountPaid = upd.AmountPaid
		sched[idx].Status = upd.Status
	}
	return nil
}

func (m *Memory) AppendPayment(_ context.Context, p schedule.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendPaymentLocked(p)
}

func (m *Memory) appendPaymentLocked(p schedule.Payment) error {
	if p.IdempotencyKey != "" && m.idempotency[p.IdempotencyKey] {
		return schedule.ErrDuplicateIdempotencyKey
	}
	m.payments = append(m.payments, p)
	if p.IdempotencyKey != "" {
		m.idempotency[p.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) PaymentExists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// Payments returns all recorded payments. Test helper.
func (m *Memory) Payments() []schedule.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]schedule.Payment, len(m.payments))
	copy(result, m.payments)
	return result
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry schedule.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, filter schedule.AuditFilter) ([]schedule.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []schedule.AuditEntry
	for _, e := range m.audit {
		if !auditMatches(e, filter) {
			continue
		}
		result = append(result, e)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func auditMatches(e schedule.AuditEntry, f schedule.AuditFilter) bool {
	if f.RecordID != nil && e.RecordID != *f.RecordID {
		return false
	}
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if e.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For the memory store this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(schedule.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm}

	if err := fn(view); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	schedCopy := make(map[schedule.Key]schedule.Schedule)
	for k, v := range tm.schedules {
		schedCopy[k] = append(schedule.Schedule{}, v...)
	}
	idempCopy := make(map[string]bool)
	for k, v := range tm.idempotency {
		idempCopy[k] = v
	}
	return memorySnapshot{
		schedules:   schedCopy,
		payments:    append([]schedule.Payment{}, tm.payments...),
		idempotency: idempCopy,
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.schedules = s.schedules
	tm.payments = s.payments
	tm.idempotency = s.idempotency
}

type memorySnapshot struct {
	schedules   map[schedule.Key]schedule.Schedule
	payments    []schedule.Payment
	idempotency map[string]bool
}

type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) LoadSchedule(_ context.Context, key schedule.Key) (schedule.Schedule, error) {
	return tv.parent.loadLocked(key)
}

func (tv *txMemoryView) UpdateInstallments(_ context.Context, key schedule.Key, installments []schedule.Installment) error {
	return tv.parent.updateLocked(key, installments)
}

func (tv *txMemoryView) AppendPayment(_ context.Context, p schedule.Payment) error {
	return tv.parent.appendPaymentLocked(p)
}

func (tv *txMemoryView) PaymentExists(_ context.Context, idempotencyKey string) (bool, error) {
	return tv.parent.idempotency[idempotencyKey], nil
}
