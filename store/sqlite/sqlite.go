/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements schedule.Store, schedule.TxStore, and schedule.AuditLog using
  SQLite, plus the record tables the HTTP layer manages. In production the
  same patterns apply to PostgreSQL - only minor SQL dialect differences,
  and row locks on the parent record replace the process-level mutex.

INTERFACES IMPLEMENTED:
  schedule.Store:    Schedule reads, installment updates, payment appends
  schedule.TxStore:  WithTx for the read-allocate-write cycle
  schedule.AuditLog: Append-only audit trail

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE on the payments table
  - No UPDATE or DELETE on the audit_log table
  - installments.amount_due is written once at schedule creation and
    never updated; only amount_paid and status change

KEY TABLES:
  revenue_records:  Trip/rental revenue records (kind + JSON payload)
  expense_records:  Reimbursable operational expenses
  installments:     One row per installment, keyed by schedule
  payments:         Immutable record of applied payments
  audit_log:        Immutable record of who did what when

MONEY:
  Amounts are stored as TEXT decimal strings and parsed with
  shopspring/decimal. REAL columns would reintroduce the floating-point
  drift the engine exists to avoid.

CONCURRENCY:
  WithTx holds a process-wide mutex for the duration of the transaction,
  serializing writers. Combined with SQLite's single-writer WAL mode this
  guarantees no two payments allocate against a stale schedule view.

USAGE:
  store, err := sqlite.New("./data/finance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - schedule/store.go: Interface definitions and the transaction contract
  - schedule/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/fleetops/finance-engine/payable"
	"github.com/fleetops/finance-engine/receivable"
	"github.com/fleetops/finance-engine/schedule"
)

// Store implements the storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schemaSQL := `
	-- Revenue records (trip | rental, tagged union as kind + payload)
	CREATE TABLE IF NOT EXISTS revenue_records (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		details_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Reimbursable operational expenses
	CREATE TABLE IF NOT EXISTS expense_records (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		incurred_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Installments; one schedule = (record_id, subschedule)
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL,
		subschedule TEXT NOT NULL DEFAULT '',
		number INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		amount_due TEXT NOT NULL,
		amount_paid TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'PENDING',
		UNIQUE(record_id, subschedule, number)
	);

	CREATE INDEX IF NOT EXISTS idx_installments_schedule
		ON installments(record_id, subschedule, number);
	CREATE INDEX IF NOT EXISTS idx_installments_due_status
		ON installments(due_date, status);

	-- Payments (append-only)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL,
		subschedule TEXT NOT NULL DEFAULT '',
		installment_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		method_code TEXT NOT NULL,
		reference TEXT,
		idempotency_key TEXT UNIQUE,
		recorded_by TEXT,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_record
		ON payments(record_id, subschedule);
	CREATE INDEX IF NOT EXISTS idx_payments_idempotency
		ON payments(idempotency_key) WHERE idempotency_key IS NOT NULL;

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		record_id TEXT NOT NULL,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_record
		ON audit_log(record_id);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp
		ON audit_log(timestamp);
	`
	_, err := s.db.Exec(schemaSQL)
	return err
}

// =============================================================================
// QUERIER - Shared between *sql.DB and *sql.Tx code paths
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// SCHEDULE STORE
// =============================================================================

func (s *Store) LoadSchedule(ctx context.Context, key schedule.Key) (schedule.Schedule, error) {
	return loadSchedule(ctx, s.db, key)
}

func loadSchedule(ctx context.Context, q querier, key schedule.Key) (schedule.Schedule, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, number, due_date, amount_due, amount_paid, status
		FROM installments
		WHERE record_id = ? AND subschedule = ?
		ORDER BY number ASC`,
		string(key.RecordID), key.Subschedule)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sched schedule.Schedule
	for rows.Next() {
		var (
			id, dueDate, due, paid, status string
			number                         int
		)
		if err := rows.Scan(&id, &number, &dueDate, &due, &paid, &status); err != nil {
			return nil, err
		}
		inst := schedule.Installment{
			ID:     schedule.InstallmentID(id),
			Number: number,
			Status: schedule.Status(status),
		}
		if inst.DueDate, err = time.Parse(time.RFC3339, dueDate); err != nil {
			return nil, fmt.Errorf("installment %s: bad due_date: %w", id, err)
		}
		if inst.AmountDue, err = decimal.NewFromString(due); err != nil {
			return nil, fmt.Errorf("installment %s: bad amount_due: %w", id, err)
		}
		if inst.AmountPaid, err = decimal.NewFromString(paid); err != nil {
			return nil, fmt.Errorf("installment %s: bad amount_paid: %w", id, err)
		}
		sched = append(sched, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sched) == 0 {
		return nil, schedule.ErrScheduleNotFound
	}
	return sched, nil
}

func (s *Store) UpdateInstallments(ctx context.Context, key schedule.Key, installments []schedule.Installment) error {
	return updateInstallments(ctx, s.db, key, installments)
}

func updateInstallments(ctx context.Context, q querier, key schedule.Key, installments []schedule.Installment) error {
	for _, inst := range installments {
		res, err := q.ExecContext(ctx, `
			UPDATE installments
			SET amount_paid = ?, status = ?
			WHERE id = ? AND record_id = ? AND subschedule = ?`,
			inst.AmountPaid.String(), string(inst.Status),
			string(inst.ID), string(key.RecordID), key.Subschedule)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", schedule.ErrInstallmentNotFound, inst.ID)
		}
	}
	return nil
}

func (s *Store) AppendPayment(ctx context.Context, p schedule.Payment) error {
	return appendPayment(ctx, s.db, p)
}

func appendPayment(ctx context.Context, q querier, p schedule.Payment) error {
	idempKey := sql.NullString{String: p.IdempotencyKey, Valid: p.IdempotencyKey != ""}
	_, err := q.ExecContext(ctx, `
		INSERT INTO payments (id, record_id, subschedule, installment_id, amount,
			method_code, reference, idempotency_key, recorded_by, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Key.RecordID), p.Key.Subschedule, string(p.InstallmentID),
		p.Amount.String(), p.MethodCode, p.Reference, idempKey,
		p.RecordedBy, p.RecordedAt.UTC().Format(time.RFC3339))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: payments.idempotency_key") {
		return schedule.ErrDuplicateIdempotencyKey
	}
	return err
}

func (s *Store) PaymentExists(ctx context.Context, idempotencyKey string) (bool, error) {
	return paymentExists(ctx, s.db, idempotencyKey)
}

func paymentExists(ctx context.Context, q querier, idempotencyKey string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM payments WHERE idempotency_key = ?`, idempotencyKey).Scan(&count)
	return count > 0, err
}

// ListPayments returns all payments for a schedule, newest first.
func (s *Store) ListPayments(ctx context.Context, key schedule.Key) ([]schedule.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, installment_id, amount, method_code, reference,
			COALESCE(idempotency_key, ''), recorded_by, recorded_at
		FROM payments
		WHERE record_id = ? AND subschedule = ?
		ORDER BY recorded_at DESC`,
		string(key.RecordID), key.Subschedule)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []schedule.Payment
	for rows.Next() {
		p := schedule.Payment{Key: key}
		var installmentID, amount, recordedAt string
		if err := rows.Scan(&p.ID, &installmentID, &amount, &p.MethodCode,
			&p.Reference, &p.IdempotencyKey, &p.RecordedBy, &recordedAt); err != nil {
			return nil, err
		}
		p.InstallmentID = schedule.InstallmentID(installmentID)
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("payment %s: bad amount: %w", p.ID, err)
		}
		p.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction, serialized with the
// store's writer mutex. Rolls back if fn returns an error.
func (s *Store) WithTx(ctx context.Context, fn func(schedule.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(&txStore{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// txStore is the schedule.Store view inside a transaction.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) LoadSchedule(ctx context.Context, key schedule.Key) (schedule.Schedule, error) {
	return loadSchedule(ctx, t.tx, key)
}

func (t *txStore) UpdateInstallments(ctx context.Context, key schedule.Key, installments []schedule.Installment) error {
	return updateInstallments(ctx, t.tx, key, installments)
}

func (t *txStore) AppendPayment(ctx context.Context, p schedule.Payment) error {
	return appendPayment(ctx, t.tx, p)
}

func (t *txStore) PaymentExists(ctx context.Context, idempotencyKey string) (bool, error) {
	return paymentExists(ctx, t.tx, idempotencyKey)
}

// =============================================================================
// SCHEDULE CREATION
// =============================================================================

// CreateSchedule inserts the installments of a new schedule. amount_due is
// written here and never again.
func (s *Store) CreateSchedule(ctx context.Context, key schedule.Key, sched schedule.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, inst := range sched {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO installments (id, record_id, subschedule, number, due_date,
				amount_due, amount_paid, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			string(inst.ID), string(key.RecordID), key.Subschedule, inst.Number,
			inst.DueDate.UTC().Format(time.RFC3339),
			inst.AmountDue.String(), inst.AmountPaid.String(), string(inst.Status))
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// =============================================================================
// RECORDS
// =============================================================================

// SaveRevenueRecord persists a validated revenue record.
func (s *Store) SaveRevenueRecord(ctx context.Context, r receivable.Record) error {
	var details any
	switch r.Kind {
	case receivable.KindTrip:
		details = r.Trip
	case receivable.KindRental:
		details = r.Rental
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO revenue_records (id, kind, details_json, created_at)
		VALUES (?, ?, ?, ?)`,
		string(r.ID), string(r.Kind), string(payload),
		r.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// GetRevenueRecord loads one revenue record.
func (s *Store) GetRevenueRecord(ctx context.Context, id schedule.RecordID) (receivable.Record, error) {
	var kind, payload, createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT kind, details_json, created_at FROM revenue_records WHERE id = ?`,
		string(id)).Scan(&kind, &payload, &createdAt)
	if err == sql.ErrNoRows {
		return receivable.Record{}, schedule.ErrRecordNotFound
	}
	if err != nil {
		return receivable.Record{}, err
	}

	record := receivable.Record{ID: id, Kind: receivable.Kind(kind)}
	record.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	switch record.Kind {
	case receivable.KindTrip:
		record.Trip = &receivable.TripDetails{}
		err = json.Unmarshal([]byte(payload), record.Trip)
	case receivable.KindRental:
		record.Rental = &receivable.RentalDetails{}
		err = json.Unmarshal([]byte(payload), record.Rental)
	}
	return record, err
}

// SaveExpenseRecord persists a validated expense record.
func (s *Store) SaveExpenseRecord(ctx context.Context, r payable.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expense_records (id, description, total_amount, incurred_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(r.ID), r.Description, r.TotalAmount.String(),
		r.IncurredAt.UTC().Format(time.RFC3339),
		r.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// GetExpenseRecord loads one expense record.
func (s *Store) GetExpenseRecord(ctx context.Context, id schedule.RecordID) (payable.Record, error) {
	var description, total, incurredAt, createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT description, total_amount, incurred_at, created_at
		FROM expense_records WHERE id = ?`,
		string(id)).Scan(&description, &total, &incurredAt, &createdAt)
	if err == sql.ErrNoRows {
		return payable.Record{}, schedule.ErrRecordNotFound
	}
	if err != nil {
		return payable.Record{}, err
	}

	record := payable.Record{ID: id, Description: description}
	if record.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return payable.Record{}, fmt.Errorf("expense %s: bad total_amount: %w", id, err)
	}
	record.IncurredAt, _ = time.Parse(time.RFC3339, incurredAt)
	record.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return record, nil
}

// =============================================================================
// ADMIN OPERATIONS
// =============================================================================

// ClosedInstallment describes one installment closed by CloseInstallment
// or flipped by SweepOverdue, for audit purposes.
type ClosedInstallment struct {
	InstallmentID schedule.InstallmentID
	RecordID      schedule.RecordID
	Previous      schedule.Status
}

// CloseInstallment administratively moves a non-terminal installment to
// CANCELLED or WRITTEN_OFF.
func (s *Store) CloseInstallment(ctx context.Context, id schedule.InstallmentID, to schedule.Status) (ClosedInstallment, error) {
	if to != schedule.StatusCancelled && to != schedule.StatusWrittenOff {
		return ClosedInstallment{}, fmt.Errorf("%w: cannot administratively close to status %s", schedule.ErrValidation, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var recordID, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT record_id, status FROM installments WHERE id = ?`, string(id)).
		Scan(&recordID, &status)
	if err == sql.ErrNoRows {
		return ClosedInstallment{}, schedule.ErrInstallmentNotFound
	}
	if err != nil {
		return ClosedInstallment{}, err
	}

	previous := schedule.Status(status)
	if previous.Terminal() {
		return ClosedInstallment{}, fmt.Errorf("%w: installment %s already terminal (%s)", schedule.ErrValidation, id, previous)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE installments SET status = ? WHERE id = ?`, string(to), string(id))
	if err != nil {
		return ClosedInstallment{}, err
	}
	return ClosedInstallment{
		InstallmentID: id,
		RecordID:      schedule.RecordID(recordID),
		Previous:      previous,
	}, nil
}

// SweepOverdue marks every PENDING or PARTIALLY_PAID installment with a
// due date strictly before asOf as OVERDUE, returning the flipped rows.
func (s *Store) SweepOverdue(ctx context.Context, asOf time.Time) ([]ClosedInstallment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := asOf.UTC().Format(time.RFC3339)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_id, status FROM installments
		WHERE due_date < ? AND status IN (?, ?)`,
		cutoff, string(schedule.StatusPending), string(schedule.StatusPartiallyPaid))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flipped []ClosedInstallment
	for rows.Next() {
		var id, recordID, status string
		if err := rows.Scan(&id, &recordID, &status); err != nil {
			return nil, err
		}
		flipped = append(flipped, ClosedInstallment{
			InstallmentID: schedule.InstallmentID(id),
			RecordID:      schedule.RecordID(recordID),
			Previous:      schedule.Status(status),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(flipped) > 0 {
		_, err = s.db.ExecContext(ctx, `
			UPDATE installments SET status = ?
			WHERE due_date < ? AND status IN (?, ?)`,
			string(schedule.StatusOverdue), cutoff,
			string(schedule.StatusPending), string(schedule.StatusPartiallyPaid))
		if err != nil {
			return nil, err
		}
	}
	return flipped, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry schedule.AuditEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, record_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp.UTC().Format(time.RFC3339),
		entry.ActorID, string(entry.Action), string(entry.RecordID), string(payload))
	return err
}

func (s *Store) QueryAudit(ctx context.Context, filter schedule.AuditFilter) ([]schedule.AuditEntry, error) {
	query := `SELECT id, timestamp, actor_id, action, record_id, payload_json FROM audit_log WHERE 1=1`
	var args []any

	if filter.RecordID != nil {
		query += ` AND record_id = ?`
		args = append(args, string(*filter.RecordID))
	}
	if filter.ActorID != nil {
		query += ` AND actor_id = ?`
		args = append(args, *filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		query += ` AND action IN (?` + strings.Repeat(",?", len(filter.Actions)-1) + `)`
		for _, a := range filter.Actions {
			args = append(args, string(a))
		}
	}
	if filter.From != nil {
		query += ` AND timestamp >= ?`
		args = append(args, filter.From.UTC().Format(time.RFC3339))
	}
	if filter.To != nil {
		query += ` AND timestamp <= ?`
		args = append(args, filter.To.UTC().Format(time.RFC3339))
	}
	query += ` ORDER BY timestamp DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []schedule.AuditEntry
	for rows.Next() {
		var (
			entry                        schedule.AuditEntry
			timestamp, recordID, payload string
			action                       string
		)
		if err := rows.Scan(&entry.ID, &timestamp, &entry.ActorID, &action, &recordID, &payload); err != nil {
			return nil, err
		}
		entry.Timestamp, _ = time.Parse(time.RFC3339, timestamp)
		entry.Action = schedule.AuditAction(action)
		entry.RecordID = schedule.RecordID(recordID)
		if payload != "" {
			_ = json.Unmarshal([]byte(payload), &entry.Payload)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
