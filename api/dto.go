/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY ON THE WIRE:
  Amounts travel as decimal strings ("1200.50"), never JSON numbers.
  Parsing happens at the handler boundary; everything behind it is
  decimal.Decimal.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/fleetops/finance-engine/payable"
	"github.com/fleetops/finance-engine/receivable"
	"github.com/fleetops/finance-engine/schedule"
)

// =============================================================================
// ERROR RESPONSE
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}

// =============================================================================
// SCHEDULE / INSTALLMENTS
// =============================================================================

// InstallmentDTO represents one installment in API responses.
type InstallmentDTO struct {
	ID         string `json:"id"`
	Number     int    `json:"installment_number"`
	DueDate    string `json:"due_date"`
	AmountDue  string `json:"amount_due"`
	AmountPaid string `json:"amount_paid"`
	Balance    string `json:"balance"`
	Status     string `json:"status"`
}

// ScheduleDTO is a full schedule with its outstanding total.
type ScheduleDTO struct {
	RecordID         string           `json:"record_id"`
	Subschedule      string           `json:"subschedule,omitempty"`
	Installments     []InstallmentDTO `json:"installments"`
	TotalOutstanding string           `json:"total_outstanding"`
}

func toInstallmentDTO(inst schedule.Installment) InstallmentDTO {
	return InstallmentDTO{
		ID:         string(inst.ID),
		Number:     inst.Number,
		DueDate:    inst.DueDate.Format("2006-01-02"),
		AmountDue:  inst.AmountDue.String(),
		AmountPaid: inst.AmountPaid.String(),
		Balance:    inst.Balance().String(),
		Status:     string(inst.Status),
	}
}

func toScheduleDTO(key schedule.Key, sched schedule.Schedule) ScheduleDTO {
	dtos := make([]InstallmentDTO, len(sched))
	for i, inst := range sched {
		dtos[i] = toInstallmentDTO(inst)
	}
	return ScheduleDTO{
		RecordID:         string(key.RecordID),
		Subschedule:      key.Subschedule,
		Installments:     dtos,
		TotalOutstanding: sched.TotalOutstanding().String(),
	}
}

// =============================================================================
// ALLOCATION
// =============================================================================

// AllocationLineDTO is one installment's share of an allocation plan.
type AllocationLineDTO struct {
	InstallmentID   string `json:"installment_id"`
	Number          int    `json:"installment_number"`
	AmountApplied   string `json:"amount_applied"`
	PreviousBalance string `json:"previous_balance"`
	NewBalance      string `json:"new_balance"`
	NewStatus       string `json:"new_status"`
}

// AllocationDTO is a full allocation plan.
type AllocationDTO struct {
	Affected           []AllocationLineDTO `json:"affected"`
	RemainingUnapplied string              `json:"remaining_unapplied"`
}

func toAllocationDTO(result schedule.AllocationResult) AllocationDTO {
	lines := make([]AllocationLineDTO, len(result.Affected))
	for i, line := range result.Affected {
		lines[i] = AllocationLineDTO{
			InstallmentID:   string(line.InstallmentID),
			Number:          line.Number,
			AmountApplied:   line.AmountApplied.String(),
			PreviousBalance: line.PreviousBalance.String(),
			NewBalance:      line.NewBalance.String(),
			NewStatus:       string(line.NewStatus),
		}
	}
	return AllocationDTO{
		Affected:           lines,
		RemainingUnapplied: result.RemainingUnapplied.String(),
	}
}

// =============================================================================
// PAYMENTS
// =============================================================================

// RecordPaymentRequest records a payment against a schedule. Role is only
// meaningful on expense records.
type RecordPaymentRequest struct {
	InstallmentID  string `json:"installment_id"`
	Amount         string `json:"amount"`
	MethodCode     string `json:"method_code"`
	Role           string `json:"role,omitempty"`
	Reference      string `json:"reference,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	ActorID        string `json:"actor_id"`
}

// PaymentDTO represents a recorded payment.
type PaymentDTO struct {
	ID            string `json:"id"`
	InstallmentID string `json:"installment_id"`
	Amount        string `json:"amount"`
	MethodCode    string `json:"method_code"`
	Reference     string `json:"reference,omitempty"`
	RecordedBy    string `json:"recorded_by"`
	RecordedAt    string `json:"recorded_at"`
}

// ReceiptDTO is the response to a recorded payment.
type ReceiptDTO struct {
	Payment    PaymentDTO    `json:"payment"`
	Allocation AllocationDTO `json:"allocation"`
}

func toPaymentDTO(p schedule.Payment) PaymentDTO {
	return PaymentDTO{
		ID:            p.ID,
		InstallmentID: string(p.InstallmentID),
		Amount:        p.Amount.String(),
		MethodCode:    p.MethodCode,
		Reference:     p.Reference,
		RecordedBy:    p.RecordedBy,
		RecordedAt:    p.RecordedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// RECORD CREATION
// =============================================================================

// InstallmentPlanEntry is one installment of a new schedule.
type InstallmentPlanEntry struct {
	Number    int    `json:"installment_number"`
	DueDate   string `json:"due_date"` // YYYY-MM-DD
	AmountDue string `json:"amount_due"`
}

// CreateRevenueRecordRequest creates a revenue record with its schedule.
// Exactly one of Trip/Rental must be present, matching Kind.
type CreateRevenueRecordRequest struct {
	ID           string                     `json:"id"`
	Kind         string                     `json:"kind"`
	Trip         *receivable.TripDetails    `json:"trip,omitempty"`
	Rental       *receivable.RentalDetails  `json:"rental,omitempty"`
	Installments []InstallmentPlanEntry     `json:"installments"`
}

// CreateExpenseRecordRequest creates an expense record with one
// reimbursement schedule per role.
type CreateExpenseRecordRequest struct {
	ID          string                            `json:"id"`
	Description string                            `json:"description"`
	TotalAmount string                            `json:"total_amount"`
	IncurredAt  string                            `json:"incurred_at"` // YYYY-MM-DD
	Schedules   map[string][]InstallmentPlanEntry `json:"schedules"`   // role -> plan
}

// RevenueRecordDTO represents a stored revenue record.
type RevenueRecordDTO struct {
	ID        string                    `json:"id"`
	Kind      string                    `json:"kind"`
	Trip      *receivable.TripDetails   `json:"trip,omitempty"`
	Rental    *receivable.RentalDetails `json:"rental,omitempty"`
	CreatedAt string                    `json:"created_at"`
}

func toRevenueRecordDTO(r receivable.Record) RevenueRecordDTO {
	return RevenueRecordDTO{
		ID:        string(r.ID),
		Kind:      string(r.Kind),
		Trip:      r.Trip,
		Rental:    r.Rental,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
}

// ExpenseRecordDTO represents a stored expense record.
type ExpenseRecordDTO struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	TotalAmount string `json:"total_amount"`
	IncurredAt  string `json:"incurred_at"`
	CreatedAt   string `json:"created_at"`
}

func toExpenseRecordDTO(r payable.Record) ExpenseRecordDTO {
	return ExpenseRecordDTO{
		ID:          string(r.ID),
		Description: r.Description,
		TotalAmount: r.TotalAmount.String(),
		IncurredAt:  r.IncurredAt.Format("2006-01-02"),
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditEntryDTO represents one audit log entry.
type AuditEntryDTO struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	ActorID   string         `json:"actor_id"`
	Action    string         `json:"action"`
	RecordID  string         `json:"record_id"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func toAuditEntryDTO(e schedule.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:        e.ID,
		Timestamp: e.Timestamp.Format(time.RFC3339),
		ActorID:   e.ActorID,
		Action:    string(e.Action),
		RecordID:  string(e.RecordID),
		Payload:   e.Payload,
	}
}

// =============================================================================
// ADMIN
// =============================================================================

// SweepResponse reports an overdue sweep's effect.
type SweepResponse struct {
	Marked int `json:"marked"`
}

// CloseInstallmentRequest is the body for cancel/write-off endpoints.
type CloseInstallmentRequest struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason,omitempty"`
}
