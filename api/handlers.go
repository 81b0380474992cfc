/*
handlers.go - HTTP API handlers for the finance back-office engine

PURPOSE:
  Exposes the schedule engine via REST. Handles HTTP request/response,
  JSON serialization, and delegates to the domain services.

ENDPOINTS:
  Revenue records:
    POST /api/revenue-records                    Create record + schedule
    GET  /api/revenue-records/{id}/schedule      List installments
    GET  /api/revenue-records/{id}/payments      Payment history
    POST /api/revenue-records/{id}/payments      Record a payment
    POST /api/revenue-records/{id}/payments/preview  Pure cascade preview

  Expense records (reimbursements, one schedule per role):
    POST /api/expense-records                    Create record + schedules
    GET  /api/expense-records/{id}/schedule?role=driver
    POST /api/expense-records/{id}/reimbursements
    POST /api/expense-records/{id}/reimbursements/preview

  Reference data:
    GET  /api/payment-methods

  Audit:
    GET  /api/audit-logs                         Filterable audit trail

  Admin:
    POST /api/admin/installments/{id}/cancel
    POST /api/admin/installments/{id}/write-off
    POST /api/admin/overdue/sweep                Manual overdue marking

ERROR HANDLING:
  - 400: validation errors (engine preconditions, bad JSON, bad amounts)
  - 404: unknown record/schedule/installment
  - 409: idempotency key replay
  - 422: overpayment rejected by recording policy
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: The cron-driven overdue sweep
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fleetops/finance-engine/methods"
	"github.com/fleetops/finance-engine/payable"
	"github.com/fleetops/finance-engine/receivable"
	"github.com/fleetops/finance-engine/schedule"
	"github.com/fleetops/finance-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	Receivables *receivable.Service
	Payables    *payable.Service
	Methods     *methods.CachedCatalog
	Log         *logrus.Logger
}

// NewHandler wires a handler from the store and a catalog cache.
func NewHandler(store *sqlite.Store, cache methods.Cache, log *logrus.Logger) *Handler {
	catalog := methods.NewCatalog()
	return &Handler{
		Store:       store,
		Receivables: receivable.NewService(store, store, catalog, log),
		Payables:    payable.NewService(store, store, catalog, log),
		Methods:     methods.NewCachedCatalog(cache, time.Hour),
		Log:         log,
	}
}

// =============================================================================
// REVENUE RECORD HANDLERS
// =============================================================================

// CreateRevenueRecord creates a revenue record and its schedule.
func (h *Handler) CreateRevenueRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateRevenueRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	record := receivable.Record{
		ID:        schedule.RecordID(req.ID),
		Kind:      receivable.Kind(req.Kind),
		Trip:      req.Trip,
		Rental:    req.Rental,
		CreatedAt: time.Now(),
	}
	if err := record.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid revenue record", err)
		return
	}

	sched, err := parseInstallmentPlan(req.Installments)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid installment plan", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.SaveRevenueRecord(ctx, record); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save record", err)
		return
	}
	key := schedule.Key{RecordID: record.ID}
	if err := h.Store.CreateSchedule(ctx, key, sched); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create schedule", err)
		return
	}

	writeJSON(w, http.StatusCreated, toScheduleDTO(key, sched))
}

// GetRevenueRecord returns one revenue record.
func (h *Handler) GetRevenueRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.Store.GetRevenueRecord(r.Context(), schedule.RecordID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRevenueRecordDTO(record))
}

// GetRevenueSchedule returns the schedule for a revenue record.
func (h *Handler) GetRevenueSchedule(w http.ResponseWriter, r *http.Request) {
	key := schedule.Key{RecordID: schedule.RecordID(chi.URLParam(r, "id"))}

	sched, err := h.Store.LoadSchedule(r.Context(), key)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(key, sched))
}

// ListRevenuePayments returns the payment history of a revenue record.
func (h *Handler) ListRevenuePayments(w http.ResponseWriter, r *http.Request) {
	key := schedule.Key{RecordID: schedule.RecordID(chi.URLParam(r, "id"))}

	payments, err := h.Store.ListPayments(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordRevenuePayment records a payment against a revenue schedule.
func (h *Handler) RecordRevenuePayment(w http.ResponseWriter, r *http.Request) {
	recordID := schedule.RecordID(chi.URLParam(r, "id"))

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	receipt, err := h.Receivables.RecordPayment(r.Context(), receivable.PaymentInput{
		RecordID:       recordID,
		InstallmentID:  schedule.InstallmentID(req.InstallmentID),
		Amount:         amount,
		MethodCode:     req.MethodCode,
		Reference:      req.Reference,
		IdempotencyKey: req.IdempotencyKey,
		ActorID:        req.ActorID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ReceiptDTO{
		Payment:    toPaymentDTO(receipt.Payment),
		Allocation: toAllocationDTO(receipt.Allocation),
	})
}

// PreviewRevenuePayment computes the cascade without persisting.
func (h *Handler) PreviewRevenuePayment(w http.ResponseWriter, r *http.Request) {
	recordID := schedule.RecordID(chi.URLParam(r, "id"))

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	result, err := h.Receivables.PreviewAllocation(r.Context(), recordID,
		schedule.InstallmentID(req.InstallmentID), amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTO(result))
}

// =============================================================================
// EXPENSE RECORD HANDLERS
// =============================================================================

// CreateExpenseRecord creates an expense record and its per-role schedules.
func (h *Handler) CreateExpenseRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	total, err := parseAmount(req.TotalAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid total amount", err)
		return
	}
	incurredAt, err := time.Parse("2006-01-02", req.IncurredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid incurred_at (use YYYY-MM-DD)", err)
		return
	}

	record := payable.Record{
		ID:          schedule.RecordID(req.ID),
		Description: req.Description,
		TotalAmount: total,
		IncurredAt:  incurredAt,
		CreatedAt:   time.Now(),
	}
	if err := record.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid expense record", err)
		return
	}

	type roleSchedule struct {
		key   schedule.Key
		sched schedule.Schedule
	}
	var schedules []roleSchedule
	for roleName, plan := range req.Schedules {
		role, err := payable.ParseRole(roleName)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid role", err)
			return
		}
		sched, err := parseInstallmentPlan(plan)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid plan for role %s", role), err)
			return
		}
		schedules = append(schedules, roleSchedule{key: record.KeyFor(role), sched: sched})
	}
	if len(schedules) == 0 {
		writeError(w, http.StatusBadRequest, "At least one role schedule is required", nil)
		return
	}

	ctx := r.Context()
	if err := h.Store.SaveExpenseRecord(ctx, record); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save record", err)
		return
	}
	for _, rs := range schedules {
		if err := h.Store.CreateSchedule(ctx, rs.key, rs.sched); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to create schedule", err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": req.ID, "schedules": len(schedules)})
}

// GetExpenseRecord returns one expense record.
func (h *Handler) GetExpenseRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.Store.GetExpenseRecord(r.Context(), schedule.RecordID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseRecordDTO(record))
}

// GetExpenseSchedule returns one role's reimbursement schedule.
func (h *Handler) GetExpenseSchedule(w http.ResponseWriter, r *http.Request) {
	role, err := payable.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid role", err)
		return
	}
	key := schedule.Key{
		RecordID:    schedule.RecordID(chi.URLParam(r, "id")),
		Subschedule: string(role),
	}

	sched, err := h.Store.LoadSchedule(r.Context(), key)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(key, sched))
}

// RecordReimbursement records a payment against a reimbursement schedule.
func (h *Handler) RecordReimbursement(w http.ResponseWriter, r *http.Request) {
	recordID := schedule.RecordID(chi.URLParam(r, "id"))

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	role, err := payable.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid role", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	receipt, err := h.Payables.RecordPayment(r.Context(), payable.PaymentInput{
		RecordID:       recordID,
		Role:           role,
		InstallmentID:  schedule.InstallmentID(req.InstallmentID),
		Amount:         amount,
		MethodCode:     req.MethodCode,
		Reference:      req.Reference,
		IdempotencyKey: req.IdempotencyKey,
		ActorID:        req.ActorID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ReceiptDTO{
		Payment:    toPaymentDTO(receipt.Payment),
		Allocation: toAllocationDTO(receipt.Allocation),
	})
}

// PreviewReimbursement computes the cascade for one role without persisting.
func (h *Handler) PreviewReimbursement(w http.ResponseWriter, r *http.Request) {
	recordID := schedule.RecordID(chi.URLParam(r, "id"))

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	role, err := payable.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid role", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	result, err := h.Payables.PreviewAllocation(r.Context(), recordID, role,
		schedule.InstallmentID(req.InstallmentID), amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTO(result))
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// ListPaymentMethods returns the payment method catalog.
func (h *Handler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Methods.All(r.Context()))
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// ListAuditLogs returns audit entries, filterable by record_id, actor_id,
// action, from, to (RFC3339) and limit.
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	var filter schedule.AuditFilter

	q := r.URL.Query()
	if v := q.Get("record_id"); v != "" {
		id := schedule.RecordID(v)
		filter.RecordID = &id
	}
	if v := q.Get("actor_id"); v != "" {
		filter.ActorID = &v
	}
	if v := q.Get("action"); v != "" {
		filter.Actions = []schedule.AuditAction{schedule.AuditAction(v)}
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from timestamp", err)
			return
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to timestamp", err)
			return
		}
		filter.To = &t
	}
	filter.Limit = 100

	entries, err := h.Store.QueryAudit(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CancelInstallment administratively cancels a non-terminal installment.
func (h *Handler) CancelInstallment(w http.ResponseWriter, r *http.Request) {
	h.closeInstallment(w, r, schedule.StatusCancelled, schedule.AuditInstallmentCancelled)
}

// WriteOffInstallment administratively writes off a non-terminal installment.
func (h *Handler) WriteOffInstallment(w http.ResponseWriter, r *http.Request) {
	h.closeInstallment(w, r, schedule.StatusWrittenOff, schedule.AuditInstallmentWrittenOff)
}

func (h *Handler) closeInstallment(w http.ResponseWriter, r *http.Request, to schedule.Status, action schedule.AuditAction) {
	id := schedule.InstallmentID(chi.URLParam(r, "id"))

	var req CloseInstallmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	closed, err := h.Store.CloseInstallment(ctx, id, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entry := schedule.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		ActorID:   req.ActorID,
		Action:    action,
		RecordID:  closed.RecordID,
		Payload: map[string]any{
			"installment_id":  string(id),
			"previous_status": string(closed.Previous),
			"reason":          req.Reason,
		},
	}
	if err := h.Store.AppendAudit(ctx, entry); err != nil {
		h.Log.WithError(err).Warn("failed to append audit entry for administrative closure")
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"installment_id": string(id),
		"status":         string(to),
	})
}

// TriggerOverdueSweep runs the overdue marker immediately.
func (h *Handler) TriggerOverdueSweep(w http.ResponseWriter, r *http.Request) {
	marked, err := sweepOverdue(r.Context(), h.Store, h.Log, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Overdue sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Marked: marked})
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	return decimal.NewFromString(s)
}

func parseInstallmentPlan(plan []InstallmentPlanEntry) (schedule.Schedule, error) {
	if len(plan) == 0 {
		return nil, fmt.Errorf("at least one installment is required")
	}

	sched := make(schedule.Schedule, 0, len(plan))
	for i, entry := range plan {
		due, err := parseAmount(entry.AmountDue)
		if err != nil {
			return nil, fmt.Errorf("installment %d: %w", entry.Number, err)
		}
		if due.IsNegative() {
			return nil, fmt.Errorf("installment %d: amount_due must not be negative", entry.Number)
		}
		dueDate, err := time.Parse("2006-01-02", entry.DueDate)
		if err != nil {
			return nil, fmt.Errorf("installment %d: bad due_date (use YYYY-MM-DD)", entry.Number)
		}
		if i > 0 && entry.Number <= plan[i-1].Number {
			return nil, fmt.Errorf("installment numbers must be strictly increasing")
		}
		sched = append(sched, schedule.Installment{
			ID:         schedule.InstallmentID(uuid.NewString()),
			Number:     entry.Number,
			DueDate:    dueDate,
			AmountDue:  due,
			AmountPaid: decimal.Zero,
			Status:     schedule.StatusPending,
		})
	}
	return sched, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, "Payment already recorded", err)
	case errors.Is(err, schedule.ErrOverpayment):
		var overErr *schedule.OverpaymentError
		resp := ErrorResponse{Error: "Payment exceeds outstanding balance", Details: err.Error()}
		if errors.As(err, &overErr) {
			resp.Code = "overpayment"
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case schedule.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, schedule.ErrValidation),
		errors.Is(err, payable.ErrInvalidRole),
		errors.Is(err, methods.ErrUnknownMethod),
		errors.Is(err, methods.ErrMethodNotAllowed):
		var verr *schedule.ValidationError
		resp := ErrorResponse{Error: "Validation failed", Details: err.Error()}
		if errors.As(err, &verr) {
			resp.Code = string(verr.Code)
		}
		writeJSON(w, http.StatusBadRequest, resp)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
