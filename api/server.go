/*
server.go - HTTP server setup and routing

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.

MIDDLEWARE:
  - RequestID: Tags each request for log correlation
  - Logger: Request logging
  - Recoverer: Panic recovery
  - CORS: Browser client support, origins from configuration

SEE ALSO:
  - handlers.go: The handler implementations
  - cmd/server/main.go: Server lifecycle
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the application router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/revenue-records", func(r chi.Router) {
			r.Post("/", h.CreateRevenueRecord)
			r.Get("/{id}", h.GetRevenueRecord)
			r.Get("/{id}/schedule", h.GetRevenueSchedule)
			r.Get("/{id}/payments", h.ListRevenuePayments)
			r.Post("/{id}/payments", h.RecordRevenuePayment)
			r.Post("/{id}/payments/preview", h.PreviewRevenuePayment)
		})

		r.Route("/expense-records", func(r chi.Router) {
			r.Post("/", h.CreateExpenseRecord)
			r.Get("/{id}", h.GetExpenseRecord)
			r.Get("/{id}/schedule", h.GetExpenseSchedule)
			r.Post("/{id}/reimbursements", h.RecordReimbursement)
			r.Post("/{id}/reimbursements/preview", h.PreviewReimbursement)
		})

		r.Get("/payment-methods", h.ListPaymentMethods)
		r.Get("/audit-logs", h.ListAuditLogs)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/installments/{id}/cancel", h.CancelInstallment)
			r.Post("/installments/{id}/write-off", h.WriteOffInstallment)
			r.Post("/overdue/sweep", h.TriggerOverdueSweep)
		})
	})

	return r
}
