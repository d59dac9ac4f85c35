/*
handlers.go - HTTP API handlers for the budget execution engine

PURPOSE:
  Exposes the budget service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every rule to budget.Service.

ENDPOINTS:
  Expenses:
    GET    /api/expenses                    List expenses with status
    POST   /api/expenses                    Create expense
    GET    /api/expenses/{id}               Get expense with status
    PUT    /api/expenses/{id}               Replace expense
    DELETE /api/expenses/{id}               Delete expense (no commitments)
    GET    /api/expenses/{id}/commitments   Commitments of an expense

  Commitments:
    GET    /api/commitments                 List commitments
    POST   /api/commitments                 Create commitment
    GET    /api/commitments/{id}            Get commitment
    PUT    /api/commitments/{id}            Replace commitment
    DELETE /api/commitments/{id}            Delete commitment (no payments)
    GET    /api/commitments/{id}/payments   Payments of a commitment

  Payments:
    GET    /api/payments                    List payments
    POST   /api/payments                    Create payment
    GET    /api/payments/{id}               Get payment
    PUT    /api/payments/{id}               Replace or move payment
    DELETE /api/payments/{id}               Delete payment

  Other:
    GET    /api/summary                     Dashboard totals
    GET    /api/health                      Liveness

ERROR HANDLING:
  Errors are returned as JSON {"error","code","details"}:
  - 400: Malformed body or id
  - 404: Entity not found
  - 409: Duplicate business key, entity has children
  - 422: Ceiling exceeded, floor violated, invalid field
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/budget-engine/budget"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *budget.Service
	Store   budget.Resetter
	Logger  *slog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over svc. store is used by the scenario
// endpoints to wipe data; it may be nil when those are not routed.
func NewHandler(svc *budget.Service, store budget.Resetter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Service: svc, Store: store, Logger: logger}
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// ListExpenses returns all expenses with their derived status.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.Service.ListExpenses(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to list expenses", err)
		return
	}

	dtos := make([]ExpenseDTO, len(expenses))
	for i, e := range expenses {
		dtos[i] = toExpenseDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetExpense returns a single expense.
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	exp, err := h.Service.GetExpense(r.Context(), budget.ExpenseID(id))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get expense", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(*exp))
}

// CreateExpense creates a new expense.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	exp, err := req.toExpense()
	if err != nil {
		h.writeServiceError(w, r, "Invalid expense", err)
		return
	}

	created, err := h.Service.CreateExpense(r.Context(), exp)
	if err != nil {
		h.writeServiceError(w, r, "Failed to create expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(*created))
}

// UpdateExpense replaces an expense.
func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ExpenseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	exp, err := req.toExpense()
	if err != nil {
		h.writeServiceError(w, r, "Invalid expense", err)
		return
	}

	updated, err := h.Service.UpdateExpense(r.Context(), budget.ExpenseID(id), exp)
	if err != nil {
		h.writeServiceError(w, r, "Failed to update expense", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(*updated))
}

// DeleteExpense deletes an expense without commitments.
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteExpense(r.Context(), budget.ExpenseID(id)); err != nil {
		h.writeServiceError(w, r, "Failed to delete expense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListExpenseCommitments returns the commitments of one expense.
func (h *Handler) ListExpenseCommitments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	cs, err := h.Service.ListCommitmentsByExpense(r.Context(), budget.ExpenseID(id))
	if err != nil {
		h.writeServiceError(w, r, "Failed to list commitments", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentDTOs(cs))
}

// =============================================================================
// COMMITMENT HANDLERS
// =============================================================================

func (h *Handler) ListCommitments(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Service.ListCommitments(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to list commitments", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentDTOs(cs))
}

func (h *Handler) GetCommitment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.Service.GetCommitment(r.Context(), budget.CommitmentID(id))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get commitment", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentDTO(*c))
}

func (h *Handler) CreateCommitment(w http.ResponseWriter, r *http.Request) {
	var req CommitmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := req.toCommitment()
	if err != nil {
		h.writeServiceError(w, r, "Invalid commitment", err)
		return
	}

	created, err := h.Service.CreateCommitment(r.Context(), c)
	if err != nil {
		h.writeServiceError(w, r, "Failed to create commitment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommitmentDTO(*created))
}

func (h *Handler) UpdateCommitment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req CommitmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := req.toCommitment()
	if err != nil {
		h.writeServiceError(w, r, "Invalid commitment", err)
		return
	}

	updated, err := h.Service.UpdateCommitment(r.Context(), budget.CommitmentID(id), c)
	if err != nil {
		h.writeServiceError(w, r, "Failed to update commitment", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentDTO(*updated))
}

func (h *Handler) DeleteCommitment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteCommitment(r.Context(), budget.CommitmentID(id)); err != nil {
		h.writeServiceError(w, r, "Failed to delete commitment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCommitmentPayments returns the payments of one commitment.
func (h *Handler) ListCommitmentPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ps, err := h.Service.ListPaymentsByCommitment(r.Context(), budget.CommitmentID(id))
	if err != nil {
		h.writeServiceError(w, r, "Failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(ps))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Service.ListPayments(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(ps))
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.Service.GetPayment(r.Context(), budget.PaymentID(id))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*p))
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := req.toPayment()
	if err != nil {
		h.writeServiceError(w, r, "Invalid payment", err)
		return
	}

	created, err := h.Service.CreatePayment(r.Context(), p)
	if err != nil {
		h.writeServiceError(w, r, "Failed to create payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(*created))
}

// UpdatePayment replaces a payment, moving it when commitment_id changes.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req PaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := req.toPayment()
	if err != nil {
		h.writeServiceError(w, r, "Invalid payment", err)
		return
	}

	updated, err := h.Service.UpdatePayment(r.Context(), budget.PaymentID(id), p)
	if err != nil {
		h.writeServiceError(w, r, "Failed to update payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*updated))
}

func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeletePayment(r.Context(), budget.PaymentID(id)); err != nil {
		h.writeServiceError(w, r, "Failed to delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SUMMARY / HEALTH
// =============================================================================

// GetSummary returns totals per tier and expense counts per status.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Service.Summary(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to build summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(sum))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

const (
	codeBadRequest         = "bad_request"
	codeNotFound           = "not_found"
	codeDuplicateKey       = "duplicate_key"
	codeStructuralConflict = "structural_conflict"
	codeCeilingExceeded    = "ceiling_exceeded"
	codeFloorViolation     = "floor_violation"
	codeInvalidInput       = "invalid_input"
	codeInternal           = "internal_error"
)

// statusFor maps a service error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, budget.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, budget.ErrDuplicateKey):
		return http.StatusConflict, codeDuplicateKey
	case errors.Is(err, budget.ErrStructuralConflict):
		return http.StatusConflict, codeStructuralConflict
	case errors.Is(err, budget.ErrCeilingExceeded):
		return http.StatusUnprocessableEntity, codeCeilingExceeded
	case errors.Is(err, budget.ErrFloorViolation):
		return http.StatusUnprocessableEntity, codeFloorViolation
	case errors.Is(err, budget.ErrInvalidInput):
		return http.StatusUnprocessableEntity, codeInvalidInput
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.ErrorContext(r.Context(), message, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message, Code: codeBadRequest}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// decodeBody decodes the JSON body into v. Bad amounts surface as 422,
// any other decoding problem as 400.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var invalid *budget.InvalidInputError
		if errors.As(err, &invalid) {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
				Error:   "Invalid request body",
				Code:    codeInvalidInput,
				Details: invalid.Error(),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}
