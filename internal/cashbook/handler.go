package cashbook

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/siteledger/internal/platform/httpx"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

// IdempotencyHeader carries the client's replay key when the body does not.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes the cashbook over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers expense, payment and labor payment endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/expenses", func(r chi.Router) {
		r.Get("/", h.ListExpenses)
		r.Post("/", h.RecordExpense)
		r.Delete("/{id}", h.DeleteExpense)
	})
	r.Route("/payments", func(r chi.Router) {
		r.Get("/", h.ListPayments)
		r.Post("/", h.RecordPayment)
		r.Delete("/{id}", h.DeletePayment)
	})
	r.Route("/labor-payments", func(r chi.Router) {
		r.Get("/", h.ListLaborPayments)
		r.Post("/", h.RecordLaborPayment)
	})
}

func (h *Handler) RecordExpense(w http.ResponseWriter, r *http.Request) {
	var input ExpenseInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if input.IdempotencyKey == "" {
		input.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	}
	posted, err := h.service.RecordExpense(r.Context(), input)
	if err != nil {
		h.fail(w, "record expense", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, posted)
}

func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	posted, err := h.service.DeleteExpense(r.Context(), id)
	if err != nil {
		h.fail(w, "delete expense", err)
		return
	}
	httpx.JSON(w, http.StatusOK, posted)
}

func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	filter := ExpenseFilter{Type: ExpenseType(r.URL.Query().Get("type"))}
	var err error
	if filter.ProjectID, err = optionalID(r, "project_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.VendorID, err = optionalID(r, "vendor_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListExpenses(r.Context(), filter)
	if err != nil {
		h.fail(w, "list expenses", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"expenses": nonNil(list)})
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var input PaymentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if input.IdempotencyKey == "" {
		input.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	}
	posted, err := h.service.RecordPayment(r.Context(), input)
	if err != nil {
		h.fail(w, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, posted)
}

func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	posted, err := h.service.DeletePayment(r.Context(), id)
	if err != nil {
		h.fail(w, "delete payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, posted)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	projectID, err := optionalID(r, "project_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListPayments(r.Context(), projectID)
	if err != nil {
		h.fail(w, "list payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": nonNil(list)})
}

func (h *Handler) RecordLaborPayment(w http.ResponseWriter, r *http.Request) {
	var input LaborPaymentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.RecordLaborPayment(r.Context(), input)
	if err != nil {
		h.fail(w, "record labor payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) ListLaborPayments(w http.ResponseWriter, r *http.Request) {
	laborID, err := optionalID(r, "labor_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListLaborPayments(r.Context(), laborID)
	if err != nil {
		h.fail(w, "list labor payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"labor_payments": nonNil(list)})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch shared.ErrorCode(err) {
	case shared.CodePersistence, shared.CodeInternal:
		h.logger.Error("cashbook request failed", slog.String("op", op), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func optionalID(r *http.Request, name string) (int64, error) {
	v, err := httpx.IntQuery(r, name, 0)
	return int64(v), err
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
