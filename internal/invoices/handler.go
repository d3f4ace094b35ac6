package invoices

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/siteledger/internal/ledger"
	"github.com/odyssey-erp/siteledger/internal/platform/httpx"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

// Handler exposes the invoice lifecycle over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers invoice endpoints under /invoices.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Start)
		r.Get("/pending", h.Pending)
		r.Delete("/items/{itemID}", h.DeleteItem)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/items", h.AddItem)
		r.Post("/{id}/advances", h.RecordAdvance)
		r.Post("/{id}/finalize", h.Finalize)
	})
}

type finalized struct {
	Invoice Invoice      `json:"invoice"`
	Entry   ledger.Entry `json:"ledger_entry"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: Status(strings.ToUpper(r.URL.Query().Get("status")))}
	if r.URL.Query().Get("vendor_id") != "" {
		v, err := httpx.IntQuery(r, "vendor_id", 0)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.VendorID = int64(v)
	}
	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": nonNil(list)})
}

func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	limit, err := httpx.IntQuery(r, "limit", DefaultPendingLimit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.PendingInvoices(r.Context(), limit)
	if err != nil {
		h.fail(w, "pending invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": nonNil(list)})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	details, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	details.Items = nonNil(details.Items)
	details.Advances = nonNil(details.Advances)
	httpx.JSON(w, http.StatusOK, details)
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var input StartInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Start(r.Context(), input)
	if err != nil {
		h.fail(w, "start invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input ItemInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.AddItem(r.Context(), id, input)
	if err != nil {
		h.fail(w, "add invoice item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := httpx.IDParam(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	subtotal, err := h.service.DeleteItem(r.Context(), itemID)
	if err != nil {
		h.fail(w, "delete invoice item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"item_id": itemID, "subtotal": subtotal})
}

func (h *Handler) RecordAdvance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input AdvanceInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	adv, err := h.service.RecordAdvance(r.Context(), id, input)
	if err != nil {
		h.fail(w, "record invoice advance", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adv)
}

func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input FinalizeInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, entry, err := h.service.Finalize(r.Context(), id, input)
	if err != nil {
		h.fail(w, "finalize invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, finalized{Invoice: inv, Entry: entry})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch shared.ErrorCode(err) {
	case shared.CodePersistence, shared.CodeInternal:
		h.logger.Error("invoice request failed", slog.String("op", op), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
