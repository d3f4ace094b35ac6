package ledger

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/siteledger/internal/platform/httpx"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

// Handler exposes the balance aggregator over JSON.
type Handler struct {
	logger        *slog.Logger
	service       *Service
	activityLimit int
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service, activityLimit int) *Handler {
	if activityLimit <= 0 {
		activityLimit = DefaultRecentActivityLimit
	}
	return &Handler{logger: logger, service: service, activityLimit: activityLimit}
}

// MountRoutes registers ledger read endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/totals", h.Totals)
	r.Get("/activity", h.Activity)
	r.Get("/dashboard", h.Dashboard)
	r.Get("/{entity}", h.Balances)
	r.Get("/{entity}/{id}/balance", h.Balance)
	r.Get("/{entity}/{id}/entries", h.Statement)
	r.Get("/{entity}/{id}/verify", h.Verify)
}

type totalsResponse struct {
	TotalPayable    decimal.Decimal `json:"total_payable"`
	TotalReceivable decimal.Decimal `json:"total_receivable"`
}

func (h *Handler) Totals(w http.ResponseWriter, r *http.Request) {
	payable, err := h.service.TotalPayable(r.Context())
	if err != nil {
		h.fail(w, "total payable", err)
		return
	}
	receivable, err := h.service.TotalReceivable(r.Context())
	if err != nil {
		h.fail(w, "total receivable", err)
		return
	}
	httpx.JSON(w, http.StatusOK, totalsResponse{TotalPayable: payable, TotalReceivable: receivable})
}

func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	limit, err := httpx.IntQuery(r, "limit", h.activityLimit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.RecentActivity(r.Context(), limit)
	if err != nil {
		h.fail(w, "recent activity", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"activity": nonNil(items)})
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.service.Dashboard(r.Context(), h.activityLimit)
	if err != nil {
		h.fail(w, "dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}

func (h *Handler) Balances(w http.ResponseWriter, r *http.Request) {
	entity, err := ParseEntityKind(chi.URLParam(r, "entity"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balances, err := h.service.Balances(r.Context(), entity)
	if err != nil {
		h.fail(w, "balances", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": nonNil(balances)})
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	entity, id, err := entityParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bal, err := h.service.CurrentBalance(r.Context(), entity, id)
	if err != nil {
		h.fail(w, "current balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bal)
}

func (h *Handler) Statement(w http.ResponseWriter, r *http.Request) {
	entity, id, err := entityParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, err := httpx.IntQuery(r, "limit", 100)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.Statement(r.Context(), entity, id, limit)
	if err != nil {
		h.fail(w, "statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": nonNil(entries)})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	entity, id, err := entityParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	violations, err := h.service.Verify(r.Context(), entity, id)
	if err != nil {
		h.fail(w, "verify", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ok": len(violations) == 0, "violations": nonNil(violations)})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.ErrorCode(err) == shared.CodePersistence || shared.ErrorCode(err) == shared.CodeInternal {
		h.logger.Error("ledger request failed", slog.String("op", op), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func entityParams(r *http.Request) (EntityKind, int64, error) {
	entity, err := ParseEntityKind(chi.URLParam(r, "entity"))
	if err != nil {
		return "", 0, err
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		return "", 0, err
	}
	return entity, id, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
