package masterdata

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/siteledger/internal/ledger"
	"github.com/odyssey-erp/siteledger/internal/platform/httpx"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

// Handler exposes master data over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type vendorCreated struct {
	Vendor Vendor       `json:"vendor"`
	Seed   ledger.Entry `json:"ledger_entry"`
}

type projectCreated struct {
	Project Project      `json:"project"`
	Seed    ledger.Entry `json:"ledger_entry"`
}

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.ListClients(r.Context())
	if err != nil {
		h.fail(w, "list clients", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"clients": orEmpty(clients)})
}

func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	client, err := h.service.GetClient(r.Context(), id)
	if err != nil {
		h.fail(w, "get client", err)
		return
	}
	httpx.JSON(w, http.StatusOK, client)
}

func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var input ClientInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	client, err := h.service.CreateClient(r.Context(), input)
	if err != nil {
		h.fail(w, "create client", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, client)
}

func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, "delete client", h.service.DeleteClient)
}

func (h *Handler) ListVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.service.ListVendors(r.Context())
	if err != nil {
		h.fail(w, "list vendors", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vendors": orEmpty(vendors)})
}

func (h *Handler) GetVendor(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	vendor, err := h.service.GetVendor(r.Context(), id)
	if err != nil {
		h.fail(w, "get vendor", err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendor)
}

func (h *Handler) CreateVendor(w http.ResponseWriter, r *http.Request) {
	var input VendorInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	vendor, seed, err := h.service.CreateVendor(r.Context(), input)
	if err != nil {
		h.fail(w, "create vendor", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, vendorCreated{Vendor: vendor, Seed: seed})
}

func (h *Handler) DeleteVendor(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, "delete vendor", h.service.DeleteVendor)
}

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	var clientID int64
	if r.URL.Query().Get("client_id") != "" {
		v, err := httpx.IntQuery(r, "client_id", 0)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		clientID = int64(v)
	}
	projects, err := h.service.ListProjects(r.Context(), clientID)
	if err != nil {
		h.fail(w, "list projects", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"projects": orEmpty(projects)})
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	project, err := h.service.GetProject(r.Context(), id)
	if err != nil {
		h.fail(w, "get project", err)
		return
	}
	httpx.JSON(w, http.StatusOK, project)
}

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var input ProjectInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	project, seed, err := h.service.CreateProject(r.Context(), input)
	if err != nil {
		h.fail(w, "create project", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, projectCreated{Project: project, Seed: seed})
}

func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, "delete project", h.service.DeleteProject)
}

func (h *Handler) LinkVendor(w http.ResponseWriter, r *http.Request) {
	projectID, vendorID, err := linkParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.LinkVendor(r.Context(), projectID, vendorID); err != nil {
		h.fail(w, "link vendor", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UnlinkVendor(w http.ResponseWriter, r *http.Request) {
	projectID, vendorID, err := linkParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.UnlinkVendor(r.Context(), projectID, vendorID); err != nil {
		h.fail(w, "unlink vendor", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListLabor(w http.ResponseWriter, r *http.Request) {
	labor, err := h.service.ListLabor(r.Context())
	if err != nil {
		h.fail(w, "list labor", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"labor": orEmpty(labor)})
}

func (h *Handler) CreateLabor(w http.ResponseWriter, r *http.Request) {
	var input LaborInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	labor, err := h.service.CreateLabor(r.Context(), input)
	if err != nil {
		h.fail(w, "create labor", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, labor)
}

func (h *Handler) DeleteLabor(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, "delete labor", h.service.DeleteLabor)
}

func (h *Handler) deleteWith(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, int64) (DeleteReport, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := fn(r.Context(), id)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch shared.ErrorCode(err) {
	case shared.CodePersistence, shared.CodeInternal:
		h.logger.Error("masterdata request failed", slog.String("op", op), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func linkParams(r *http.Request) (int64, int64, error) {
	projectID, err := httpx.IDParam(r, "id")
	if err != nil {
		return 0, 0, err
	}
	vendorID, err := httpx.IDParam(r, "vendorID")
	if err != nil {
		return 0, 0, err
	}
	return projectID, vendorID, nil
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
