package analytics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/invio-erp/invio/internal/platform/httpx"
	"github.com/invio-erp/invio/internal/shared"
)

// Handler manages analytics endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers analytics routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/materials", h.materials)
	r.Get("/materials/paginated", h.materialsPaginated)
	r.Get("/suppliers", h.suppliers)
	r.Get("/suppliers/paginated", h.suppliersPaginated)
	r.Get("/export", h.export)
}

// filtersFromQuery decodes the shared filter parameters; normalization
// happens in the service.
func filtersFromQuery(r *http.Request) Filters {
	q := r.URL.Query()
	materialID, _ := strconv.ParseInt(q.Get("materialId"), 10, 64)
	providerID, _ := strconv.ParseInt(q.Get("providerId"), 10, 64)
	from, _ := time.Parse("2006-01-02", q.Get("from"))
	to, _ := time.Parse("2006-01-02", q.Get("to"))
	return Filters{
		MaterialID: materialID,
		Category:   q.Get("category"),
		WorkOrder:  q.Get("workOrder"),
		ProviderID: providerID,
		Search:     q.Get("search"),
		From:       from,
		To:         to,
		Sort:       SortKey(q.Get("sort")),
	}
}

func pageFromQuery(r *http.Request) (int, int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	return page, pageSize
}

func (h *Handler) materials(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.RequireTenant(w, r)
	if !ok {
		return
	}
	breakdowns, err := h.service.Materials(r.Context(), tenantID, filtersFromQuery(r))
	if err != nil {
		h.logger.Error("material analytics", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, breakdowns)
}

func (h *Handler) materialsPaginated(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.RequireTenant(w, r)
	if !ok {
		return
	}
	page, pageSize := pageFromQuery(r)
	result, err := h.service.MaterialsPaginated(r.Context(), tenantID, filtersFromQuery(r), page, pageSize)
	if err != nil {
		h.logger.Error("paginated material analytics", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) suppliers(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.RequireTenant(w, r)
	if !ok {
		return
	}
	breakdowns, err := h.service.Suppliers(r.Context(), tenantID, filtersFromQuery(r))
	if err != nil {
		h.logger.Error("supplier analytics", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, breakdowns)
}

func (h *Handler) suppliersPaginated(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.RequireTenant(w, r)
	if !ok {
		return
	}
	page, pageSize := pageFromQuery(r)
	result, err := h.service.SuppliersPaginated(r.Context(), tenantID, filtersFromQuery(r), page, pageSize)
	if err != nil {
		h.logger.Error("paginated supplier analytics", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.RequireTenant(w, r)
	if !ok {
		return
	}
	rows, err := h.service.Export(r.Context(), tenantID, filtersFromQuery(r))
	if err != nil {
		h.logger.Error("analytics export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}
