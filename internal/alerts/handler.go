package alerts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/invio-erp/invio/internal/platform/httpx"
	"github.com/invio-erp/invio/internal/shared"
)

// Handler manages price alert endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers alert routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/{id}/ack", h.acknowledge)
	r.Post("/{id}/resolve", h.resolve)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.RequireTenant(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("pageSize"))
	materialID, _ := strconv.ParseInt(q.Get("materialId"), 10, 64)
	providerID, _ := strconv.ParseInt(q.Get("providerId"), 10, 64)

	alerts, pagination, err := h.service.List(r.Context(), tenantID, ListAlertsRequest{
		Status:     Status(q.Get("status")),
		MaterialID: materialID,
		ProviderID: providerID,
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		h.logger.Error("list alerts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      alerts,
		"pagination": pagination,
	})
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	h.updateStatus(w, r, h.service.Acknowledge)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	h.updateStatus(w, r, h.service.Resolve)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid alert id")
		return
	}
	if err := fn(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.RespondError(w, httpx.ErrNotFound)
		case errors.Is(err, ErrInvalidTransition):
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
		default:
			h.logger.Error("update alert status", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.NoContent(w)
}
