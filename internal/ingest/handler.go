package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/invio-erp/invio/internal/platform/httpx"
	"github.com/invio-erp/invio/internal/shared"
)

// maxUploadBytes caps a single batch upload at 256 MiB. The parser streams,
// but the spool file still has to fit on disk.
const maxUploadBytes = 256 << 20

// Enqueuer hands a spooled batch job to the background worker.
type Enqueuer interface {
	EnqueueBatch(ctx context.Context, jobID uuid.UUID, tenantID int64, sourcePath string) error
}

// Handler manages batch ingestion endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueuer Enqueuer
	spoolDir string
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, enqueuer Enqueuer, spoolDir string) *Handler {
	return &Handler{logger: logger, service: service, enqueuer: enqueuer, spoolDir: spoolDir}
}

// MountRoutes registers ingestion routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/jobs", h.submit)
	r.Get("/jobs/{id}", h.job)
	r.Post("/jobs/{id}/cancel", h.cancel)
}

// submit spools the uploaded batch source to disk, registers the job, and
// enqueues it for the worker. The response is 202 with the queued job.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.RequireTenant(w, r)
	if !ok {
		return
	}

	src, err := h.uploadSource(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	defer src.Close()

	path, err := h.spool(src)
	if err != nil {
		h.logger.Error("spool batch source", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	job, err := h.service.Submit(r.Context(), tenantID, path)
	if err != nil {
		h.logger.Error("submit batch job", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	if err := h.enqueuer.EnqueueBatch(r.Context(), job.ID, tenantID, path); err != nil {
		h.logger.Error("enqueue batch job", slog.String("job", job.ID.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusAccepted, job)
}

// uploadSource accepts either a multipart form with a "file" part or a raw
// request body.
func (h *Handler) uploadSource(r *http.Request) (io.ReadCloser, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, fmt.Errorf("parse multipart form: %w", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("missing file part: %w", err)
		}
		return file, nil
	}
	return r.Body, nil
}

// spool copies the source to a uniquely named file under the spool
// directory so the worker can stream it later.
func (h *Handler) spool(src io.Reader) (string, error) {
	if err := os.MkdirAll(h.spoolDir, 0o750); err != nil {
		return "", fmt.Errorf("create spool dir: %w", err)
	}
	path := filepath.Join(h.spoolDir, uuid.NewString()+".jsonl")
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create spool file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(src, maxUploadBytes)); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("spool upload: %w", err)
	}
	return path, nil
}

func (h *Handler) job(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.RequireTenant(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid job id")
		return
	}

	job, err := h.service.Job(r.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("get batch job", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.RequireTenant(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid job id")
		return
	}

	if err := h.service.Cancel(r.Context(), tenantID, id); err != nil {
		switch {
		case errors.Is(err, ErrJobNotFound):
			httpx.RespondError(w, httpx.ErrNotFound)
		case errors.Is(err, ErrJobFinished):
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
		default:
			h.logger.Error("cancel batch job", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.NoContent(w)
}
