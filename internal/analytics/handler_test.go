package analytics

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestHandlerRejectsMissingTenant(t *testing.T) {
	h := NewHandler(slog.Default(), newService(&fakeRepo{}))
	r := chi.NewRouter()
	r.Route("/analytics", h.MountRoutes)

	for _, path := range []string{
		"/analytics/materials",
		"/analytics/materials/paginated",
		"/analytics/suppliers",
		"/analytics/suppliers/paginated",
		"/analytics/export",
	} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusBadRequest, rr.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/analytics/materials", nil)
	req.Header.Set("X-Tenant-ID", "1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}
