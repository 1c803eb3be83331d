package shared

import (
	"net/http"
	"strconv"

	"github.com/invio-erp/invio/internal/platform/httpx"
)

// TenantFromRequest reads the tenant identifier from the X-Tenant-ID header.
func TenantFromRequest(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.Header.Get("X-Tenant-ID"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// RequireTenant reads the tenant identifier and writes a 400 problem when it
// is missing, so every endpoint rejects unscoped requests the same way.
func RequireTenant(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id := TenantFromRequest(r)
	if id == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "missing tenant")
		return 0, false
	}
	return id, true
}
