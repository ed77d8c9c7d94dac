package identity

import (
	"net/http"
	"strings"

	"github.com/nayeem-hossain/coursebook/libs/httpx"
)

// Headers set by the gateway after it has authenticated the request.
const (
	HeaderTenantID      = "X-Tenant-Id"
	HeaderUserID        = "X-User-Id"
	HeaderRole          = "X-User-Role"
	HeaderApproved      = "X-User-Approved"
	HeaderCorrelationID = "X-Correlation-Id"
)

// Middleware parses the gateway identity headers into the request context.
// Requests without a tenant and user are rejected; the gateway always sets
// both for authenticated traffic.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Context{
			TenantID:      strings.TrimSpace(r.Header.Get(HeaderTenantID)),
			UserID:        strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Role:          Role(strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderRole)))),
			Approved:      strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderApproved)), "true"),
			CorrelationID: strings.TrimSpace(r.Header.Get(HeaderCorrelationID)),
		}
		if id.CorrelationID == "" {
			id.CorrelationID = httpx.RequestIDFromContext(r.Context())
		}
		if id.TenantID == "" || id.UserID == "" {
			http.Error(w, "missing identity headers", http.StatusUnauthorized)
			return
		}
		switch id.Role {
		case RoleStudent, RoleInstructor, RoleAdmin:
		default:
			http.Error(w, "unknown role", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
	})
}
