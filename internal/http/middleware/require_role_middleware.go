package middleware

import (
	"net/http"

	"github.com/vkozii/authgate/internal/domain"
	"github.com/vkozii/authgate/internal/http/response"
	"github.com/vkozii/authgate/internal/service"
)

// RequireRole gates a route on the authenticated account's role. It trusts
// the role baked into the credential's claims; a promotion or demotion takes
// effect when the subject next logs in.
func RequireRole(authz service.AuthorizationPolicy, required ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
				return
			}
			role, err := domain.ParseRole(claims.Role)
			if err != nil {
				response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
				return
			}
			if err := authz.Authorize(role, required...); err != nil {
				response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
