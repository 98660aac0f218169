package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vkozii/authgate/internal/http/response"
	"github.com/vkozii/authgate/internal/observability"
	"github.com/vkozii/authgate/internal/security"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// Authenticate requires a bearer access credential and stashes its claims in
// the request context.
func Authenticate(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := ""
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				raw = strings.TrimSpace(auth[7:])
			}
			if raw == "" {
				observability.RecordCredentialValidation(r.Context(), "missing")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			claims, err := jwtMgr.Parse(raw)
			if err != nil {
				outcome := "invalid"
				if err == security.ErrTokenExpired {
					outcome = "expired"
				}
				observability.RecordCredentialValidation(r.Context(), outcome)
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
				return
			}
			observability.RecordCredentialValidation(r.Context(), "ok")
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}
