package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vkozii/authgate/internal/domain"
	"github.com/vkozii/authgate/internal/health"
	"github.com/vkozii/authgate/internal/http/handler"
	"github.com/vkozii/authgate/internal/http/middleware"
	"github.com/vkozii/authgate/internal/http/response"
	"github.com/vkozii/authgate/internal/security"
	"github.com/vkozii/authgate/internal/service"
)

type Middleware = func(http.Handler) http.Handler

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	AdminHandler   *handler.AdminHandler
	JWTManager     *security.JWTManager
	Authorization  service.AuthorizationPolicy
	CORSOrigins    []string
	APIRateRPM     int
	AuthRateRPM    int
	ForgotRateRPM  int
	GlobalLimiter  Middleware
	AuthLimiter    Middleware
	ForgotLimiter  Middleware
	Readiness      *health.ProbeRunner
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	if dep.GlobalLimiter != nil {
		r.Use(dep.GlobalLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateRPM, time.Minute).Middleware())
	}

	authLimiter := dep.AuthLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateRPM, time.Minute).Middleware()
	}
	// Forgot-password is the cheapest endpoint to abuse for outbound mail, so
	// it gets its own tighter budget.
	forgotLimiter := dep.ForgotLimiter
	if forgotLimiter == nil {
		forgotLimiter = middleware.NewRateLimiter(dep.ForgotRateRPM, time.Minute).Middleware()
	}
	authenticated := middleware.Authenticate(dep.JWTManager)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/register", dep.AuthHandler.Register)
			// Activation and email-change confirmation accept GET so the
			// emailed link works without a frontend.
			r.With(authLimiter).Get("/activate", dep.AuthHandler.Activate)
			r.With(authLimiter).Post("/activate", dep.AuthHandler.Activate)
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			r.With(authLimiter).Post("/2fa/verify", dep.AuthHandler.VerifyTwoFactor)
			r.With(authLimiter).Post("/federated", dep.AuthHandler.FederatedLogin)
			r.With(forgotLimiter).Post("/forgot-password", dep.AuthHandler.RequestPasswordReset)
			r.With(authLimiter).Post("/reset-password", dep.AuthHandler.ResetPassword)
			r.With(authLimiter).Get("/change-email/confirm", dep.AuthHandler.ConfirmEmailChange)
			r.With(authLimiter).Post("/change-email/confirm", dep.AuthHandler.ConfirmEmailChange)
		})

		r.Route("/me", func(r chi.Router) {
			r.Use(authenticated)
			r.Get("/", dep.AuthHandler.Me)
			r.With(authLimiter).Post("/change-password", dep.AuthHandler.ChangePassword)
			r.With(authLimiter).Post("/2fa/enable", dep.AuthHandler.EnableTwoFactor)
			r.With(authLimiter).Post("/2fa/disable", dep.AuthHandler.DisableTwoFactor)
			r.With(authLimiter).Post("/change-email", dep.AuthHandler.RequestEmailChange)
			r.With(authLimiter).Post("/deactivate", dep.AuthHandler.Deactivate)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticated)
			r.Use(middleware.RequireRole(dep.Authorization, domain.RoleAdmin))
			r.Get("/accounts", dep.AdminHandler.ListAccounts)
			r.Delete("/accounts/{id}", dep.AdminHandler.DeleteAccount)
			r.Post("/accounts/{id}/toggle-active", dep.AdminHandler.ToggleActive)
			r.Patch("/accounts/{id}/role", dep.AdminHandler.ChangeRole)
			r.Post("/accounts/{id}/password-reset", dep.AdminHandler.RequestPasswordReset)
			r.Patch("/accounts/{id}/email", dep.AdminHandler.ChangeEmail)
			r.Get("/login-attempts", dep.AdminHandler.ListLoginAttempts)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
