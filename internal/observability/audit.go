package observability

import (
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Audit event taxonomy. Handlers emit these so the log stream carries a
// stable, grep-able record of every security-relevant mutation.
const (
	AuditRegister           = "auth.register"
	AuditActivate           = "auth.activate"
	AuditLogin              = "auth.login"
	AuditTwoFactorVerify    = "auth.two_factor.verify"
	AuditTwoFactorEnable    = "auth.two_factor.enable"
	AuditTwoFactorDisable   = "auth.two_factor.disable"
	AuditPasswordReset      = "auth.password.reset"
	AuditPasswordChange     = "auth.password.change"
	AuditEmailChange        = "auth.email.change"
	AuditDeactivate         = "auth.deactivate"
	AuditFederatedLogin     = "auth.federated.login"
	AuditAdminRoleChange    = "admin.role.change"
	AuditAdminToggleActive  = "admin.account.toggle_active"
	AuditAdminDelete        = "admin.account.delete"
	AuditAdminEmailOverride = "admin.account.email_override"
)

// Audit writes one structured audit line bound to the request's trace.
func Audit(r *http.Request, event string, attrs ...any) {
	msg := "audit"
	sc := trace.SpanContextFromContext(r.Context())
	if sc.IsValid() {
		msg = fmt.Sprintf("audit trace_id=%s span_id=%s", sc.TraceID().String(), sc.SpanID().String())
	}
	base := []any{
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", r.Header.Get("X-Request-Id"),
	}
	base = append(base, attrs...)
	slog.InfoContext(r.Context(), msg, base...)
}
