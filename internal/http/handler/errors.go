package handler

import (
	"errors"
	"net/http"

	"github.com/vkozii/authgate/internal/http/middleware"
	"github.com/vkozii/authgate/internal/http/response"
	"github.com/vkozii/authgate/internal/repository"
	"github.com/vkozii/authgate/internal/security"
	"github.com/vkozii/authgate/internal/service"
)

type errorMapping struct {
	status int
	code   string
}

// Every service sentinel has a fixed HTTP shape so clients can branch on the
// code field without parsing messages.
var serviceErrorMappings = []struct {
	err     error
	mapping errorMapping
}{
	{service.ErrInvalidCredentials, errorMapping{http.StatusUnauthorized, "INVALID_CREDENTIALS"}},
	{service.ErrAccountLocked, errorMapping{http.StatusLocked, "ACCOUNT_LOCKED"}},
	{service.ErrAccountInactive, errorMapping{http.StatusForbidden, "ACCOUNT_INACTIVE"}},
	{service.ErrInvalidEmail, errorMapping{http.StatusBadRequest, "INVALID_EMAIL"}},
	{service.ErrWeakPassword, errorMapping{http.StatusBadRequest, "WEAK_PASSWORD"}},
	{service.ErrSamePassword, errorMapping{http.StatusBadRequest, "SAME_PASSWORD"}},
	{service.ErrPasswordless, errorMapping{http.StatusConflict, "NO_PASSWORD_CREDENTIAL"}},
	{service.ErrEmailTaken, errorMapping{http.StatusConflict, "EMAIL_TAKEN"}},
	{service.ErrCaptchaRequired, errorMapping{http.StatusBadRequest, "CAPTCHA_REQUIRED"}},
	{service.ErrCaptchaInvalid, errorMapping{http.StatusBadRequest, "CAPTCHA_INVALID"}},
	{service.ErrThrottled, errorMapping{http.StatusTooManyRequests, "THROTTLED"}},
	{service.ErrTwoFactorNotEnabled, errorMapping{http.StatusConflict, "TWO_FACTOR_NOT_ENABLED"}},
	{service.ErrTwoFactorAlreadyEnabled, errorMapping{http.StatusConflict, "TWO_FACTOR_ALREADY_ENABLED"}},
	{service.ErrTwoFactorAlreadyDisabled, errorMapping{http.StatusConflict, "TWO_FACTOR_ALREADY_DISABLED"}},
	{service.ErrTwoFactorCodeInvalid, errorMapping{http.StatusUnauthorized, "TWO_FACTOR_CODE_INVALID"}},
	{service.ErrTwoFactorCodeExpired, errorMapping{http.StatusUnauthorized, "TWO_FACTOR_CODE_EXPIRED"}},
	{service.ErrTokenNotFound, errorMapping{http.StatusBadRequest, "TOKEN_INVALID"}},
	{service.ErrTokenAlreadyUsed, errorMapping{http.StatusConflict, "TOKEN_ALREADY_USED"}},
	{service.ErrTokenExpired, errorMapping{http.StatusGone, "TOKEN_EXPIRED"}},
	{service.ErrForbidden, errorMapping{http.StatusForbidden, "FORBIDDEN"}},
	{service.ErrSelfDemotion, errorMapping{http.StatusConflict, "SELF_DEMOTION"}},
	{repository.ErrAccountNotFound, errorMapping{http.StatusNotFound, "NOT_FOUND"}},
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range serviceErrorMappings {
		if errors.Is(err, m.err) {
			response.Error(w, r, m.mapping.status, m.mapping.code, m.err.Error(), nil)
			return
		}
	}
	response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}

// subjectFromRequest resolves the authenticated account id from the bearer
// claims. It writes the 401 itself, so callers just bail on !ok.
func subjectFromRequest(w http.ResponseWriter, r *http.Request) (*security.Claims, uint, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return nil, 0, false
	}
	id, err := claims.AccountID()
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid subject", nil)
		return nil, 0, false
	}
	return claims, id, true
}
