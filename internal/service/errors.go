package service

import "errors"

// Authentication failures share deliberately generic wording: the login path
// must answer identically for "no such account" and "wrong password".
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("email address is not valid")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountInactive    = errors.New("account is not activated")
	ErrWeakPassword       = errors.New("password does not meet policy requirements")
	ErrSamePassword       = errors.New("new password must differ from current password")
	ErrPasswordless       = errors.New("account has no password credential")
	ErrEmailTaken         = errors.New("email already in use")
	ErrCaptchaRequired    = errors.New("captcha token is required")
	ErrCaptchaInvalid     = errors.New("captcha verification failed")
	ErrThrottled          = errors.New("too many attempts, retry later")
)

// Two-factor state errors.
var (
	ErrTwoFactorNotEnabled      = errors.New("two-factor authentication is not enabled")
	ErrTwoFactorAlreadyEnabled  = errors.New("two-factor authentication is already enabled")
	ErrTwoFactorAlreadyDisabled = errors.New("two-factor authentication is already disabled")
	ErrTwoFactorCodeInvalid     = errors.New("two-factor code is invalid")
	ErrTwoFactorCodeExpired     = errors.New("two-factor code has expired or is not pending")
)

// Ephemeral token outcomes are surfaced distinctly: tokens are unguessable,
// so precise failure reasons are a UX aid, not an enumeration risk.
var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrTokenAlreadyUsed = errors.New("token has already been used")
	ErrTokenExpired     = errors.New("token has expired")
)

// Authorization failures.
var (
	ErrForbidden    = errors.New("insufficient permissions")
	ErrSelfDemotion = errors.New("cannot remove admin role from your own account")
)
