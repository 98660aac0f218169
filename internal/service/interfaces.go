package service

import "context"

// Notifier delivers out-of-band messages. All sends are best-effort: a
// delivery failure never rolls back the state change that preceded it.
type Notifier interface {
	SendActivation(ctx context.Context, email, token, link string) error
	SendTwoFactorCode(ctx context.Context, email, code string) error
	SendPasswordReset(ctx context.Context, email, token, link string) error
	SendEmailChangeConfirmation(ctx context.Context, newEmail, link string) error
}

// CaptchaVerifier validates an opaque provider token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token string) (bool, error)
}
