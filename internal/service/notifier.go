package service

import (
	"context"
	"log/slog"
)

// DevNotifier logs instead of sending mail. Mail rendering and transport are
// external concerns; this keeps local development and tests self-contained.
type DevNotifier struct {
	logger *slog.Logger
}

func NewDevNotifier(logger *slog.Logger) *DevNotifier {
	return &DevNotifier{logger: logger}
}

func (n *DevNotifier) SendActivation(ctx context.Context, email, token, link string) error {
	n.logger.InfoContext(ctx, "activation token issued", "email", email, "link", link)
	return nil
}

func (n *DevNotifier) SendTwoFactorCode(ctx context.Context, email, code string) error {
	n.logger.InfoContext(ctx, "two-factor code issued", "email", email)
	return nil
}

func (n *DevNotifier) SendPasswordReset(ctx context.Context, email, token, link string) error {
	n.logger.InfoContext(ctx, "password reset token issued", "email", email, "link", link)
	return nil
}

func (n *DevNotifier) SendEmailChangeConfirmation(ctx context.Context, newEmail, link string) error {
	n.logger.InfoContext(ctx, "email change confirmation issued", "email", newEmail, "link", link)
	return nil
}

// DevCaptchaVerifier accepts any non-empty token. The real provider protocol
// lives behind the CaptchaVerifier port.
type DevCaptchaVerifier struct{}

func (DevCaptchaVerifier) Verify(_ context.Context, token string) (bool, error) {
	return token != "", nil
}
