package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/vkozii/authgate/internal/domain"
	"github.com/vkozii/authgate/internal/repository"
)

// AdminService carries the privileged account operations. Role gating itself
// happens at the transport edge; the one rule enforced here regardless of
// transport is the self-demotion guard.
type AdminService struct {
	accounts repository.AccountRepository
	attempts repository.LoginAttemptRepository
	authz    AuthorizationPolicy
	auth     *AuthService
	logger   *slog.Logger
}

func NewAdminService(accounts repository.AccountRepository, attempts repository.LoginAttemptRepository, authz AuthorizationPolicy, auth *AuthService, logger *slog.Logger) *AdminService {
	return &AdminService{accounts: accounts, attempts: attempts, authz: authz, auth: auth, logger: logger}
}

func (s *AdminService) ListAccounts(req repository.PageRequest) (*repository.PageResult[domain.Account], error) {
	return s.accounts.ListPaged(req)
}

func (s *AdminService) DeleteAccount(ctx context.Context, id uint) error {
	return s.accounts.Delete(id)
}

// ToggleActive flips activation and stamps or clears deactivated_at.
func (s *AdminService) ToggleActive(ctx context.Context, id uint) (*domain.Account, error) {
	account, err := s.accounts.FindByID(id)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{"is_active": !account.IsActive}
	if account.IsActive {
		fields["deactivated_at"] = time.Now().UTC()
	} else {
		fields["deactivated_at"] = nil
	}
	if err := s.accounts.Update(id, fields); err != nil {
		return nil, err
	}
	return s.accounts.FindByID(id)
}

// ChangeRole applies the closed-enum role change. The acting admin may not
// strip admin from themselves.
func (s *AdminService) ChangeRole(ctx context.Context, actorID, targetID uint, role domain.Role) (*domain.Account, error) {
	if err := s.authz.CheckRoleChange(actorID, targetID, role); err != nil {
		return nil, err
	}
	if err := s.accounts.Update(targetID, map[string]any{"role": role}); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "account role changed", "actor_id", actorID, "target_id", targetID, "role", role)
	return s.accounts.FindByID(targetID)
}

// RequestPasswordReset triggers the regular reset flow for the target user.
func (s *AdminService) RequestPasswordReset(ctx context.Context, targetID uint) error {
	account, err := s.accounts.FindByID(targetID)
	if err != nil {
		return err
	}
	return s.auth.RequestPasswordReset(ctx, account.Email)
}

// ChangeEmail sets the address directly, bypassing the confirmation token.
func (s *AdminService) ChangeEmail(ctx context.Context, targetID uint, newEmail string) (*domain.Account, error) {
	newEmail = strings.TrimSpace(newEmail)
	if err := validateEmail(newEmail); err != nil {
		return nil, err
	}
	if existing, err := s.accounts.FindByEmail(newEmail); err == nil && existing.ID != targetID {
		return nil, ErrEmailTaken
	} else if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}
	if err := s.accounts.UpdateEmail(targetID, newEmail); err != nil {
		return nil, err
	}
	return s.accounts.FindByID(targetID)
}

func (s *AdminService) ListLoginAttempts(limit int) ([]domain.LoginAttempt, error) {
	return s.attempts.ListRecent(limit)
}
