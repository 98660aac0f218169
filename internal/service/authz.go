package service

import "github.com/vkozii/authgate/internal/domain"

// AuthorizationPolicy makes role-gate decisions. It is stateless and
// independent of how the claims arrived.
type AuthorizationPolicy struct{}

func NewAuthorizationPolicy() AuthorizationPolicy { return AuthorizationPolicy{} }

// Authorize allows when no roles are required, otherwise the actor's role
// must be a member of the required set.
func (AuthorizationPolicy) Authorize(actor domain.Role, required ...domain.Role) error {
	if len(required) == 0 {
		return nil
	}
	for _, r := range required {
		if actor == r {
			return nil
		}
	}
	return ErrForbidden
}

// CheckRoleChange rejects an admin removing the admin role from their own
// account. That is the only "last seat" protection: demoting other admins is
// allowed.
func (AuthorizationPolicy) CheckRoleChange(actorID, targetID uint, next domain.Role) error {
	if actorID == targetID && next != domain.RoleAdmin {
		return ErrSelfDemotion
	}
	return nil
}
