package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-access/pkg/domain"
)

// AccountGetter loads a single account by id. It returns domain.ErrNotFound
// when the account does not exist.
type AccountGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)
}

// PrivilegeVerifier checks that an acting account may perform an operation.
type PrivilegeVerifier struct {
	accounts AccountGetter
}

// NewPrivilegeVerifier creates a verifier that loads actors from accounts.
func NewPrivilegeVerifier(accounts AccountGetter) *PrivilegeVerifier {
	return &PrivilegeVerifier{accounts: accounts}
}

// VerifyAdmin checks that actorID names an active admin. Checks run in order:
// existence, active flag, role.
func (v *PrivilegeVerifier) VerifyAdmin(ctx context.Context, actorID uuid.UUID) (*domain.Principal, error) {
	actor, err := v.loadActor(ctx, actorID, "Admin access required. Acting user not found.")
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsAdmin() {
		return nil, domain.NewError(domain.ErrForbidden,
			"Access denied. This action requires one of these roles: %s. Your role: %s", domain.RoleAdmin, actor.Role)
	}
	return actor.Principal(), nil
}

// VerifyAdminMFA checks that an admin actor has MFA enabled. It is layered
// on top of VerifyAdmin, not a replacement for it.
func (v *PrivilegeVerifier) VerifyAdminMFA(ctx context.Context, actorID uuid.UUID) error {
	actor, err := v.loadActor(ctx, actorID, "Admin access required. Acting user not found.")
	if err != nil {
		return err
	}
	return checkAdminMFA(actor.Principal())
}

// RequirePermission checks actorID against the role permission matrix.
func (v *PrivilegeVerifier) RequirePermission(ctx context.Context, actorID uuid.UUID, resource domain.Resource, action domain.Action) (*domain.Principal, error) {
	actor, err := v.loadActor(ctx, actorID, "Authentication required. User not found.")
	if err != nil {
		return nil, err
	}
	if !domain.HasPermission(actor.Role, resource, action) {
		return nil, domain.NewError(domain.ErrForbidden,
			"Access denied. You don't have permission to %s %s. Your role: %s", action, resource, actor.Role)
	}
	return actor.Principal(), nil
}

// loadActor returns the active account for actorID.
func (v *PrivilegeVerifier) loadActor(ctx context.Context, actorID uuid.UUID, missing string) (*domain.Account, error) {
	actor, err := v.accounts.Get(ctx, actorID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.Error{Kind: domain.ErrUnauthenticated, Message: missing}
	}
	if err != nil {
		return nil, fmt.Errorf("load acting user: %w", err)
	}
	if !actor.Active {
		return nil, &domain.Error{Kind: domain.ErrDisabled, Message: "Account is disabled. Please contact your administrator."}
	}
	return actor, nil
}

// checkAdminMFA fails for roles that must hold MFA before sensitive actions.
func checkAdminMFA(actor *domain.Principal) error {
	if actor.Role.RequiresMFAForSensitiveActions() && !actor.MFAEnabled {
		return &domain.Error{
			Kind:    domain.ErrMFARequired,
			Message: "Multi-factor authentication is required for admin actions. Enable MFA in Settings > Security before continuing.",
		}
	}
	return nil
}
