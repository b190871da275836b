package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-access/pkg/domain"
)

// TenantChecker confirms that actor and target share an organization.
type TenantChecker struct {
	accounts AccountGetter
}

// NewTenantChecker creates a checker that loads accounts from accounts.
func NewTenantChecker(accounts AccountGetter) *TenantChecker {
	return &TenantChecker{accounts: accounts}
}

// VerifySameOrganization fails with NotFound if either account is missing
// and with CrossTenant if the actor is scoped to an organization the target
// is not part of. An actor without an organization is exempt.
func (c *TenantChecker) VerifySameOrganization(ctx context.Context, actorID, targetID uuid.UUID) error {
	actor, err := c.load(ctx, actorID, "Acting user not found.")
	if err != nil {
		return err
	}
	target, err := c.load(ctx, targetID, "User not found.")
	if err != nil {
		return err
	}
	return checkSameOrganization(actor.OrganizationID, target.OrganizationID)
}

func (c *TenantChecker) load(ctx context.Context, id uuid.UUID, missing string) (*domain.Account, error) {
	account, err := c.accounts.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.Error{Kind: domain.ErrNotFound, Message: missing}
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}

func checkSameOrganization(actorOrg, targetOrg *uuid.UUID) error {
	if actorOrg == nil {
		return nil
	}
	if !domain.SameOrganization(actorOrg, targetOrg) {
		return &domain.Error{
			Kind:    domain.ErrCrossTenant,
			Message: "Access denied. Target account belongs to a different organization.",
		}
	}
	return nil
}
