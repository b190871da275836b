package auth

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-access/pkg/domain"
)

// Lockout policy.
const (
	MaxFailedLoginAttempts = 5
	LockoutDuration        = 15 * time.Minute
)

// AttemptStore persists login guard state. IncrementFailedLogins must be a
// single atomic update that leaves a locked account untouched.
type AttemptStore interface {
	IncrementFailedLogins(ctx context.Context, id uuid.UUID, now time.Time, maxAttempts int, lockout time.Duration) (domain.LoginAttemptState, error)
	ResetFailedLogins(ctx context.Context, id uuid.UUID, now time.Time) error
}

// LoginGuard tracks failed logins per account and locks accounts that
// reach the threshold.
type LoginGuard struct {
	store       AttemptStore
	maxAttempts int
	lockout     time.Duration
}

// NewLoginGuard creates a guard with the fixed lockout policy.
func NewLoginGuard(store AttemptStore) *LoginGuard {
	return &LoginGuard{
		store:       store,
		maxAttempts: MaxFailedLoginAttempts,
		lockout:     LockoutDuration,
	}
}

// Check returns a TemporarilyLocked error if account cannot log in at now.
func (g *LoginGuard) Check(account *domain.Account, now time.Time) error {
	if !account.IsLockedAt(now) {
		return nil
	}
	return lockedError(account.LockedUntil.Sub(now))
}

// RecordFailure counts one failed verification. The returned state is the
// state after the update; LockedUntil is set once the threshold is reached.
func (g *LoginGuard) RecordFailure(ctx context.Context, account *domain.Account, now time.Time) (domain.LoginAttemptState, error) {
	state, err := g.store.IncrementFailedLogins(ctx, account.ID, now, g.maxAttempts, g.lockout)
	if err != nil {
		return domain.LoginAttemptState{}, fmt.Errorf("record failed login: %w", err)
	}
	return state, nil
}

// RecordSuccess clears the counter and any expired lock. It skips the write
// when there is nothing to clear.
func (g *LoginGuard) RecordSuccess(ctx context.Context, account *domain.Account, now time.Time) error {
	if account.FailedLoginAttempts == 0 && account.LockedUntil == nil {
		return nil
	}
	if err := g.store.ResetFailedLogins(ctx, account.ID, now); err != nil {
		return fmt.Errorf("reset failed logins: %w", err)
	}
	return nil
}

func lockedError(remaining time.Duration) error {
	minutes := remainingMinutes(remaining)
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return domain.NewError(domain.ErrTemporarilyLocked,
		"Account temporarily locked. Try again in %d %s.", minutes, unit)
}

// remainingMinutes rounds up to whole minutes, never below one.
func remainingMinutes(d time.Duration) int {
	minutes := int(math.Ceil(d.Minutes()))
	if minutes < 1 {
		return 1
	}
	return minutes
}
