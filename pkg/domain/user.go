package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account is a credentialed principal.
type Account struct {
	ID             uuid.UUID
	Email          string
	PasswordHash   string
	FirstName      string
	LastName       string
	Phone          *string
	Role           Role
	OrganizationID *uuid.UUID
	Active         bool

	MFAEnabled   bool
	MFASecretRef *string // encrypted TOTP secret

	FailedLoginAttempts int
	LockedUntil         *time.Time

	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
}

// IsLockedAt returns true if the account cannot authenticate at now.
func (a *Account) IsLockedAt(now time.Time) bool {
	if a.LockedUntil == nil {
		return false
	}
	return now.Before(*a.LockedUntil)
}

// FullName returns "First Last", trimmed.
func (a *Account) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// AttemptState returns the login guard view of the account.
func (a *Account) AttemptState() LoginAttemptState {
	return LoginAttemptState{
		FailedAttempts: a.FailedLoginAttempts,
		LockedUntil:    a.LockedUntil,
	}
}

// Principal returns the sanitized view of the account.
func (a *Account) Principal() *Principal {
	return &Principal{
		ID:             a.ID,
		Email:          a.Email,
		FirstName:      a.FirstName,
		LastName:       a.LastName,
		Phone:          a.Phone,
		Role:           a.Role,
		OrganizationID: a.OrganizationID,
		Active:         a.Active,
		MFAEnabled:     a.MFAEnabled,
		LastLoginAt:    a.LastLoginAt,
		CreatedAt:      a.CreatedAt,
	}
}

// SameOrganization reports whether both accounts carry the same
// organization scope. A nil scope only matches another nil scope.
func SameOrganization(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Principal is an Account without secrets or guard state. It is the only
// account shape returned to callers.
type Principal struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Phone          *string    `json:"phone,omitempty"`
	Role           Role       `json:"role"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	Active         bool       `json:"active"`
	MFAEnabled     bool       `json:"mfa_enabled"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// FullName returns "First Last", trimmed.
func (p *Principal) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// LoginAttemptState is the brute-force guard state of an account.
type LoginAttemptState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// LockedAt reports whether the state blocks logins at now.
func (s LoginAttemptState) LockedAt(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// AccountPatch lists the fields to change on an account. Nil fields are
// left untouched; an empty Phone clears the phone number.
type AccountPatch struct {
	FirstName      *string
	LastName       *string
	Phone          *string
	Role           *Role
	Active         *bool
	PasswordHash   *string
	MFAEnabled     *bool
	MFASecretRef   *string
	ClearMFASecret bool
	LastLoginAt    *time.Time
}
