package domain

import (
	"fmt"
	"strings"
)

// Role is the closed set of account roles. Every switch over Role must list
// all five values; new roles are rejected by ParseRole until added here.
type Role string

const (
	RoleAdmin            Role = "admin"
	RolePropertyManager  Role = "property_manager"
	RoleStaff            Role = "staff"
	RoleAccountant       Role = "accountant"
	RoleExternalProvider Role = "external_provider"
)

// Roles lists every valid role in display order.
var Roles = []Role{RoleAdmin, RolePropertyManager, RoleStaff, RoleAccountant, RoleExternalProvider}

// ParseRole converts s into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		names := make([]string, len(Roles))
		for i, role := range Roles {
			names[i] = string(role)
		}
		return "", NewError(ErrValidationFailed, "Invalid role %q. Valid roles: %s.", s, strings.Join(names, ", "))
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePropertyManager, RoleStaff, RoleAccountant, RoleExternalProvider:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether r may perform sensitive administrative mutations.
func (r Role) IsAdmin() bool {
	switch r {
	case RoleAdmin:
		return true
	case RolePropertyManager, RoleStaff, RoleAccountant, RoleExternalProvider:
		return false
	default:
		return false
	}
}

// RequiresMFAForSensitiveActions reports whether the role must have MFA
// enabled before acting on other accounts.
func (r Role) RequiresMFAForSensitiveActions() bool {
	switch r {
	case RoleAdmin:
		return true
	case RolePropertyManager, RoleStaff, RoleAccountant, RoleExternalProvider:
		return false
	default:
		// Unknown roles never get a pass.
		return true
	}
}

func (r Role) String() string {
	return string(r)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return fmt.Errorf("role: %w", err)
	}
	*r = parsed
	return nil
}
