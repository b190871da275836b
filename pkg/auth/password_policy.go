package auth

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tendant/simple-idm-access/pkg/domain"
)

// Password length bounds, in characters.
const (
	MinPasswordLength = 12
	MaxPasswordLength = 128
)

// specialChars is the accepted set for the special-character rule.
const specialChars = "!@#$%^&*()_+-=[]{}|;:',.<>?/`~\"\\"

// Canonical violation messages, in reporting order.
var (
	msgPasswordRequired  = "Password is required."
	msgPasswordTooShort  = fmt.Sprintf("Password must be at least %d characters long.", MinPasswordLength)
	msgPasswordTooLong   = fmt.Sprintf("Password must be no more than %d characters long.", MaxPasswordLength)
	msgPasswordUppercase = "Password must contain at least 1 uppercase letter (A-Z)."
	msgPasswordLowercase = "Password must contain at least 1 lowercase letter (a-z)."
	msgPasswordDigit     = "Password must contain at least 1 digit (0-9)."
	msgPasswordSpecial   = "Password must contain at least 1 special character (e.g. !@#$%^&*)."
)

// PasswordValidationResult is the outcome of a complexity check.
type PasswordValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidatePasswordComplexity checks password against the complexity rules
// and reports every violation at once.
func ValidatePasswordComplexity(password string) PasswordValidationResult {
	if password == "" {
		return PasswordValidationResult{Valid: false, Errors: []string{msgPasswordRequired}}
	}

	errs := make([]string, 0, 6)
	length := utf8.RuneCountInString(password)

	if length < MinPasswordLength {
		errs = append(errs, msgPasswordTooShort)
	}
	if length > MaxPasswordLength {
		errs = append(errs, msgPasswordTooLong)
	}
	if !containsRange(password, 'A', 'Z') {
		errs = append(errs, msgPasswordUppercase)
	}
	if !containsRange(password, 'a', 'z') {
		errs = append(errs, msgPasswordLowercase)
	}
	if !containsRange(password, '0', '9') {
		errs = append(errs, msgPasswordDigit)
	}
	if !strings.ContainsAny(password, specialChars) {
		errs = append(errs, msgPasswordSpecial)
	}

	return PasswordValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// RequirePasswordComplexity returns a validation error listing every
// violation, or nil if password is acceptable.
func RequirePasswordComplexity(password string) error {
	result := ValidatePasswordComplexity(password)
	if result.Valid {
		return nil
	}
	return &domain.Error{
		Kind:    domain.ErrValidationFailed,
		Message: "Password does not meet complexity requirements: " + strings.Join(result.Errors, " "),
		Details: result.Errors,
	}
}

// PasswordRequirements returns a human-readable description of the policy.
func PasswordRequirements() string {
	requirements := []string{
		fmt.Sprintf("%d to %d characters", MinPasswordLength, MaxPasswordLength),
		"one uppercase letter",
		"one lowercase letter",
		"one number",
		"one special character",
	}
	return "Password must contain " + strings.Join(requirements, ", ")
}

// containsRange checks for at least one ASCII character in [lo, hi].
func containsRange(s string, lo, hi rune) bool {
	for _, r := range s {
		if r >= lo && r <= hi {
			return true
		}
	}
	return false
}
