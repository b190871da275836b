package auth

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tendant/simple-idm-access/pkg/domain"
)

// Profile field limits, in characters.
const (
	maxNameLength  = 100
	maxPhoneLength = 32
)

// SanitizeName trims whitespace and strips control characters.
func SanitizeName(name string) string {
	return strings.TrimSpace(removeControlChars(name))
}

// ValidateStringLength validates that a string is within the specified length constraints.
func ValidateStringLength(field, value string, min, max int) error {
	length := utf8.RuneCountInString(value)

	if min > 0 && length < min {
		return domain.NewError(domain.ErrValidationFailed, "%s must be at least %d characters long.", field, min)
	}
	if max > 0 && length > max {
		return domain.NewError(domain.ErrValidationFailed, "%s must be at most %d characters long.", field, max)
	}
	return nil
}

// removeControlChars removes control characters except newline and tab.
func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
