package auth

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/tendant/simple-idm-access/pkg/domain"
)

// Common disposable email domains to block (can be extended)
var disposableDomains = map[string]bool{
	"tempmail.com":      true,
	"10minutemail.com":  true,
	"guerrillamail.com": true,
	"mailinator.com":    true,
	"throwaway.email":   true,
}

// Email validation regex (stricter than RFC 5322 for practical use)
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

const maxEmailLength = 254 // RFC 5321

// EmailRules controls how strictly addresses are checked on account creation.
type EmailRules struct {
	Strict          bool
	BlockDisposable bool
}

// ValidateEmail validates an email address for format and length.
func ValidateEmail(email string, rules EmailRules) error {
	if strings.TrimSpace(email) == "" {
		return invalidEmail("Email address is required.")
	}
	if len(email) > maxEmailLength {
		return domain.NewError(domain.ErrValidationFailed, "Email address is too long (max %d characters).", maxEmailLength)
	}

	normalized := NormalizeEmail(email)

	// mail.ParseAddress also accepts "Name <addr>"; only bare addresses pass.
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return invalidEmail("Invalid email address format.")
	}

	if rules.Strict && !emailRegex.MatchString(addr.Address) {
		return invalidEmail("Invalid email address format.")
	}

	if rules.BlockDisposable && disposableDomains[emailDomain(addr.Address)] {
		return invalidEmail("Disposable email addresses are not allowed.")
	}

	return nil
}

// NormalizeEmail normalizes an email address by lowercasing and trimming.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// emailDomain extracts the domain from an email address.
func emailDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return ""
	}
	return email[at+1:]
}

func invalidEmail(msg string) error {
	return &domain.Error{Kind: domain.ErrValidationFailed, Message: msg}
}
