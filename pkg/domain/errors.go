package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is; the concrete *Error carries the
// user-facing message.
var (
	ErrValidationFailed   = errors.New("validation failed")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrDisabled           = errors.New("account disabled")
	ErrForbidden          = errors.New("forbidden")
	ErrMFARequired        = errors.New("multi-factor authentication required")
	ErrCrossTenant        = errors.New("cross-organization access denied")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTemporarilyLocked  = errors.New("account temporarily locked")
	ErrNotFound           = errors.New("not found")
)

// MFA errors
var (
	ErrMFANotEnabled     = errors.New("MFA is not enabled for this account")
	ErrMFAAlreadyEnabled = errors.New("MFA is already enabled")
	ErrMFANotInitiated   = errors.New("MFA setup not initiated")
	ErrInvalidMFACode    = errors.New("invalid MFA code")
)

// Error is a classified failure with a message safe to show the caller.
type Error struct {
	Kind    error
	Message string
	// Details holds individual violations for ErrValidationFailed.
	Details []string
}

func (e *Error) Error() string {
	if e.Message == "" && e.Kind != nil {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// NewError builds an *Error of the given kind with a formatted message.
func NewError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the error kind of err, or nil if err is not classified.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, kind := range []error{
		ErrValidationFailed, ErrUnauthenticated, ErrDisabled, ErrForbidden,
		ErrMFARequired, ErrCrossTenant, ErrConflict, ErrInvalidCredentials,
		ErrTemporarilyLocked, ErrNotFound,
		ErrMFANotEnabled, ErrMFAAlreadyEnabled, ErrMFANotInitiated, ErrInvalidMFACode,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
