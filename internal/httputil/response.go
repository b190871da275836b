package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tendant/simple-idm-access/pkg/domain"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Details []string `json:"details,omitempty"`
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes an error response with the given status.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// errorCodes maps error kinds to status and a stable machine-readable code.
var errorCodes = []struct {
	kind   error
	status int
	code   string
}{
	{domain.ErrValidationFailed, http.StatusBadRequest, "validation_failed"},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{domain.ErrInvalidMFACode, http.StatusUnauthorized, "invalid_mfa_code"},
	{domain.ErrDisabled, http.StatusForbidden, "account_disabled"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrMFARequired, http.StatusForbidden, "mfa_required"},
	{domain.ErrCrossTenant, http.StatusForbidden, "cross_tenant"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrMFAAlreadyEnabled, http.StatusConflict, "mfa_already_enabled"},
	{domain.ErrMFANotEnabled, http.StatusBadRequest, "mfa_not_enabled"},
	{domain.ErrMFANotInitiated, http.StatusBadRequest, "mfa_not_initiated"},
	{domain.ErrTemporarilyLocked, http.StatusLocked, "temporarily_locked"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
}

// StatusFor returns the HTTP status for err and its error code. Errors
// without a kind map to 500.
func StatusFor(err error) (int, string) {
	kind := domain.KindOf(err)
	for _, c := range errorCodes {
		if kind == c.kind {
			return c.status, c.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// WriteError writes err with the status of its kind. Unclassified errors
// are logged and replaced by a generic message.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := StatusFor(err)
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed", "error", err)
		}
		JSON(w, status, ErrorResponse{Error: "internal server error", Code: code})
		return
	}

	resp := ErrorResponse{Error: err.Error(), Code: code}
	var derr *domain.Error
	if errors.As(err, &derr) {
		resp.Details = derr.Details
	}
	JSON(w, status, resp)
}

// DecodeJSON decodes the request body into v. On failure it writes a 400
// (or 413 for an oversized body) and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		Error(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, io.EOF):
		Error(w, http.StatusBadRequest, "request body is required")
	default:
		Error(w, http.StatusBadRequest, "invalid request body")
	}
	return false
}
