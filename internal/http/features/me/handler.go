package me

import (
	"log/slog"
	"net/http"

	"github.com/tendant/simple-idm-access/internal/http/middleware"
	"github.com/tendant/simple-idm-access/internal/httputil"
	"github.com/tendant/simple-idm-access/pkg/auth"
)

// Handler handles the acting account's own profile.
type Handler struct {
	logger      *slog.Logger
	credentials *auth.CredentialService
}

// NewHandler creates a new me handler.
func NewHandler(logger *slog.Logger, credentials *auth.CredentialService) *Handler {
	return &Handler{
		logger:      logger,
		credentials: credentials,
	}
}

// GetMe returns the current account.
// GET /v1/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.MustActor(w, r)
	if !ok {
		return
	}

	principal, err := h.credentials.GetAccount(r.Context(), actorID, actorID)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, principal)
}

// ChangePasswordRequest represents a password change request.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword replaces the current account's password.
// POST /v1/me/password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.MustActor(w, r)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	if err := h.credentials.ChangePassword(r.Context(), actorID, req.CurrentPassword, req.NewPassword); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully."})
}
