package session

import (
	"log/slog"
	"net/http"

	"github.com/tendant/simple-idm-access/internal/http/middleware"
	"github.com/tendant/simple-idm-access/internal/httputil"
	"github.com/tendant/simple-idm-access/pkg/auth"
	"github.com/tendant/simple-idm-access/pkg/domain"
)

// Handler handles login and logout.
type Handler struct {
	logger       *slog.Logger
	credentials  *auth.CredentialService
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new session handler.
func NewHandler(logger *slog.Logger, credentials *auth.CredentialService, cookieConfig httputil.CookieConfig) *Handler {
	return &Handler{
		logger:       logger,
		credentials:  credentials,
		cookieConfig: cookieConfig,
	}
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the authenticated account. Token issuance is left
// to the caller.
type LoginResponse struct {
	Account     *domain.Principal `json:"account"`
	MFARequired bool              `json:"mfa_required"`
}

// Login authenticates an email and password.
// POST /v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	// Empty fields get the same answer as a wrong password.
	principal, err := h.credentials.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, LoginResponse{
		Account:     principal,
		MFARequired: principal.MFAEnabled,
	})
}

// Logout records a logout for the actor and clears the token cookie.
// POST /v1/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if actorID, ok := middleware.GetActorID(r.Context()); ok {
		if err := h.credentials.Logout(r.Context(), actorID); err != nil {
			httputil.WriteError(w, h.logger, err)
			return
		}
	}

	httputil.ClearActorCookie(w, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}

// PasswordRequirements describes the password policy.
// GET /v1/auth/password-requirements
func (h *Handler) PasswordRequirements(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"requirements": auth.PasswordRequirements()})
}
