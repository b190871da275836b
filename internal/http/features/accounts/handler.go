package accounts

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-idm-access/internal/http/middleware"
	"github.com/tendant/simple-idm-access/internal/httputil"
	"github.com/tendant/simple-idm-access/pkg/auth"
	"github.com/tendant/simple-idm-access/pkg/domain"
)

// AuditLister reads the audit trail of one entity, newest first.
type AuditLister interface {
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]domain.AuditEvent, error)
}

// Handler handles account administration endpoints.
type Handler struct {
	logger      *slog.Logger
	credentials *auth.CredentialService
	mfa         *auth.MFAService
	audit       AuditLister
}

// NewHandler creates a new accounts handler. mfa and audit may be nil, in
// which case their routes answer 404.
func NewHandler(logger *slog.Logger, credentials *auth.CredentialService, mfa *auth.MFAService, audit AuditLister) *Handler {
	return &Handler{
		logger:      logger,
		credentials: credentials,
		mfa:         mfa,
		audit:       audit,
	}
}

// CreateRequest represents an account creation request.
type CreateRequest struct {
	Email     string      `json:"email"`
	Password  string      `json:"password"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Phone     *string     `json:"phone,omitempty"`
	Role      domain.Role `json:"role"`
}

// Create creates an account. Without any accounts the request needs no actor.
// POST /v1/accounts
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	var actorID *uuid.UUID
	if id, ok := middleware.GetActorID(r.Context()); ok {
		actorID = &id
	}

	principal, err := h.credentials.CreateAccount(r.Context(), actorID, auth.CreateAccountInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Role:      req.Role,
	})
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, principal)
}

// List returns the accounts visible to the acting admin.
// GET /v1/accounts
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.MustActor(w, r)
	if !ok {
		return
	}

	accounts, err := h.credentials.ListAccounts(r.Context(), actorID)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

// Get returns one account.
// GET /v1/accounts/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.MustActor(w, r)
	if !ok {
		return
	}
	targetID, ok := accountID(w, r)
	if !ok {
		return
	}

	principal, err := h.credentials.GetAccount(r.Context(), actorID, targetID)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, principal)
}

// UpdateRequest represents an account update. Absent fields are left as
// they are; an empty phone clears it.
type UpdateRequest struct {
	FirstName *string      `json:"first_name,omitempty"`
	LastName  *string      `json:"last_name,omitempty"`
	Phone     *string      `json:"phone,omitempty"`
	Role      *domain.Role `json:"role,omitempty"`
	Active    *bool        `json:"active,omitempty"`
}

// Update changes profile and authorization fields of an account.
// PATCH /v1/accounts/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.MustActor(w, r)
	if !ok {
		return
	}
	targetID, ok := accountID(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	principal, err := h.credentials.UpdateAccount(r.Context(), actorID, targetID, auth.UpdateAccountInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Role:      req.Role,
		Active:    req.Active,
	})
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, principal)
}

// ResetPasswordRequest carries the password an admin sets.
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// ResetPassword sets a new password on another account.
// POST /v1/accounts/{id}/password-reset
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.MustActor(w, r)
	if !ok {
		return
	}
	targetID, ok := accountID(w, r)
	if !ok {
		return
	}

	var req ResetPasswordRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	if err := h.credentials.AdminResetPassword(r.Context(), actorID, targetID, req.NewPassword); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully."})
}

// DisableMFA turns MFA off for another account in the admin's organization.
// DELETE /v1/accounts/{id}/mfa
func (h *Handler) DisableMFA(w http.ResponseWriter, r *http.Request) {
	if h.mfa == nil {
		http.NotFound(w, r)
		return
	}
	actorID, ok := middleware.MustActor(w, r)
	if !ok {
		return
	}
	targetID, ok := accountID(w, r)
	if !ok {
		return
	}

	if err := h.mfa.Disable(r.Context(), actorID, targetID, ""); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"message": "MFA disabled."})
}

const maxAuditEvents = 200

// AuditEvents returns the audit trail of an account.
// GET /v1/accounts/{id}/audit-events?limit=N
func (h *Handler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		http.NotFound(w, r)
		return
	}
	actorID, ok := middleware.MustActor(w, r)
	if !ok {
		return
	}
	targetID, ok := accountID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, h.logger, domain.NewError(domain.ErrValidationFailed, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxAuditEvents)
	}

	ctx := r.Context()
	if _, err := h.credentials.Privileges().RequirePermission(ctx, actorID, domain.ResourceAuditLogs, domain.ActionView); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	if err := h.credentials.Tenants().VerifySameOrganization(ctx, actorID, targetID); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	events, err := h.audit.ListByEntity(ctx, domain.EntityTypeUser, targetID.String(), limit)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}

	httputil.JSON(w, http.StatusOK, map[string]any{"events": events})
}

func accountID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, nil, domain.NewError(domain.ErrValidationFailed, "Invalid account id."))
		return uuid.Nil, false
	}
	return id, true
}
