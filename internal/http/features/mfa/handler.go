package mfa

import (
	"log/slog"
	"net/http"

	"github.com/tendant/simple-idm-access/internal/http/middleware"
	"github.com/tendant/simple-idm-access/internal/httputil"
	"github.com/tendant/simple-idm-access/pkg/auth"
	"github.com/tendant/simple-idm-access/pkg/domain"
)

// Handler handles MFA-related HTTP requests for the acting account.
type Handler struct {
	logger     *slog.Logger
	mfaService *auth.MFAService
}

// NewHandler creates a new MFA handler
func NewHandler(logger *slog.Logger, mfaService *auth.MFAService) *Handler {
	return &Handler{
		logger:     logger,
		mfaService: mfaService,
	}
}

// CodeRequest carries a TOTP or backup code.
type CodeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) decodeCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req CodeRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return "", false
	}
	if req.Code == "" {
		httputil.WriteError(w, h.logger, domain.NewError(domain.ErrValidationFailed, "code is required"))
		return "", false
	}
	return req.Code, true
}

// Setup handles POST /v1/me/mfa/setup
func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.MustActor(w, r)
	if !ok {
		return
	}

	setup, err := h.mfaService.Setup(r.Context(), actorID)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, setup)
}

// Enable handles POST /v1/me/mfa/enable
func (h *Handler) Enable(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.MustActor(w, r)
	if !ok {
		return
	}
	code, ok := h.decodeCode(w, r)
	if !ok {
		return
	}

	if err := h.mfaService.VerifyAndEnable(r.Context(), actorID, code); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"message": "MFA enabled successfully"})
}

// Verify handles POST /v1/me/mfa/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.MustActor(w, r)
	if !ok {
		return
	}
	code, ok := h.decodeCode(w, r)
	if !ok {
		return
	}

	result, err := h.mfaService.VerifyCode(r.Context(), actorID, code)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Disable handles POST /v1/me/mfa/disable
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.MustActor(w, r)
	if !ok {
		return
	}
	code, ok := h.decodeCode(w, r)
	if !ok {
		return
	}

	if err := h.mfaService.Disable(r.Context(), actorID, actorID, code); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"message": "MFA disabled."})
}

// BackupCodes handles POST /v1/me/mfa/backup-codes
func (h *Handler) BackupCodes(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.MustActor(w, r)
	if !ok {
		return
	}
	code, ok := h.decodeCode(w, r)
	if !ok {
		return
	}

	codes, err := h.mfaService.RegenerateBackupCodes(r.Context(), actorID, code)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string][]string{"backup_codes": codes})
}

// Status handles GET /v1/me/mfa
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.MustActor(w, r)
	if !ok {
		return
	}

	status, err := h.mfaService.Status(r.Context(), actorID)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, status)
}
