package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/simple-idm-access/internal/config"
	"github.com/tendant/simple-idm-access/internal/http/features/accounts"
	"github.com/tendant/simple-idm-access/internal/http/features/me"
	"github.com/tendant/simple-idm-access/internal/http/features/mfa"
	"github.com/tendant/simple-idm-access/internal/http/features/session"
	"github.com/tendant/simple-idm-access/internal/http/middleware"
	"github.com/tendant/simple-idm-access/internal/httputil"
	"github.com/tendant/simple-idm-access/pkg/auth"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger            *slog.Logger
	CredentialService *auth.CredentialService
	MFAService        *auth.MFAService // optional
	ActorTokens       *auth.ActorTokenVerifier
	AuditLog          accounts.AuditLister // optional
	RateLimitConfig   config.RateLimitConfig
	SecurityHeaders   config.SecurityHeadersConfig
	MaxRequestBytes   int64
	CookieConfig      httputil.CookieConfig
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.MaxRequestBytes))
	r.Use(middleware.RequestMeta)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.Logger)
	requireActor := middleware.Auth(cfg.ActorTokens)

	// Session routes
	sessionHandler := session.NewHandler(cfg.Logger, cfg.CredentialService, cfg.CookieConfig)
	r.With(rateLimiters[middleware.LimitLogin]).Post("/v1/auth/login", sessionHandler.Login)
	r.With(middleware.OptionalAuth(cfg.ActorTokens)).Post("/v1/auth/logout", sessionHandler.Logout)
	r.Get("/v1/auth/password-requirements", sessionHandler.PasswordRequirements)

	// Account administration
	accountsHandler := accounts.NewHandler(cfg.Logger, cfg.CredentialService, cfg.MFAService, cfg.AuditLog)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters[middleware.LimitCredential])
		r.With(middleware.OptionalAuth(cfg.ActorTokens)).Post("/v1/accounts", accountsHandler.Create)
		r.With(requireActor).Post("/v1/accounts/{id}/password-reset", accountsHandler.ResetPassword)
	})
	r.Group(func(r chi.Router) {
		r.Use(requireActor)
		r.Get("/v1/accounts", accountsHandler.List)
		r.Get("/v1/accounts/{id}", accountsHandler.Get)
		r.Patch("/v1/accounts/{id}", accountsHandler.Update)
		r.Get("/v1/accounts/{id}/audit-events", accountsHandler.AuditEvents)
		if cfg.MFAService != nil {
			r.Delete("/v1/accounts/{id}/mfa", accountsHandler.DisableMFA)
		}
	})

	// Current account
	meHandler := me.NewHandler(cfg.Logger, cfg.CredentialService)
	r.Group(func(r chi.Router) {
		r.Use(requireActor)
		r.Get("/v1/me", meHandler.GetMe)
		r.With(rateLimiters[middleware.LimitCredential]).Post("/v1/me/password", meHandler.ChangePassword)
	})

	// MFA routes (if MFA service is configured)
	if cfg.MFAService != nil {
		mfaHandler := mfa.NewHandler(cfg.Logger, cfg.MFAService)
		r.Group(func(r chi.Router) {
			r.Use(requireActor)
			r.Use(rateLimiters[middleware.LimitMFA])
			r.Get("/v1/me/mfa", mfaHandler.Status)
			r.Post("/v1/me/mfa/setup", mfaHandler.Setup)
			r.Post("/v1/me/mfa/enable", mfaHandler.Enable)
			r.Post("/v1/me/mfa/verify", mfaHandler.Verify)
			r.Post("/v1/me/mfa/disable", mfaHandler.Disable)
			r.Post("/v1/me/mfa/backup-codes", mfaHandler.BackupCodes)
		})
	}

	return r
}
