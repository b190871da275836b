// Package idm assembles the credential and access-control core into a
// mountable HTTP handler.
//
// Setup:
//
//  1. Open a Postgres or SQLite database (repository.NewDB does both)
//  2. Create the IDM instance and mount its router
//
// Basic usage:
//
//	db, dialect, _ := repository.NewDB(ctx, repository.Config{Driver: "sqlite", Path: "access.db"})
//
//	core, err := idm.New(ctx, idm.Config{
//	    DB:          db,
//	    Dialect:     dialect,
//	    AutoMigrate: true,
//	    JWTSecret:   "secret-shared-with-the-token-issuer",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer core.Close()
//
//	r := chi.NewRouter()
//	r.Mount("/", core.Router())
//	http.ListenAndServe(":8080", r)
//
// The acting account of a request is the sub claim of an HS256 bearer
// token issued by the surrounding application with JWTSecret.
package idm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-access/internal/config"
	httpserver "github.com/tendant/simple-idm-access/internal/http"
	"github.com/tendant/simple-idm-access/internal/http/middleware"
	"github.com/tendant/simple-idm-access/internal/httputil"
	"github.com/tendant/simple-idm-access/internal/outbox"
	"github.com/tendant/simple-idm-access/pkg/auth"
	"github.com/tendant/simple-idm-access/pkg/repository"
)

type (
	// RateLimitConfig holds per-IP rate limits.
	RateLimitConfig = config.RateLimitConfig
	// SecurityHeadersConfig holds response security header values.
	SecurityHeadersConfig = config.SecurityHeadersConfig
	// OutboxConfig controls the side-effect dispatcher.
	OutboxConfig = outbox.Config
	// PasswordChangedSender delivers password change notices.
	PasswordChangedSender = outbox.PasswordChangedSender
)

// Config holds the configuration for the IDM library.
type Config struct {
	// DB is the database connection (required).
	DB *sql.DB

	// Dialect of DB (default: postgres).
	Dialect repository.Dialect

	// AutoMigrate creates missing tables. Without it New fails when the
	// schema is missing.
	AutoMigrate bool

	// JWTSecret verifies actor tokens (required).
	JWTSecret string

	// JWTIssuer, when set, must match the iss claim of actor tokens.
	JWTIssuer string

	// Hasher hashes passwords (default: bcrypt, cost 12).
	Hasher auth.Hasher

	// EmailRules controls address checks on account creation.
	EmailRules auth.EmailRules

	// MFAEncryptionKey encrypts TOTP secrets (32 bytes). Nil disables MFA
	// routes; admin mutations then stay blocked.
	MFAEncryptionKey []byte

	// MFAIssuer is shown in authenticator apps (default: "simple-idm-access").
	MFAIssuer string

	// PasswordChanged receives password change notices (optional).
	PasswordChanged PasswordChangedSender

	// Outbox buffers audit records and notices (default: 256 tasks, 2 workers).
	Outbox OutboxConfig

	// RateLimit applies per-IP limits to login, credential and MFA routes.
	// The zero value disables them.
	RateLimit       RateLimitConfig
	SecurityHeaders SecurityHeadersConfig

	// MaxRequestBytes caps request bodies (default: 1 MiB).
	MaxRequestBytes int64

	// Cookie settings for clearing the actor cookie on logout.
	Cookie httputil.CookieConfig

	// Logger is the structured logger (default: slog.Default()).
	Logger *slog.Logger
}

// IDM is the main access-control instance.
type IDM struct {
	config      Config
	auditLog    *repository.AuditRepository
	dispatcher  *outbox.Dispatcher
	credentials *auth.CredentialService
	mfa         *auth.MFAService
	actorTokens *auth.ActorTokenVerifier
}

// New creates a new IDM instance with the given configuration.
// Returns an error if required database tables don't exist and
// AutoMigrate is off.
func New(ctx context.Context, cfg Config) (*IDM, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if cfg.AutoMigrate {
		if err := repository.Migrate(ctx, cfg.DB, cfg.Dialect); err != nil {
			return nil, fmt.Errorf("idm: %w", err)
		}
	} else if err := validateSchema(ctx, cfg.DB, cfg.Dialect); err != nil {
		return nil, err
	}

	// Initialize repositories
	accountsRepo := repository.NewAccountsRepository(cfg.DB, cfg.Dialect)
	backupCodesRepo := repository.NewBackupCodesRepository(cfg.DB)
	auditRepo := repository.NewAuditRepository(cfg.DB)

	// Side effects run off the request path.
	dispatcher := outbox.NewDispatcher(cfg.Outbox, cfg.Logger)
	auditRecorder := outbox.NewAuditRecorder(dispatcher, auditRepo)
	var notifier auth.Notifier
	if cfg.PasswordChanged != nil {
		notifier = outbox.NewNotifier(dispatcher, cfg.PasswordChanged)
	}

	// Initialize services
	credentials, err := auth.NewCredentialService(ctx, accountsRepo, auditRecorder, notifier, auth.ServiceConfig{
		Hasher: cfg.Hasher,
		Email:  cfg.EmailRules,
		Logger: cfg.Logger,
	})
	if err != nil {
		dispatcher.Close()
		return nil, fmt.Errorf("idm: %w", err)
	}

	var mfaService *auth.MFAService
	if cfg.MFAEncryptionKey != nil {
		mfaService, err = auth.NewMFAService(auth.MFAConfig{
			Issuer:        cfg.MFAIssuer,
			EncryptionKey: cfg.MFAEncryptionKey,
		}, accountsRepo, backupCodesRepo, auditRecorder, cfg.Logger, nil)
		if err != nil {
			dispatcher.Close()
			return nil, fmt.Errorf("idm: %w", err)
		}
	}

	return &IDM{
		config:      cfg,
		auditLog:    auditRepo,
		dispatcher:  dispatcher,
		credentials: credentials,
		mfa:         mfaService,
		actorTokens: auth.NewActorTokenVerifier(auth.ActorTokenConfig{
			Secret: []byte(cfg.JWTSecret),
			Issuer: cfg.JWTIssuer,
		}),
	}, nil
}

// Router returns the HTTP handler with every route registered, including
// GET /health.
//
// Routes:
//
//	POST   /v1/accounts                       - Create account (no actor while none exist)
//	GET    /v1/accounts                       - List accounts (admin)
//	GET    /v1/accounts/{id}                  - Get account (self or admin)
//	PATCH  /v1/accounts/{id}                  - Update account (admin with MFA)
//	POST   /v1/accounts/{id}/password-reset   - Reset password (admin with MFA)
//	DELETE /v1/accounts/{id}/mfa              - Disable MFA (admin with MFA)
//	GET    /v1/accounts/{id}/audit-events     - Audit trail (auditLogs:view)
//	POST   /v1/auth/login                     - Login with email/password
//	POST   /v1/auth/logout                    - Logout
//	GET    /v1/auth/password-requirements     - Password policy
//	GET    /v1/me                             - Current account
//	POST   /v1/me/password                    - Change own password
//	GET    /v1/me/mfa                         - MFA status
//	POST   /v1/me/mfa/{setup,enable,verify,disable,backup-codes}
func (i *IDM) Router() http.Handler {
	return httpserver.NewRouter(httpserver.RouterConfig{
		Logger:            i.config.Logger,
		CredentialService: i.credentials,
		MFAService:        i.mfa,
		ActorTokens:       i.actorTokens,
		AuditLog:          i.auditLog,
		RateLimitConfig:   i.config.RateLimit,
		SecurityHeaders:   i.config.SecurityHeaders,
		MaxRequestBytes:   i.config.MaxRequestBytes,
		CookieConfig:      i.config.Cookie,
	})
}

// CredentialService returns the credential service for advanced usage.
func (i *IDM) CredentialService() *auth.CredentialService {
	return i.credentials
}

// MFAService returns the MFA service, or nil when MFA is disabled.
func (i *IDM) MFAService() *auth.MFAService {
	return i.mfa
}

// AuthMiddleware returns middleware that requires a valid actor token.
// Use this to protect your own routes:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(core.AuthMiddleware())
//	    r.Get("/protected", handler)
//	})
func (i *IDM) AuthMiddleware() func(http.Handler) http.Handler {
	return middleware.Auth(i.actorTokens)
}

// GetActorID extracts the acting account ID from a request.
// Use after AuthMiddleware:
//
//	actorID, ok := idm.GetActorID(r)
func GetActorID(r *http.Request) (uuid.UUID, bool) {
	return middleware.GetActorID(r.Context())
}

// Close drains pending audit records and notices.
func (i *IDM) Close() {
	i.dispatcher.Close()
}

func validateConfig(cfg *Config) error {
	if cfg.DB == nil {
		return errors.New("idm: DB is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("idm: JWTSecret is required")
	}
	if cfg.MFAEncryptionKey != nil && len(cfg.MFAEncryptionKey) != 32 {
		return fmt.Errorf("idm: MFAEncryptionKey must be 32 bytes, got %d", len(cfg.MFAEncryptionKey))
	}
	if cfg.Dialect != "" {
		if _, err := repository.ParseDialect(string(cfg.Dialect)); err != nil {
			return fmt.Errorf("idm: %w", err)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Dialect == "" {
		cfg.Dialect = repository.DialectPostgres
	}
	if cfg.Hasher == nil {
		cfg.Hasher = auth.NewBcryptHasher(auth.DefaultBcryptCost)
	}
	if cfg.MFAIssuer == "" {
		cfg.MFAIssuer = "simple-idm-access"
	}
	if cfg.Outbox.BufferSize == 0 {
		cfg.Outbox.BufferSize = 256
	}
	if cfg.Outbox.Workers == 0 {
		cfg.Outbox.Workers = 2
	}
	if cfg.MaxRequestBytes == 0 {
		cfg.MaxRequestBytes = 1 << 20
	}
	if cfg.Cookie.Path == "" {
		cfg.Cookie = httputil.DefaultCookieConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
}

// validateSchema checks that required database tables exist.
func validateSchema(ctx context.Context, db *sql.DB, dialect repository.Dialect) error {
	requiredTables := []string{"accounts", "mfa_backup_codes", "audit_events"}

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1
	`
	if dialect == repository.DialectSQLite {
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name = $1`
	}

	for _, table := range requiredTables {
		var name string
		err := db.QueryRowContext(ctx, query, table).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("idm: missing table '%s' - run migrations first or set AutoMigrate", table)
		}
		if err != nil {
			return fmt.Errorf("idm: failed to check schema: %w", err)
		}
	}

	return nil
}
