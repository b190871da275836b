package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/tendant/simple-idm-access/internal/config"
	"github.com/tendant/simple-idm-access/internal/httputil"
)

// RateLimitConfig holds rate limiting configuration for a specific endpoint type.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Logger   *slog.Logger
}

// RateLimit creates an IP-based rate limiter middleware with logging.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				cfg.Logger.Warn("rate limit exceeded",
					"ip", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
					"user_agent", r.UserAgent(),
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		}),
	)
}

// NoRateLimit returns a no-op middleware when rate limiting is disabled.
func NoRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// Rate limiter names used by the router.
const (
	LimitLogin      = "login"
	LimitCredential = "credential"
	LimitMFA        = "mfa"
)

// CreateRateLimiters creates rate limiting middleware functions based on configuration.
func CreateRateLimiters(cfg config.RateLimitConfig, logger *slog.Logger) map[string]func(http.Handler) http.Handler {
	if !cfg.Enabled {
		noOp := NoRateLimit()
		return map[string]func(http.Handler) http.Handler{
			LimitLogin:      noOp,
			LimitCredential: noOp,
			LimitMFA:        noOp,
		}
	}

	return map[string]func(http.Handler) http.Handler{
		LimitLogin: RateLimit(RateLimitConfig{
			Requests: cfg.LoginRequestsPerWindow,
			Window:   cfg.LoginWindow,
			Logger:   logger,
		}),
		LimitCredential: RateLimit(RateLimitConfig{
			Requests: cfg.CredentialRequestsPerWindow,
			Window:   cfg.CredentialWindow,
			Logger:   logger,
		}),
		LimitMFA: RateLimit(RateLimitConfig{
			Requests: cfg.MFARequestsPerWindow,
			Window:   cfg.MFAWindow,
			Logger:   logger,
		}),
	}
}
