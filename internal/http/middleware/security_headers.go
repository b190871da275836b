package middleware

import (
	"fmt"
	"net/http"

	"github.com/tendant/simple-idm-access/internal/config"
)

// SecurityHeaders creates middleware that applies response security headers.
// Credential responses are never cacheable.
func SecurityHeaders(cfg config.SecurityHeadersConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	headers := map[string]string{
		"Content-Security-Policy": cfg.CSP,
		"X-Frame-Options":         cfg.FrameOptions,
		"X-Content-Type-Options":  cfg.ContentTypeOptions,
		"Referrer-Policy":         cfg.ReferrerPolicy,
		"Permissions-Policy":      cfg.PermissionsPolicy,
		"Cache-Control":           "no-store",
	}
	if cfg.HSTSMaxAge > 0 {
		headers["Strict-Transport-Security"] = fmt.Sprintf("max-age=%d; includeSubDomains", cfg.HSTSMaxAge)
	}
	for name, value := range headers {
		if value == "" {
			delete(headers, name)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for name, value := range headers {
				h.Set(name, value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
