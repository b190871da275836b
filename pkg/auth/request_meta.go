package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/tendant/simple-idm-access/pkg/domain"
)

// RequestMeta describes the client behind an operation. It is attached
// to audit events.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type requestMetaKey struct{}

// WithRequestMeta returns a context carrying meta.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the metadata stored by WithRequestMeta.
func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}

// RequestMetaFromHTTP extracts client metadata from r.
func RequestMetaFromHTTP(r *http.Request) RequestMeta {
	return RequestMeta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func stampRequest(ctx context.Context, event *domain.AuditEvent) {
	if meta, ok := RequestMetaFrom(ctx); ok {
		event.IPAddress = meta.IPAddress
		event.UserAgent = meta.UserAgent
	}
}

// clientIP extracts the client IP address from the request.
// Checks X-Forwarded-For and X-Real-IP headers before falling back to RemoteAddr.
func clientIP(r *http.Request) string {
	// X-Forwarded-For may contain multiple IPs; the first is the client.
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(ips[0]); ip != "" {
			return ip
		}
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	// RemoteAddr is "IP:port"
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return strings.Trim(addr[:idx], "[]")
	}
	return addr
}
