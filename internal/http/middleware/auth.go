package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-access/internal/httputil"
	"github.com/tendant/simple-idm-access/pkg/auth"
	"github.com/tendant/simple-idm-access/pkg/domain"
)

type contextKey string

// ActorIDKey is the context key for the acting account ID.
const ActorIDKey contextKey = "actor_id"

// Auth creates middleware that requires a valid actor token.
// Checks Authorization header first, then falls back to cookie for web clients.
func Auth(verifier *auth.ActorTokenVerifier) func(http.Handler) http.Handler {
	return actor(verifier, true)
}

// OptionalAuth creates middleware that attaches the actor when a token is
// present. A present but invalid token is still rejected.
func OptionalAuth(verifier *auth.ActorTokenVerifier) func(http.Handler) http.Handler {
	return actor(verifier, false)
}

func actor(verifier *auth.ActorTokenVerifier, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := actorToken(r)
			if tokenString == "" {
				if required {
					httputil.WriteError(w, nil, domain.NewError(domain.ErrUnauthenticated, "Authentication required."))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			actorID, err := verifier.Verify(tokenString)
			if err != nil {
				httputil.WriteError(w, nil, err)
				return
			}

			ctx := context.WithValue(r.Context(), ActorIDKey, actorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorToken(r *http.Request) string {
	// Authorization header (API clients)
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// Cookie (web clients)
	if token, ok := httputil.GetActorTokenFromCookie(r); ok {
		return token
	}
	return ""
}

// GetActorID extracts the acting account ID from the request context.
func GetActorID(ctx context.Context) (uuid.UUID, bool) {
	actorID, ok := ctx.Value(ActorIDKey).(uuid.UUID)
	return actorID, ok
}

// MustActor returns the actor or writes a 401.
func MustActor(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	actorID, ok := GetActorID(r.Context())
	if !ok {
		httputil.WriteError(w, nil, domain.NewError(domain.ErrUnauthenticated, "Authentication required."))
		return uuid.Nil, false
	}
	return actorID, true
}
