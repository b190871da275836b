package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-idm-access/pkg/domain"
)

var errInvalidActorToken = &domain.Error{Kind: domain.ErrUnauthenticated, Message: "Invalid or expired token."}

// ActorTokenConfig configures actor token verification.
type ActorTokenConfig struct {
	Secret []byte
	// Issuer, when set, must match the token's iss claim.
	Issuer string
	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration
}

// ActorTokenVerifier verifies the HS256 bearer tokens the surrounding
// application issues and yields the acting account id (the sub claim).
type ActorTokenVerifier struct {
	config ActorTokenConfig
	parser *jwt.Parser
}

// NewActorTokenVerifier creates an ActorTokenVerifier.
func NewActorTokenVerifier(config ActorTokenConfig) *ActorTokenVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	return &ActorTokenVerifier{config: config, parser: jwt.NewParser(opts...)}
}

// Verify validates tokenString and returns its subject.
func (v *ActorTokenVerifier) Verify(tokenString string) (uuid.UUID, error) {
	if tokenString == "" {
		return uuid.Nil, errInvalidActorToken
	}

	claims := &jwt.RegisteredClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.config.Secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, errInvalidActorToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, errInvalidActorToken
	}
	return id, nil
}
