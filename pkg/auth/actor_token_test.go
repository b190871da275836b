package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-idm-access/pkg/domain"
)

func signActor(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func TestActorTokenVerifier(t *testing.T) {
	secret := []byte("test-secret")
	v := NewActorTokenVerifier(ActorTokenConfig{Secret: secret, Issuer: "portal"})
	actor := uuid.New()
	now := time.Now()

	valid := jwt.RegisteredClaims{
		Subject:   actor.String(),
		Issuer:    "portal",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	with := func(mut func(c *jwt.RegisteredClaims)) jwt.RegisteredClaims {
		c := valid
		mut(&c)
		return c
	}

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid", signActor(t, jwt.SigningMethodHS256, secret, valid), false},
		{"empty", "", true},
		{"garbage", "not.a.token", true},
		{"wrong secret", signActor(t, jwt.SigningMethodHS256, []byte("other"), valid), true},
		{"wrong algorithm", signActor(t, jwt.SigningMethodHS512, secret, valid), true},
		{"expired", signActor(t, jwt.SigningMethodHS256, secret, with(func(c *jwt.RegisteredClaims) {
			c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
		})), true},
		{"no expiry", signActor(t, jwt.SigningMethodHS256, secret, with(func(c *jwt.RegisteredClaims) {
			c.ExpiresAt = nil
		})), true},
		{"wrong issuer", signActor(t, jwt.SigningMethodHS256, secret, with(func(c *jwt.RegisteredClaims) {
			c.Issuer = "elsewhere"
		})), true},
		{"subject not a uuid", signActor(t, jwt.SigningMethodHS256, secret, with(func(c *jwt.RegisteredClaims) {
			c.Subject = "admin"
		})), true},
		{"unsigned", signActor(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(tt.token)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrUnauthenticated) {
					t.Errorf("Verify() error = %v, want ErrUnauthenticated", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if got != actor {
				t.Errorf("Verify() = %v, want %v", got, actor)
			}
		})
	}
}

func TestActorTokenVerifier_NoIssuer(t *testing.T) {
	secret := []byte("test-secret")
	v := NewActorTokenVerifier(ActorTokenConfig{Secret: secret})
	actor := uuid.New()

	token := signActor(t, jwt.SigningMethodHS256, secret, jwt.RegisteredClaims{
		Subject:   actor.String(),
		Issuer:    "anyone",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	if got, err := v.Verify(token); err != nil || got != actor {
		t.Errorf("Verify() = %v, %v", got, err)
	}
}
