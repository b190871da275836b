package auth

import (
	"context"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	ctx := context.Background()
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash(ctx, "Correct-Horse-42")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if hash == "Correct-Horse-42" || !strings.HasPrefix(hash, "$2") {
		t.Fatalf("Hash = %q, want a bcrypt hash", hash)
	}

	tests := []struct {
		name     string
		password string
		want     bool
	}{
		{"correct password", "Correct-Horse-42", true},
		{"wrong password", "Correct-Horse-43", false},
		{"empty password", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Same inputs give the same answer every time.
			for i := 0; i < 3; i++ {
				got, err := h.Verify(ctx, tt.password, hash)
				if err != nil {
					t.Fatalf("Verify failed: %v", err)
				}
				if got != tt.want {
					t.Errorf("Verify() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestBcryptHasher_SaltsEachHash(t *testing.T) {
	ctx := context.Background()
	h := NewBcryptHasher(bcrypt.MinCost)

	a, err := h.Hash(ctx, "same-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	b, err := h.Hash(ctx, "same-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if a == b {
		t.Error("two hashes of the same password should differ")
	}
}

func TestBcryptHasher_MalformedHash(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	ok, err := h.Verify(context.Background(), "anything", "not-a-hash")
	if ok {
		t.Error("Verify against malformed hash returned true")
	}
	if err == nil {
		t.Error("Verify against malformed hash should report an error")
	}
}

func TestBcryptHasher_LongPasswords(t *testing.T) {
	ctx := context.Background()
	h := NewBcryptHasher(bcrypt.MinCost)

	tests := []struct {
		name     string
		password string
	}{
		{"100 ascii characters", "Aa1!" + strings.Repeat("x", 96)},
		{"128 multi-byte characters", "Aa1!" + strings.Repeat("é", 124)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := h.Hash(ctx, tt.password)
			if err != nil {
				t.Fatalf("Hash failed: %v", err)
			}
			ok, err := h.Verify(ctx, tt.password, hash)
			if err != nil || !ok {
				t.Errorf("Verify(same) = %v, %v; want true, nil", ok, err)
			}
			// Differs only after byte 72.
			ok, err = h.Verify(ctx, tt.password+"y", hash)
			if err != nil || ok {
				t.Errorf("Verify(longer) = %v, %v; want false, nil", ok, err)
			}
		})
	}
}

func TestNewBcryptHasher_CostBounds(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultBcryptCost},
		{bcrypt.MaxCost + 1, DefaultBcryptCost},
		{bcrypt.MinCost, bcrypt.MinCost},
		{12, 12},
	}
	for _, tt := range tests {
		if got := NewBcryptHasher(tt.in).Cost(); got != tt.want {
			t.Errorf("NewBcryptHasher(%d).Cost() = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestArgon2Hasher(t *testing.T) {
	ctx := context.Background()
	h := NewArgon2Hasher()

	hash, err := h.Hash(ctx, "Correct-Horse-42")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$") {
		t.Errorf("Hash = %q, want PHC argon2id format", hash)
	}

	ok, err := h.Verify(ctx, "Correct-Horse-42", hash)
	if err != nil || !ok {
		t.Errorf("Verify(correct) = %v, %v; want true, nil", ok, err)
	}
	ok, err = h.Verify(ctx, "wrong", hash)
	if err != nil || ok {
		t.Errorf("Verify(wrong) = %v, %v; want false, nil", ok, err)
	}
}

func TestArgon2Hasher_MalformedHash(t *testing.T) {
	h := NewArgon2Hasher()
	for _, encoded := range []string{
		"",
		"plain",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$garbage$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$",
	} {
		ok, err := h.Verify(context.Background(), "pw", encoded)
		if ok || err == nil {
			t.Errorf("Verify(%q) = %v, %v; want false, error", encoded, ok, err)
		}
	}
}

func TestNewHasher(t *testing.T) {
	if h, err := NewHasher("bcrypt", 10); err != nil {
		t.Errorf("NewHasher(bcrypt) error = %v", err)
	} else if _, ok := h.(*BcryptHasher); !ok {
		t.Errorf("NewHasher(bcrypt) = %T", h)
	}
	if h, err := NewHasher("argon2id", 0); err != nil {
		t.Errorf("NewHasher(argon2id) error = %v", err)
	} else if _, ok := h.(*Argon2Hasher); !ok {
		t.Errorf("NewHasher(argon2id) = %T", h)
	}
	if _, err := NewHasher("md5", 0); err == nil {
		t.Error("NewHasher(md5) should fail")
	}
}

func TestHasher_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewBcryptHasher(bcrypt.MinCost).Hash(ctx, "pw"); err == nil {
		t.Error("Hash with canceled context should fail")
	}
}
