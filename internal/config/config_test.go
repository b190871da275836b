package config

import (
	"strings"
	"testing"
	"time"
)

const testMFAKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-key")
	t.Setenv("MFA_ENCRYPTION_KEY", testMFAKey)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	for _, v := range []string{"SERVER_ADDR", "SERVER_PORT", "DB_DRIVER", "DB_HOST", "DB_PORT", "DB_SSLMODE",
		"PASSWORD_HASH_ALGORITHM", "BCRYPT_COST", "REDIS_URL", "SMTP_HOST", "RATE_LIMIT_ENABLED"} {
		t.Setenv(v, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ServerAddr != "0.0.0.0" {
		t.Errorf("ServerAddr = %q, want %q", cfg.ServerAddr, "0.0.0.0")
	}
	if cfg.ServerPort != 8080 {
		t.Errorf("ServerPort = %d, want %d", cfg.ServerPort, 8080)
	}
	if cfg.DBDriver != "postgres" || cfg.DBPort != 25432 || cfg.DBSSLMode != "disable" {
		t.Errorf("database = %s:%d sslmode=%s", cfg.DBDriver, cfg.DBPort, cfg.DBSSLMode)
	}
	if cfg.HashAlgorithm != "bcrypt" || cfg.BcryptCost != 12 {
		t.Errorf("hashing = %s cost %d", cfg.HashAlgorithm, cfg.BcryptCost)
	}
	if cfg.HasSMTP() || cfg.HasRedis() {
		t.Error("SMTP and Redis should be off by default")
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.LoginRequestsPerWindow != 10 || cfg.RateLimit.LoginWindow != time.Minute {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Outbox.BufferSize != 256 || cfg.Outbox.Workers != 2 || !cfg.Outbox.DropIfFull {
		t.Errorf("Outbox = %+v", cfg.Outbox)
	}
	if !cfg.SecurityHeaders.Enabled || cfg.SecurityHeaders.FrameOptions != "DENY" {
		t.Errorf("SecurityHeaders = %+v", cfg.SecurityHeaders)
	}
	key, err := cfg.MFAKey()
	if err != nil || len(key) != 32 {
		t.Errorf("MFAKey() = %d bytes, %v", len(key), err)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/access.db")
	t.Setenv("PASSWORD_HASH_ALGORITHM", "argon2id")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("RATE_LIMIT_LOGIN_WINDOW", "30s")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("STRICT_EMAIL_VALIDATION", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ServerPort != 9090 {
		t.Errorf("ServerPort = %d, want %d", cfg.ServerPort, 9090)
	}
	if cfg.DBDriver != "sqlite" || cfg.SQLitePath != "/tmp/access.db" {
		t.Errorf("database = %s %s", cfg.DBDriver, cfg.SQLitePath)
	}
	if cfg.HashAlgorithm != "argon2id" {
		t.Errorf("HashAlgorithm = %q", cfg.HashAlgorithm)
	}
	if cfg.RateLimit.Enabled || cfg.RateLimit.LoginWindow != 30*time.Second {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if !cfg.HasRedis() || !cfg.HasSMTP() {
		t.Error("Redis and SMTP should be configured")
	}
	if !cfg.Validation.StrictEmailValidation {
		t.Error("StrictEmailValidation should be true")
	}
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("RATE_LIMIT_ENABLED", "maybe")
	t.Setenv("OUTBOX_TASK_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerPort != 8080 || !cfg.RateLimit.Enabled || cfg.Outbox.TaskTimeout != 30*time.Second {
		t.Errorf("fallbacks not applied: port=%d ratelimit=%v timeout=%v",
			cfg.ServerPort, cfg.RateLimit.Enabled, cfg.Outbox.TaskTimeout)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing jwt secret", map[string]string{"JWT_SECRET": ""}, "JWT_SECRET is required"},
		{"missing mfa key", map[string]string{"MFA_ENCRYPTION_KEY": ""}, "MFA_ENCRYPTION_KEY is required"},
		{"non-hex mfa key", map[string]string{"MFA_ENCRYPTION_KEY": "zz"}, "hex encoded"},
		{"short mfa key", map[string]string{"MFA_ENCRYPTION_KEY": "0011"}, "32 bytes"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"unknown hash", map[string]string{"PASSWORD_HASH_ALGORITHM": "md5"}, "PASSWORD_HASH_ALGORITHM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
