package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr      string
	ServerPort      int
	ShutdownTimeout time.Duration
	MaxRequestBytes int64

	// Database
	DBDriver   string // postgres or sqlite
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	// Password hashing
	HashAlgorithm string // bcrypt or argon2id
	BcryptCost    int

	// Actor tokens are issued by the surrounding application and only
	// verified here.
	JWTSecret string
	JWTIssuer string

	// MFA
	MFAIssuer        string
	MFAEncryptionKey string // 64 hex characters

	// SMTP (optional)
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPassword   string
	SMTPFrom       string
	SMTPFromName   string
	SupportContact string

	// Redis notification queue (optional)
	RedisURL       string
	RedisQueueKey  string
	RedisPollEvery time.Duration

	Outbox          OutboxConfig
	RateLimit       RateLimitConfig
	SecurityHeaders SecurityHeadersConfig
	Validation      ValidationConfig
}

// OutboxConfig controls the in-process side-effect dispatcher.
type OutboxConfig struct {
	BufferSize  int
	Workers     int
	DropIfFull  bool
	TaskTimeout time.Duration
}

// RateLimitConfig holds per-IP rate limits.
type RateLimitConfig struct {
	Enabled bool

	LoginRequestsPerWindow int
	LoginWindow            time.Duration

	// Account creation, password changes and resets.
	CredentialRequestsPerWindow int
	CredentialWindow            time.Duration

	MFARequestsPerWindow int
	MFAWindow            time.Duration
}

// SecurityHeadersConfig holds response security header values.
type SecurityHeadersConfig struct {
	Enabled            bool
	CSP                string
	HSTSMaxAge         int
	FrameOptions       string
	ContentTypeOptions string
	ReferrerPolicy     string
	PermissionsPolicy  string
}

// ValidationConfig holds input validation switches.
type ValidationConfig struct {
	StrictEmailValidation bool
	BlockDisposableEmail  bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		// Server defaults
		ServerAddr:      getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort:      getEnvInt("SERVER_PORT", 8080),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		MaxRequestBytes: int64(getEnvInt("MAX_REQUEST_BYTES", 1<<20)),

		// Database defaults
		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 25432),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "simple_idm_access"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		SQLitePath: getEnv("SQLITE_PATH", "simple-idm-access.db"),

		HashAlgorithm: getEnv("PASSWORD_HASH_ALGORITHM", "bcrypt"),
		BcryptCost:    getEnvInt("BCRYPT_COST", 12),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", ""),

		MFAIssuer:        getEnv("MFA_ISSUER", "simple-idm-access"),
		MFAEncryptionKey: getEnv("MFA_ENCRYPTION_KEY", ""),

		SMTPHost:       getEnv("SMTP_HOST", ""),
		SMTPPort:       getEnvInt("SMTP_PORT", 587),
		SMTPUser:       getEnv("SMTP_USER", ""),
		SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:       getEnv("SMTP_FROM", "no-reply@localhost"),
		SMTPFromName:   getEnv("SMTP_FROM_NAME", ""),
		SupportContact: getEnv("SUPPORT_CONTACT", ""),

		RedisURL:       getEnv("REDIS_URL", ""),
		RedisQueueKey:  getEnv("REDIS_QUEUE_KEY", "simple-idm-access:notify:password_changed"),
		RedisPollEvery: getEnvDuration("REDIS_POLL_INTERVAL", 5*time.Second),

		Outbox: OutboxConfig{
			BufferSize:  getEnvInt("OUTBOX_BUFFER_SIZE", 256),
			Workers:     getEnvInt("OUTBOX_WORKERS", 2),
			DropIfFull:  getEnvBool("OUTBOX_DROP_IF_FULL", true),
			TaskTimeout: getEnvDuration("OUTBOX_TASK_TIMEOUT", 30*time.Second),
		},

		RateLimit: RateLimitConfig{
			Enabled:                     getEnvBool("RATE_LIMIT_ENABLED", true),
			LoginRequestsPerWindow:      getEnvInt("RATE_LIMIT_LOGIN_REQUESTS", 10),
			LoginWindow:                 getEnvDuration("RATE_LIMIT_LOGIN_WINDOW", time.Minute),
			CredentialRequestsPerWindow: getEnvInt("RATE_LIMIT_CREDENTIAL_REQUESTS", 5),
			CredentialWindow:            getEnvDuration("RATE_LIMIT_CREDENTIAL_WINDOW", time.Minute),
			MFARequestsPerWindow:        getEnvInt("RATE_LIMIT_MFA_REQUESTS", 10),
			MFAWindow:                   getEnvDuration("RATE_LIMIT_MFA_WINDOW", time.Minute),
		},

		SecurityHeaders: SecurityHeadersConfig{
			Enabled:            getEnvBool("SECURITY_HEADERS_ENABLED", true),
			CSP:                getEnv("SECURITY_CSP", "default-src 'none'; frame-ancestors 'none'"),
			HSTSMaxAge:         getEnvInt("SECURITY_HSTS_MAX_AGE", 31536000),
			FrameOptions:       getEnv("SECURITY_FRAME_OPTIONS", "DENY"),
			ContentTypeOptions: getEnv("SECURITY_CONTENT_TYPE_OPTIONS", "nosniff"),
			ReferrerPolicy:     getEnv("SECURITY_REFERRER_POLICY", "no-referrer"),
			PermissionsPolicy:  getEnv("SECURITY_PERMISSIONS_POLICY", "camera=(), microphone=(), geolocation=()"),
		},

		Validation: ValidationConfig{
			StrictEmailValidation: getEnvBool("STRICT_EMAIL_VALIDATION", false),
			BlockDisposableEmail:  getEnvBool("BLOCK_DISPOSABLE_EMAIL", false),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch strings.ToLower(c.DBDriver) {
	case "postgres", "postgresql", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	switch strings.ToLower(c.HashAlgorithm) {
	case "bcrypt", "argon2id", "argon2":
	default:
		return fmt.Errorf("PASSWORD_HASH_ALGORITHM must be bcrypt or argon2id, got %q", c.HashAlgorithm)
	}
	if c.MFAEncryptionKey == "" {
		return fmt.Errorf("MFA_ENCRYPTION_KEY is required")
	}
	if _, err := c.MFAKey(); err != nil {
		return err
	}
	return nil
}

// MFAKey decodes the MFA secret encryption key.
func (c *Config) MFAKey() ([]byte, error) {
	key, err := hex.DecodeString(c.MFAEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("MFA_ENCRYPTION_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("MFA_ENCRYPTION_KEY must be 32 bytes (64 hex characters), got %d bytes", len(key))
	}
	return key, nil
}

// HasSMTP returns true if an SMTP host is configured.
func (c *Config) HasSMTP() bool {
	return c.SMTPHost != ""
}

// HasRedis returns true if notices go through the Redis queue.
func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
