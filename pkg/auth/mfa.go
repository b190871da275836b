package auth

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/tendant/simple-idm-access/pkg/domain"
)

const (
	// TOTP parameters
	totpDigits = otp.DigitsSix
	totpPeriod = 30
	totpWindow = 1 // Allow ±30 seconds clock drift

	// Backup code parameters
	backupCodeLength = 8
	backupCodeCount  = 10
	backupCodeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// BackupCodeStore persists hashed one-time MFA backup codes.
type BackupCodeStore interface {
	// ReplaceBackupCodes deletes the account's codes and stores codes.
	ReplaceBackupCodes(ctx context.Context, accountID uuid.UUID, codes []*domain.BackupCode) error
	// ConsumeBackupCode marks an unused code as used and reports whether
	// one was found.
	ConsumeBackupCode(ctx context.Context, accountID uuid.UUID, codeHash string, now time.Time) (bool, error)
	CountUnusedBackupCodes(ctx context.Context, accountID uuid.UUID) (int, error)
	DeleteBackupCodes(ctx context.Context, accountID uuid.UUID) error
}

// MFAConfig contains configuration for the MFA service
type MFAConfig struct {
	Issuer        string // e.g., "Simple IDM"
	EncryptionKey []byte // 32 bytes for AES-256
}

// MFAVerification is the outcome of a successful MFA code check.
type MFAVerification struct {
	Method               domain.MFAMethod `json:"method"`
	BackupCodesRemaining int              `json:"backup_codes_remaining,omitempty"`
}

// MFAService handles TOTP enrolment and verification.
type MFAService struct {
	config     MFAConfig
	accounts   AccountStore
	codes      BackupCodeStore
	privileges *PrivilegeVerifier
	audit      AuditRecorder
	logger     *slog.Logger
	now        Clock
}

// NewMFAService creates a new MFA service.
func NewMFAService(config MFAConfig, accounts AccountStore, codes BackupCodeStore, audit AuditRecorder, logger *slog.Logger, clock Clock) (*MFAService, error) {
	if len(config.EncryptionKey) != 32 {
		return nil, fmt.Errorf("MFA encryption key must be 32 bytes, got %d", len(config.EncryptionKey))
	}
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &MFAService{
		config:     config,
		accounts:   accounts,
		codes:      codes,
		privileges: NewPrivilegeVerifier(accounts),
		audit:      audit,
		logger:     logger,
		now:        clock,
	}, nil
}

// Setup generates a TOTP secret and backup codes for an admin account.
// MFA stays disabled until VerifyAndEnable succeeds.
func (s *MFAService) Setup(ctx context.Context, accountID uuid.UUID) (*domain.MFASetup, error) {
	account, err := s.privileges.loadActor(ctx, accountID, "User not found.")
	if err != nil {
		return nil, err
	}
	if !account.Role.IsAdmin() {
		return nil, &domain.Error{Kind: domain.ErrForbidden, Message: "MFA is only available for admin accounts."}
	}
	if account.MFAEnabled {
		return nil, &domain.Error{Kind: domain.ErrMFAAlreadyEnabled, Message: "MFA is already enabled. Disable it before setting it up again."}
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.config.Issuer,
		AccountName: account.Email,
		Period:      totpPeriod,
		Digits:      totpDigits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	var qrBuf bytes.Buffer
	img, err := key.Image(200, 200)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code image: %w", err)
	}
	if err := png.Encode(&qrBuf, img); err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	qrDataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrBuf.Bytes())

	plainCodes, err := s.storeNewBackupCodes(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	encryptedSecret, err := s.encryptSecret(key.Secret())
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt TOTP secret: %w", err)
	}
	disabled := false
	if _, err := s.accounts.Patch(ctx, account.ID, domain.AccountPatch{
		MFASecretRef: &encryptedSecret,
		MFAEnabled:   &disabled,
	}, s.now()); err != nil {
		return nil, fmt.Errorf("failed to store MFA secret: %w", err)
	}

	s.recordMFAEvent(ctx, account.Principal(), account.Principal(), "setup_started", nil)

	return &domain.MFASetup{
		Secret:        key.Secret(),
		OTPAuthURL:    key.URL(),
		QRCodeDataURI: qrDataURI,
		BackupCodes:   plainCodes,
	}, nil
}

// VerifyAndEnable checks a TOTP code against the pending secret and enables MFA.
func (s *MFAService) VerifyAndEnable(ctx context.Context, accountID uuid.UUID, code string) error {
	account, err := s.privileges.loadActor(ctx, accountID, "User not found.")
	if err != nil {
		return err
	}
	if account.MFAEnabled {
		return &domain.Error{Kind: domain.ErrMFAAlreadyEnabled, Message: "MFA is already enabled."}
	}
	if account.MFASecretRef == nil {
		return &domain.Error{Kind: domain.ErrMFANotInitiated, Message: "MFA setup not initiated. Start setup first."}
	}

	valid, err := s.validateTOTP(account, code)
	if err != nil {
		return err
	}
	if !valid {
		return errInvalidTOTP()
	}

	enabled := true
	if _, err := s.accounts.Patch(ctx, account.ID, domain.AccountPatch{MFAEnabled: &enabled}, s.now()); err != nil {
		return fmt.Errorf("failed to enable MFA: %w", err)
	}

	s.recordMFAEvent(ctx, account.Principal(), account.Principal(), "enabled",
		map[string]any{"mfaEnabled": true})
	s.logger.Info("MFA enabled", "account_id", account.ID)
	return nil
}

// VerifyCode accepts a TOTP code or, failing that, an unused backup code,
// which is consumed.
func (s *MFAService) VerifyCode(ctx context.Context, accountID uuid.UUID, code string) (*MFAVerification, error) {
	account, err := s.enabledAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	valid, err := s.validateTOTP(account, code)
	if err != nil {
		return nil, err
	}
	if valid {
		return &MFAVerification{Method: domain.MFAMethodTOTP}, nil
	}

	consumed, err := s.codes.ConsumeBackupCode(ctx, account.ID, hashBackupCode(code), s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to consume backup code: %w", err)
	}
	if !consumed {
		return nil, &domain.Error{Kind: domain.ErrInvalidMFACode, Message: "Invalid MFA code"}
	}

	remaining, err := s.codes.CountUnusedBackupCodes(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count backup codes: %w", err)
	}

	s.recordMFAEvent(ctx, account.Principal(), account.Principal(), "backup_code_used",
		map[string]any{"backupCodesRemaining": remaining})
	return &MFAVerification{Method: domain.MFAMethodBackupCode, BackupCodesRemaining: remaining}, nil
}

// Disable turns MFA off for targetID. Account holders must confirm with a
// current code; admins may disable MFA for accounts in their organization.
func (s *MFAService) Disable(ctx context.Context, actorID, targetID uuid.UUID, code string) error {
	var (
		actor  *domain.Principal
		target *domain.Account
	)
	if actorID == targetID {
		account, err := s.privileges.loadActor(ctx, actorID, "Acting user not found.")
		if err != nil {
			return err
		}
		actor = account.Principal()
		target, err = s.enabledAccount(ctx, targetID)
		if err != nil {
			return err
		}
		if _, err := s.VerifyCode(ctx, targetID, code); err != nil {
			return err
		}
	} else {
		var err error
		actor, err = s.privileges.VerifyAdmin(ctx, actorID)
		if err != nil {
			return err
		}
		if err := s.privileges.VerifyAdminMFA(ctx, actorID); err != nil {
			return err
		}
		target, err = s.enabledAccount(ctx, targetID)
		if err != nil {
			return err
		}
		if err := checkSameOrganization(actor.OrganizationID, target.OrganizationID); err != nil {
			return err
		}
	}

	if err := s.codes.DeleteBackupCodes(ctx, target.ID); err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}
	disabled := false
	if _, err := s.accounts.Patch(ctx, target.ID, domain.AccountPatch{
		MFAEnabled:     &disabled,
		ClearMFASecret: true,
	}, s.now()); err != nil {
		return fmt.Errorf("failed to disable MFA: %w", err)
	}

	s.recordMFAEvent(ctx, actor, target.Principal(), "disabled",
		map[string]any{"mfaEnabled": false})
	s.logger.Info("MFA disabled", "account_id", target.ID, "actor_id", actor.ID)
	return nil
}

// RegenerateBackupCodes replaces all backup codes after a TOTP check.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, accountID uuid.UUID, code string) ([]string, error) {
	account, err := s.enabledAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	valid, err := s.validateTOTP(account, code)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, errInvalidTOTP()
	}

	plain, err := s.storeNewBackupCodes(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	s.recordMFAEvent(ctx, account.Principal(), account.Principal(), "backup_codes_regenerated", nil)
	return plain, nil
}

// Status returns the MFA status of accountID.
func (s *MFAService) Status(ctx context.Context, accountID uuid.UUID) (*domain.MFAStatus, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.Error{Kind: domain.ErrNotFound, Message: "User not found."}
	}
	if err != nil {
		return nil, err
	}

	status := &domain.MFAStatus{Enabled: account.MFAEnabled}
	if !account.MFAEnabled {
		return status, nil
	}

	remaining, err := s.codes.CountUnusedBackupCodes(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	status.HasBackupCodes = remaining > 0
	status.BackupCodesRemaining = remaining
	return status, nil
}

func (s *MFAService) enabledAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.privileges.loadActor(ctx, accountID, "User not found.")
	if err != nil {
		return nil, err
	}
	if !account.MFAEnabled || account.MFASecretRef == nil {
		return nil, &domain.Error{Kind: domain.ErrMFANotEnabled, Message: "MFA not enabled for this user"}
	}
	return account, nil
}

func (s *MFAService) validateTOTP(account *domain.Account, code string) (bool, error) {
	secret, err := s.decryptSecret(*account.MFASecretRef)
	if err != nil {
		return false, fmt.Errorf("failed to decrypt TOTP secret: %w", err)
	}

	valid, err := totp.ValidateCustom(strings.TrimSpace(code), secret, s.now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpWindow,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// Malformed codes are just wrong codes.
		return false, nil
	}
	return valid, nil
}

func (s *MFAService) storeNewBackupCodes(ctx context.Context, accountID uuid.UUID) ([]string, error) {
	now := s.now()
	plain := make([]string, backupCodeCount)
	hashed := make([]*domain.BackupCode, backupCodeCount)
	for i := range plain {
		code, err := generateBackupCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		plain[i] = code
		hashed[i] = &domain.BackupCode{
			ID:        uuid.New(),
			AccountID: accountID,
			CodeHash:  hashBackupCode(code),
			CreatedAt: now,
		}
	}

	if err := s.codes.ReplaceBackupCodes(ctx, accountID, hashed); err != nil {
		return nil, fmt.Errorf("failed to store backup codes: %w", err)
	}
	return plain, nil
}

func (s *MFAService) recordMFAEvent(ctx context.Context, actor, target *domain.Principal, step string, changes map[string]any) {
	if s.audit == nil {
		return
	}
	event := domain.AuditEvent{
		ID:         uuid.New(),
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		ActorName:  actor.FullName(),
		Action:     domain.AuditActionUpdate,
		EntityType: domain.EntityTypeUser,
		EntityID:   target.ID.String(),
		EntityName: target.FullName(),
		Changes:    changes,
		Metadata:   map[string]string{"mfa": step},
		Timestamp:  s.now(),
	}
	stampRequest(ctx, &event)
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("failed to record audit event", "error", err, "mfa", step, "entity_id", event.EntityID)
	}
}

// encryptSecret encrypts a plaintext secret using AES-256-GCM
func (s *MFAService) encryptSecret(plaintext string) (string, error) {
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decryptSecret decrypts an encrypted secret using AES-256-GCM
func (s *MFAService) decryptSecret(encrypted string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

func (s *MFAService) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.config.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// generateBackupCode returns backupCodeLength characters from backupCodeChars.
func generateBackupCode() (string, error) {
	limit := big.NewInt(int64(len(backupCodeChars)))
	code := make([]byte, backupCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		code[i] = backupCodeChars[n.Int64()]
	}
	return string(code), nil
}

// hashBackupCode returns the hex SHA-256 of the normalized code.
func hashBackupCode(code string) string {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func errInvalidTOTP() error {
	return &domain.Error{Kind: domain.ErrInvalidMFACode, Message: "Invalid TOTP code. Please try again."}
}
