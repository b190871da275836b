package domain

import (
	"time"

	"github.com/google/uuid"
)

// MFAMethod identifies how an MFA code was accepted.
type MFAMethod string

const (
	MFAMethodTOTP       MFAMethod = "totp"
	MFAMethodBackupCode MFAMethod = "backup_code"
)

// BackupCode is a one-time MFA fallback code, stored hashed.
type BackupCode struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}

// IsUsed returns true if the code has been consumed.
func (c *BackupCode) IsUsed() bool {
	return c.UsedAt != nil
}

// MFASetup is returned once when enrolment starts.
type MFASetup struct {
	Secret        string   `json:"secret"` // base32, for manual entry
	OTPAuthURL    string   `json:"otpauth_url"`
	QRCodeDataURI string   `json:"qr_code_data_uri"`
	BackupCodes   []string `json:"backup_codes"`
}

// MFAStatus summarises an account's MFA enrolment.
type MFAStatus struct {
	Enabled              bool `json:"mfa_enabled"`
	HasBackupCodes       bool `json:"has_backup_codes"`
	BackupCodesRemaining int  `json:"backup_codes_remaining"`
}
