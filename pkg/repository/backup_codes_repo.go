package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-access/pkg/domain"
)

// BackupCodesRepository handles database operations for MFA backup codes
type BackupCodesRepository struct {
	db *sql.DB
}

// NewBackupCodesRepository creates a new MFA backup codes repository
func NewBackupCodesRepository(db *sql.DB) *BackupCodesRepository {
	return &BackupCodesRepository{db: db}
}

// ReplaceBackupCodes deletes the account's codes and inserts codes in a
// single transaction
func (r *BackupCodesRepository) ReplaceBackupCodes(ctx context.Context, accountID uuid.UUID, codes []*domain.BackupCode) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM mfa_backup_codes WHERE account_id = $1`, accountID); err != nil {
			return fmt.Errorf("failed to delete backup codes: %w", err)
		}
		if len(codes) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO mfa_backup_codes (id, account_id, code_hash, used_at, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, code := range codes {
			_, err := stmt.ExecContext(ctx,
				code.ID,
				accountID,
				code.CodeHash,
				utc(code.UsedAt),
				code.CreatedAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("failed to insert backup code: %w", err)
			}
		}
		return nil
	})
}

// ConsumeBackupCode marks one unused code with the given hash as used and
// reports whether such a code existed
func (r *BackupCodesRepository) ConsumeBackupCode(ctx context.Context, accountID uuid.UUID, codeHash string, now time.Time) (bool, error) {
	query := `
		UPDATE mfa_backup_codes
		SET used_at = $3
		WHERE id = (
			SELECT id FROM mfa_backup_codes
			WHERE account_id = $1 AND code_hash = $2 AND used_at IS NULL
			LIMIT 1
		) AND used_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, accountID, codeHash, now.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to consume backup code: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// CountUnusedBackupCodes returns the number of unused backup codes for an account
func (r *BackupCodesRepository) CountUnusedBackupCodes(ctx context.Context, accountID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM mfa_backup_codes
		WHERE account_id = $1 AND used_at IS NULL
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unused backup codes: %w", err)
	}
	return count, nil
}

// DeleteBackupCodes removes all backup codes for an account
func (r *BackupCodesRepository) DeleteBackupCodes(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mfa_backup_codes WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}
	return nil
}
