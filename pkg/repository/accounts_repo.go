package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-access/pkg/domain"
)

const accountColumns = `
	id, email, password_hash, first_name, last_name, phone, role, organization_id,
	is_active, mfa_enabled, mfa_secret, failed_login_attempts, locked_until,
	last_login_at, created_at, updated_at`

// AccountsRepository handles account persistence.
type AccountsRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewAccountsRepository creates a new accounts repository.
func NewAccountsRepository(db *sql.DB, dialect Dialect) *AccountsRepository {
	return &AccountsRepository{db: db, dialect: dialect}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	a := &domain.Account{}
	var role string
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName, &a.Phone, &role,
		&a.OrganizationID, &a.Active, &a.MFAEnabled, &a.MFASecretRef,
		&a.FailedLoginAttempts, &a.LockedUntil, &a.LastLoginAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if a.Role, err = domain.ParseRole(role); err != nil {
		return nil, fmt.Errorf("account %s: %w", a.ID, err)
	}
	a.LockedUntil = utc(a.LockedUntil)
	a.LastLoginAt = utc(a.LastLoginAt)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

// Get retrieves an account by ID.
func (r *AccountsRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// FindByEmail retrieves an account by email, ignoring case.
func (r *AccountsRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower($1)`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return a, nil
}

// Count returns the number of stored accounts.
func (r *AccountsRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return n, nil
}

// Insert stores a new account. A duplicate email yields domain.ErrConflict.
func (r *AccountsRepository) Insert(ctx context.Context, a *domain.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Email, a.PasswordHash, a.FirstName, a.LastName, a.Phone, string(a.Role),
		a.OrganizationID, a.Active, a.MFAEnabled, a.MFASecretRef,
		a.FailedLoginAttempts, utc(a.LockedUntil), utc(a.LastLoginAt), a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// Patch applies the non-nil fields of patch, bumps updated_at and returns
// the stored account.
func (r *AccountsRepository) Patch(ctx context.Context, id uuid.UUID, patch domain.AccountPatch, now time.Time) (*domain.Account, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.FirstName != nil {
		set("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		set("last_name", *patch.LastName)
	}
	if patch.Phone != nil {
		if *patch.Phone == "" {
			sets = append(sets, "phone = NULL")
		} else {
			set("phone", *patch.Phone)
		}
	}
	if patch.Role != nil {
		set("role", string(*patch.Role))
	}
	if patch.Active != nil {
		set("is_active", *patch.Active)
	}
	if patch.PasswordHash != nil {
		set("password_hash", *patch.PasswordHash)
	}
	if patch.MFAEnabled != nil {
		set("mfa_enabled", *patch.MFAEnabled)
	}
	switch {
	case patch.ClearMFASecret:
		sets = append(sets, "mfa_secret = NULL")
	case patch.MFASecretRef != nil:
		set("mfa_secret", *patch.MFASecretRef)
	}
	if patch.LastLoginAt != nil {
		set("last_login_at", patch.LastLoginAt.UTC())
	}
	set("updated_at", now.UTC())

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE accounts SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, domain.ErrNotFound
	}
	return r.Get(ctx, id)
}

// ListByOrganization returns the accounts of orgID ordered by creation
// time. A nil orgID lists every account.
func (r *AccountsRepository) ListByOrganization(ctx context.Context, orgID *uuid.UUID) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	var args []any
	if orgID != nil {
		query += ` WHERE organization_id = $1`
		args = append(args, *orgID)
	}
	query += ` ORDER BY created_at, email`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

// IncrementFailedLogins records one failed login in a single statement.
// The count restarts at 1 once a previous lock has expired, and the
// account is locked until now+lockout when the count reaches maxAttempts.
// While the account is locked the row is left untouched and the current
// state is returned.
func (r *AccountsRepository) IncrementFailedLogins(ctx context.Context, id uuid.UUID, now time.Time, maxAttempts int, lockout time.Duration) (domain.LoginAttemptState, error) {
	query := fmt.Sprintf(`
		UPDATE accounts
		SET failed_login_attempts = CASE WHEN locked_until IS NULL THEN failed_login_attempts + 1 ELSE 1 END,
		    locked_until = CASE
		        WHEN (CASE WHEN locked_until IS NULL THEN failed_login_attempts + 1 ELSE 1 END) >= $3 THEN %s
		        ELSE NULL
		    END,
		    updated_at = $2
		WHERE id = $1 AND (locked_until IS NULL OR locked_until <= $2)
		RETURNING failed_login_attempts
	`, r.dialect.timestamp("$4"))

	until := now.Add(lockout).UTC()
	var state domain.LoginAttemptState
	err := r.db.QueryRowContext(ctx, query, id, now.UTC(), maxAttempts, until).Scan(&state.FailedAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		// Locked, or gone.
		a, err := r.Get(ctx, id)
		if err != nil {
			return domain.LoginAttemptState{}, err
		}
		return a.AttemptState(), nil
	}
	if err != nil {
		return domain.LoginAttemptState{}, fmt.Errorf("failed to increment failed logins: %w", err)
	}
	if state.FailedAttempts >= maxAttempts {
		state.LockedUntil = &until
	}
	return state, nil
}

// ResetFailedLogins clears the failed login counter and any lock.
func (r *AccountsRepository) ResetFailedLogins(ctx context.Context, id uuid.UUID, now time.Time) error {
	query := `
		UPDATE accounts
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = $2
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, now.UTC())
	if err != nil {
		return fmt.Errorf("failed to reset failed logins: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
