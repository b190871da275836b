package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-access/pkg/domain"
)

func TestAccountsRepository_InsertAndGet(t *testing.T) {
	repo := NewAccountsRepository(newTestDB(t), DialectSQLite)
	ctx := context.Background()
	org := uuid.New()

	a := newAccount("ada@example.com", &org)
	a.Phone = stringPtr("+1 555 0100")
	if err := repo.Insert(ctx, a); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := repo.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Email != a.Email || got.Role != domain.RoleStaff || !got.Active || got.MFAEnabled {
		t.Errorf("Get() = %+v", got)
	}
	if got.OrganizationID == nil || *got.OrganizationID != org {
		t.Errorf("OrganizationID = %v, want %v", got.OrganizationID, org)
	}
	if got.Phone == nil || *got.Phone != "+1 555 0100" {
		t.Errorf("Phone = %v", got.Phone)
	}
	if got.LockedUntil != nil || got.LastLoginAt != nil || got.MFASecretRef != nil {
		t.Errorf("optional fields should be nil: %+v", got)
	}
	if !got.CreatedAt.Equal(testNow) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, testNow)
	}

	byEmail, err := repo.FindByEmail(ctx, "ADA@Example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if byEmail.ID != a.ID {
		t.Errorf("FindByEmail() id = %v, want %v", byEmail.ID, a.ID)
	}

	n, err := repo.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("Count() = %d, %v; want 1", n, err)
	}
}

func TestAccountsRepository_NotFound(t *testing.T) {
	repo := NewAccountsRepository(newTestDB(t), DialectSQLite)
	ctx := context.Background()

	if _, err := repo.Get(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := repo.FindByEmail(ctx, "nobody@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FindByEmail() error = %v, want ErrNotFound", err)
	}
	if _, err := repo.Patch(ctx, uuid.New(), domain.AccountPatch{}, testNow); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Patch() error = %v, want ErrNotFound", err)
	}
	if err := repo.ResetFailedLogins(ctx, uuid.New(), testNow); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ResetFailedLogins() error = %v, want ErrNotFound", err)
	}
	if _, err := repo.IncrementFailedLogins(ctx, uuid.New(), testNow, 5, 15*time.Minute); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("IncrementFailedLogins() error = %v, want ErrNotFound", err)
	}
}

func TestAccountsRepository_DuplicateEmail(t *testing.T) {
	repo := NewAccountsRepository(newTestDB(t), DialectSQLite)
	ctx := context.Background()

	if err := repo.Insert(ctx, newAccount("dup@example.com", nil)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	err := repo.Insert(ctx, newAccount("DUP@example.com", nil))
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Insert(duplicate) error = %v, want ErrConflict", err)
	}
}

func TestAccountsRepository_Patch(t *testing.T) {
	repo := NewAccountsRepository(newTestDB(t), DialectSQLite)
	ctx := context.Background()

	a := newAccount("patch@example.com", nil)
	a.Phone = stringPtr("555")
	a.MFASecretRef = stringPtr("sealed")
	if err := repo.Insert(ctx, a); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	later := testNow.Add(time.Hour)
	role := domain.RoleAccountant
	inactive := false
	got, err := repo.Patch(ctx, a.ID, domain.AccountPatch{
		FirstName:   stringPtr("Grace"),
		Phone:       stringPtr(""),
		Role:        &role,
		Active:      &inactive,
		LastLoginAt: &later,
	}, later)
	if err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	if got.FirstName != "Grace" || got.LastName != "Lovelace" {
		t.Errorf("names = %q %q", got.FirstName, got.LastName)
	}
	if got.Phone != nil {
		t.Errorf("Phone = %q, want cleared", *got.Phone)
	}
	if got.Role != domain.RoleAccountant || got.Active {
		t.Errorf("role/active = %v/%v", got.Role, got.Active)
	}
	if got.LastLoginAt == nil || !got.LastLoginAt.Equal(later) {
		t.Errorf("LastLoginAt = %v, want %v", got.LastLoginAt, later)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, later)
	}
	if got.MFASecretRef == nil || *got.MFASecretRef != "sealed" {
		t.Errorf("MFASecretRef changed: %v", got.MFASecretRef)
	}

	enabled := true
	got, err = repo.Patch(ctx, a.ID, domain.AccountPatch{MFAEnabled: &enabled, ClearMFASecret: true}, later)
	if err != nil {
		t.Fatalf("Patch(mfa) error = %v", err)
	}
	if !got.MFAEnabled || got.MFASecretRef != nil {
		t.Errorf("mfa = %v secret = %v", got.MFAEnabled, got.MFASecretRef)
	}

	// An empty patch still bumps updated_at.
	evenLater := later.Add(time.Minute)
	got, err = repo.Patch(ctx, a.ID, domain.AccountPatch{}, evenLater)
	if err != nil {
		t.Fatalf("Patch(empty) error = %v", err)
	}
	if !got.UpdatedAt.Equal(evenLater) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, evenLater)
	}
}

func TestAccountsRepository_ListByOrganization(t *testing.T) {
	repo := NewAccountsRepository(newTestDB(t), DialectSQLite)
	ctx := context.Background()
	x, y := uuid.New(), uuid.New()

	for i, a := range []*domain.Account{
		newAccount("x1@example.com", &x),
		newAccount("y1@example.com", &y),
		newAccount("x2@example.com", &x),
		newAccount("none@example.com", nil),
	} {
		a.CreatedAt = testNow.Add(time.Duration(i) * time.Minute)
		if err := repo.Insert(ctx, a); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	inX, err := repo.ListByOrganization(ctx, &x)
	if err != nil {
		t.Fatalf("ListByOrganization(x) error = %v", err)
	}
	if len(inX) != 2 || inX[0].Email != "x1@example.com" || inX[1].Email != "x2@example.com" {
		t.Errorf("ListByOrganization(x) = %v", emails(inX))
	}

	all, err := repo.ListByOrganization(ctx, nil)
	if err != nil {
		t.Fatalf("ListByOrganization(nil) error = %v", err)
	}
	if len(all) != 4 {
		t.Errorf("ListByOrganization(nil) = %v, want 4 accounts", emails(all))
	}
}

func emails(accounts []*domain.Account) []string {
	out := make([]string, len(accounts))
	for i, a := range accounts {
		out[i] = a.Email
	}
	return out
}

func TestAccountsRepository_FailedLogins(t *testing.T) {
	repo := NewAccountsRepository(newTestDB(t), DialectSQLite)
	ctx := context.Background()
	a := newAccount("guard@example.com", nil)
	if err := repo.Insert(ctx, a); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	const maxAttempts = 5
	lockout := 15 * time.Minute

	for i := 1; i < maxAttempts; i++ {
		state, err := repo.IncrementFailedLogins(ctx, a.ID, testNow, maxAttempts, lockout)
		if err != nil {
			t.Fatalf("IncrementFailedLogins() error = %v", err)
		}
		if state.FailedAttempts != i || state.LockedUntil != nil {
			t.Fatalf("after %d failures state = %+v", i, state)
		}
	}

	state, err := repo.IncrementFailedLogins(ctx, a.ID, testNow, maxAttempts, lockout)
	if err != nil {
		t.Fatalf("IncrementFailedLogins() error = %v", err)
	}
	until := testNow.Add(lockout)
	if state.FailedAttempts != maxAttempts || state.LockedUntil == nil || !state.LockedUntil.Equal(until) {
		t.Fatalf("threshold state = %+v, want locked until %v", state, until)
	}

	stored, err := repo.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.LockedUntil == nil || !stored.LockedUntil.Equal(until) {
		t.Fatalf("stored LockedUntil = %v, want %v", stored.LockedUntil, until)
	}

	// Failures during the lock do not extend it.
	during := testNow.Add(10 * time.Minute)
	state, err = repo.IncrementFailedLogins(ctx, a.ID, during, maxAttempts, lockout)
	if err != nil {
		t.Fatalf("IncrementFailedLogins(locked) error = %v", err)
	}
	if state.FailedAttempts != maxAttempts || !state.LockedUntil.Equal(until) {
		t.Errorf("state during lock = %+v, want unchanged", state)
	}

	// After expiry the count starts over.
	after := until.Add(time.Second)
	state, err = repo.IncrementFailedLogins(ctx, a.ID, after, maxAttempts, lockout)
	if err != nil {
		t.Fatalf("IncrementFailedLogins(expired) error = %v", err)
	}
	if state.FailedAttempts != 1 || state.LockedUntil != nil {
		t.Errorf("state after expiry = %+v, want 1 and unlocked", state)
	}

	if err := repo.ResetFailedLogins(ctx, a.ID, after); err != nil {
		t.Fatalf("ResetFailedLogins() error = %v", err)
	}
	stored, _ = repo.Get(ctx, a.ID)
	if stored.FailedLoginAttempts != 0 || stored.LockedUntil != nil {
		t.Errorf("after reset = %+v", stored.AttemptState())
	}
}

func TestAccountsRepository_ConcurrentFailures(t *testing.T) {
	repo := NewAccountsRepository(newTestDB(t), DialectSQLite)
	ctx := context.Background()
	a := newAccount("race@example.com", nil)
	if err := repo.Insert(ctx, a); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.IncrementFailedLogins(ctx, a.ID, testNow, 5, 15*time.Minute); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("IncrementFailedLogins() error = %v", err)
	}

	stored, err := repo.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.FailedLoginAttempts != 5 || stored.LockedUntil == nil {
		t.Errorf("state = %+v, want 5 and locked", stored.AttemptState())
	}
}
