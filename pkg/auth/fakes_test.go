package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-access/pkg/domain"
	"golang.org/x/crypto/bcrypt"
)

// memStore is an in-memory AccountStore and BackupCodeStore.
type memStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.Account
	codes    map[uuid.UUID][]*domain.BackupCode

	incrementCalls int
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[uuid.UUID]*domain.Account),
		codes:    make(map[uuid.UUID][]*domain.BackupCode),
	}
}

func cloneAccount(a *domain.Account) *domain.Account {
	c := *a
	return &c
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneAccount(a), nil
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, email) {
			return cloneAccount(a), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts), nil
}

func (m *memStore) Insert(_ context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, account.Email) {
			return domain.ErrConflict
		}
	}
	m.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (m *memStore) Patch(_ context.Context, id uuid.UUID, p domain.AccountPatch, now time.Time) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if p.FirstName != nil {
		a.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		a.LastName = *p.LastName
	}
	if p.Phone != nil {
		if *p.Phone == "" {
			a.Phone = nil
		} else {
			v := *p.Phone
			a.Phone = &v
		}
	}
	if p.Role != nil {
		a.Role = *p.Role
	}
	if p.Active != nil {
		a.Active = *p.Active
	}
	if p.PasswordHash != nil {
		a.PasswordHash = *p.PasswordHash
	}
	if p.MFAEnabled != nil {
		a.MFAEnabled = *p.MFAEnabled
	}
	if p.MFASecretRef != nil {
		v := *p.MFASecretRef
		a.MFASecretRef = &v
	}
	if p.ClearMFASecret {
		a.MFASecretRef = nil
	}
	if p.LastLoginAt != nil {
		v := *p.LastLoginAt
		a.LastLoginAt = &v
	}
	a.UpdatedAt = now
	return cloneAccount(a), nil
}

func (m *memStore) IncrementFailedLogins(_ context.Context, id uuid.UUID, now time.Time, maxAttempts int, lockout time.Duration) (domain.LoginAttemptState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incrementCalls++
	a, ok := m.accounts[id]
	if !ok {
		return domain.LoginAttemptState{}, domain.ErrNotFound
	}
	if a.IsLockedAt(now) {
		return a.AttemptState(), nil
	}
	if a.LockedUntil != nil {
		a.FailedLoginAttempts = 1
	} else {
		a.FailedLoginAttempts++
	}
	a.LockedUntil = nil
	if a.FailedLoginAttempts >= maxAttempts {
		until := now.Add(lockout)
		a.LockedUntil = &until
	}
	return a.AttemptState(), nil
}

func (m *memStore) ResetFailedLogins(_ context.Context, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.FailedLoginAttempts = 0
	a.LockedUntil = nil
	a.UpdatedAt = now
	return nil
}

func (m *memStore) ListByOrganization(_ context.Context, orgID *uuid.UUID) ([]*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Account
	for _, a := range m.accounts {
		if orgID == nil || domain.SameOrganization(orgID, a.OrganizationID) {
			out = append(out, cloneAccount(a))
		}
	}
	return out, nil
}

func (m *memStore) ReplaceBackupCodes(_ context.Context, accountID uuid.UUID, codes []*domain.BackupCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[accountID] = codes
	return nil
}

func (m *memStore) ConsumeBackupCode(_ context.Context, accountID uuid.UUID, codeHash string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.codes[accountID] {
		if c.CodeHash == codeHash && c.UsedAt == nil {
			used := now
			c.UsedAt = &used
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CountUnusedBackupCodes(_ context.Context, accountID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.codes[accountID] {
		if c.UsedAt == nil {
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteBackupCodes(_ context.Context, accountID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.codes, accountID)
	return nil
}

// put stores a copy of a directly, bypassing the service.
func (m *memStore) put(a *domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = cloneAccount(a)
}

func (m *memStore) mustGet(id uuid.UUID) *domain.Account {
	a, err := m.Get(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return a
}

// countingHasher wraps bcrypt at minimum cost and counts Verify calls.
type countingHasher struct {
	inner    *BcryptHasher
	verifies atomic.Int64
}

func newCountingHasher() *countingHasher {
	return &countingHasher{inner: NewBcryptHasher(bcrypt.MinCost)}
}

func (h *countingHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	return h.inner.Hash(ctx, plaintext)
}

func (h *countingHasher) Verify(ctx context.Context, plaintext, hash string) (bool, error) {
	h.verifies.Add(1)
	return h.inner.Verify(ctx, plaintext, hash)
}

// auditLog records events and can be told to fail.
type auditLog struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	fail   bool
}

func (l *auditLog) Record(_ context.Context, event domain.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return errors.New("audit sink unavailable")
	}
	l.events = append(l.events, event)
	return nil
}

func (l *auditLog) all() []domain.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.AuditEvent(nil), l.events...)
}

func (l *auditLog) last() domain.AuditEvent {
	events := l.all()
	if len(events) == 0 {
		return domain.AuditEvent{}
	}
	return events[len(events)-1]
}

type passwordNotice struct {
	email, name, changedBy string
}

type notifierLog struct {
	mu      sync.Mutex
	notices []passwordNotice
	fail    bool
}

func (n *notifierLog) NotifyPasswordChanged(_ context.Context, email, name, changedBy string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("queue unavailable")
	}
	n.notices = append(n.notices, passwordNotice{email, name, changedBy})
	return nil
}

func (n *notifierLog) all() []passwordNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]passwordNotice(nil), n.notices...)
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
