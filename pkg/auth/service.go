package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-access/pkg/domain"
)

// AccountStore persists accounts. Lookups return domain.ErrNotFound for
// missing records and Insert returns domain.ErrConflict for a duplicate
// email.
type AccountStore interface {
	AccountGetter
	AttemptStore
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	Count(ctx context.Context) (int, error)
	Insert(ctx context.Context, account *domain.Account) error
	// Patch applies the non-nil fields of patch and bumps updated_at, then
	// returns the stored account.
	Patch(ctx context.Context, id uuid.UUID, patch domain.AccountPatch, now time.Time) (*domain.Account, error)
	// ListByOrganization returns the accounts of orgID; nil lists all.
	ListByOrganization(ctx context.Context, orgID *uuid.UUID) ([]*domain.Account, error)
}

// AuditRecorder receives one event per committed state change.
type AuditRecorder interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}

// Notifier schedules account holder notifications.
type Notifier interface {
	NotifyPasswordChanged(ctx context.Context, email, name, changedBy string) error
}

// Clock returns the current time.
type Clock func() time.Time

// Login failure messages. Both are shown for unknown accounts too.
const (
	msgInvalidCredentials = "Invalid email or password"
	msgWrongCurrent       = "Current password is incorrect"
)

// dummyPassword is hashed once at start-up so that logins for unknown
// accounts pay the same verification cost as real ones.
const dummyPassword = "not-a-real-password-0000"

// ServiceConfig configures a CredentialService.
type ServiceConfig struct {
	Hasher Hasher
	Email  EmailRules
	Logger *slog.Logger
	Clock  Clock
}

// CredentialService implements account creation, login, password changes
// and account updates on top of the guard and verifiers.
type CredentialService struct {
	accounts   AccountStore
	audit      AuditRecorder
	notifier   Notifier
	hasher     Hasher
	guard      *LoginGuard
	privileges *PrivilegeVerifier
	tenants    *TenantChecker
	emailRules EmailRules
	logger     *slog.Logger
	now        Clock
	dummyHash  string
}

// NewCredentialService creates a credential service. It hashes the dummy
// password up front, so construction takes one hash's worth of time.
func NewCredentialService(ctx context.Context, accounts AccountStore, audit AuditRecorder, notifier Notifier, cfg ServiceConfig) (*CredentialService, error) {
	if cfg.Hasher == nil {
		cfg.Hasher = NewBcryptHasher(DefaultBcryptCost)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}

	dummy, err := cfg.Hasher.Hash(ctx, dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("precompute dummy hash: %w", err)
	}

	return &CredentialService{
		accounts:   accounts,
		audit:      audit,
		notifier:   notifier,
		hasher:     cfg.Hasher,
		guard:      NewLoginGuard(accounts),
		privileges: NewPrivilegeVerifier(accounts),
		tenants:    NewTenantChecker(accounts),
		emailRules: cfg.Email,
		logger:     cfg.Logger,
		now:        cfg.Clock,
		dummyHash:  dummy,
	}, nil
}

// Privileges returns the verifier used for actor checks.
func (s *CredentialService) Privileges() *PrivilegeVerifier {
	return s.privileges
}

// Tenants returns the organization checker.
func (s *CredentialService) Tenants() *TenantChecker {
	return s.tenants
}

// CreateAccountInput is the request to create an account.
type CreateAccountInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     *string
	Role      domain.Role
}

// CreateAccount creates an account. While no accounts exist the call needs
// no actor; afterwards actorID must name an active admin with MFA. The new
// account inherits the actor's organization.
func (s *CredentialService) CreateAccount(ctx context.Context, actorID *uuid.UUID, in CreateAccountInput) (*domain.Principal, error) {
	count, err := s.accounts.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count accounts: %w", err)
	}

	var actor *domain.Principal
	if count > 0 {
		if actorID == nil {
			return nil, &domain.Error{
				Kind:    domain.ErrUnauthenticated,
				Message: "Admin access required to create users. Provide an acting user.",
			}
		}
		actor, err = s.privileges.VerifyAdmin(ctx, *actorID)
		if err != nil {
			return nil, err
		}
		if err := s.privileges.VerifyAdminMFA(ctx, *actorID); err != nil {
			return nil, err
		}
	}

	if err := ValidateEmail(in.Email, s.emailRules); err != nil {
		return nil, err
	}
	email := NormalizeEmail(in.Email)
	firstName, lastName, err := validateNames(in.FirstName, in.LastName)
	if err != nil {
		return nil, err
	}
	phone, err := validatePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	role, err := domain.ParseRole(string(in.Role))
	if err != nil {
		return nil, err
	}
	if err := RequirePasswordComplexity(in.Password); err != nil {
		return nil, err
	}

	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return nil, errDuplicateEmail()
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("check existing email: %w", err)
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	account := &domain.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Phone:        phone,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if actor != nil && actor.OrganizationID != nil {
		org := *actor.OrganizationID
		account.OrganizationID = &org
	}

	if err := s.accounts.Insert(ctx, account); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, errDuplicateEmail()
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}

	created := account.Principal()
	event := s.newEvent(actorOrSelf(actor, created), domain.AuditActionCreate, created)
	event.Changes = map[string]any{
		"email":     created.Email,
		"firstName": created.FirstName,
		"lastName":  created.LastName,
		"role":      created.Role.String(),
	}
	if actor == nil {
		event.Metadata = map[string]string{"bootstrap": "true"}
	}
	s.recordAudit(ctx, event)

	s.logger.Info("account created", "account_id", created.ID, "role", created.Role, "bootstrap", actor == nil)
	return created, nil
}

// Login authenticates email and password. Unknown, inactive and wrong
// password attempts all fail with the same message.
func (s *CredentialService) Login(ctx context.Context, email, password string) (*domain.Principal, error) {
	account, err := s.accounts.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("find account: %w", err)
	}

	if account == nil || !account.Active {
		// Same hashing cost as a real verification.
		_, _ = s.hasher.Verify(ctx, password, s.dummyHash)
		return nil, errInvalidCredentials()
	}

	now := s.now()
	if err := s.guard.Check(account, now); err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(ctx, password, account.PasswordHash)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Error("stored password hash unusable", "account_id", account.ID, "error", err)
		ok = false
	}

	if !ok {
		state, err := s.guard.RecordFailure(ctx, account, now)
		if err != nil {
			return nil, err
		}
		if state.LockedAt(now) {
			s.logger.Warn("account locked after failed logins", "account_id", account.ID, "attempts", state.FailedAttempts)
			return nil, lockedError(state.LockedUntil.Sub(now))
		}
		return nil, errInvalidCredentials()
	}

	if err := s.guard.RecordSuccess(ctx, account, now); err != nil {
		return nil, err
	}
	updated, err := s.accounts.Patch(ctx, account.ID, domain.AccountPatch{LastLoginAt: &now}, now)
	if err != nil {
		return nil, fmt.Errorf("record last login: %w", err)
	}

	principal := updated.Principal()
	s.recordAudit(ctx, s.newEvent(principal, domain.AuditActionLogin, principal))
	return principal, nil
}

// ChangePassword replaces the password of accountID after checking the
// current one.
func (s *CredentialService) ChangePassword(ctx context.Context, accountID uuid.UUID, current, next string) error {
	account, err := s.getTarget(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.Active {
		return &domain.Error{Kind: domain.ErrDisabled, Message: "Account is disabled. Please contact your administrator."}
	}

	ok, err := s.hasher.Verify(ctx, current, account.PasswordHash)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Error("stored password hash unusable", "account_id", account.ID, "error", err)
	}
	if !ok {
		return &domain.Error{Kind: domain.ErrInvalidCredentials, Message: msgWrongCurrent}
	}

	if err := s.setPassword(ctx, account.ID, next); err != nil {
		return err
	}

	principal := account.Principal()
	s.notifyPasswordChanged(ctx, principal, "self")

	event := s.newEvent(principal, domain.AuditActionUpdate, principal)
	event.Metadata = map[string]string{"changedBy": "self"}
	s.recordAudit(ctx, event)
	return nil
}

// AdminResetPassword sets a new password on targetID on behalf of an admin
// in the same organization.
func (s *CredentialService) AdminResetPassword(ctx context.Context, actorID, targetID uuid.UUID, next string) error {
	actor, target, err := s.authorizeAdminMutation(ctx, actorID, targetID)
	if err != nil {
		return err
	}

	if err := s.setPassword(ctx, target.ID, next); err != nil {
		return err
	}

	principal := target.Principal()
	s.notifyPasswordChanged(ctx, principal, "admin")

	event := s.newEvent(actor, domain.AuditActionUpdate, principal)
	event.Metadata = map[string]string{"resetBy": "admin"}
	s.recordAudit(ctx, event)

	s.logger.Info("password reset by admin", "account_id", target.ID, "actor_id", actor.ID)
	return nil
}

// UpdateAccountInput lists the fields to change. Nil fields are left as
// they are.
type UpdateAccountInput struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Role      *domain.Role
	Active    *bool
}

// UpdateAccount changes profile and authorization fields of targetID. The
// audit event records only the fields that actually changed.
func (s *CredentialService) UpdateAccount(ctx context.Context, actorID, targetID uuid.UUID, in UpdateAccountInput) (*domain.Principal, error) {
	actor, target, err := s.authorizeAdminMutation(ctx, actorID, targetID)
	if err != nil {
		return nil, err
	}

	patch, changes, previous, err := diffAccount(target, in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := s.accounts.Patch(ctx, target.ID, patch, now)
	if err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	principal := updated.Principal()
	event := s.newEvent(actor, domain.AuditActionUpdate, principal)
	event.Changes = changes
	event.PreviousValues = previous
	s.recordAudit(ctx, event)
	return principal, nil
}

// Logout records a logout. A missing account counts as already logged out.
func (s *CredentialService) Logout(ctx context.Context, accountID uuid.UUID) error {
	account, err := s.accounts.Get(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}

	principal := account.Principal()
	s.recordAudit(ctx, s.newEvent(principal, domain.AuditActionLogout, principal))
	return nil
}

// GetAccount returns targetID to itself or to an admin of its organization.
func (s *CredentialService) GetAccount(ctx context.Context, actorID, targetID uuid.UUID) (*domain.Principal, error) {
	if actorID == targetID {
		actor, err := s.privileges.loadActor(ctx, actorID, "Authentication required. User not found.")
		if err != nil {
			return nil, err
		}
		return actor.Principal(), nil
	}

	actor, err := s.privileges.VerifyAdmin(ctx, actorID)
	if err != nil {
		return nil, err
	}
	target, err := s.getTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if err := checkSameOrganization(actor.OrganizationID, target.OrganizationID); err != nil {
		return nil, err
	}
	return target.Principal(), nil
}

// ListAccounts returns the accounts an admin can see: its organization, or
// every account for an admin without one.
func (s *CredentialService) ListAccounts(ctx context.Context, actorID uuid.UUID) ([]*domain.Principal, error) {
	actor, err := s.privileges.VerifyAdmin(ctx, actorID)
	if err != nil {
		return nil, err
	}

	accounts, err := s.accounts.ListByOrganization(ctx, actor.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	out := make([]*domain.Principal, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Principal())
	}
	return out, nil
}

// authorizeAdminMutation runs the admin, MFA and organization checks, in
// that order, and returns the loaded target.
func (s *CredentialService) authorizeAdminMutation(ctx context.Context, actorID, targetID uuid.UUID) (*domain.Principal, *domain.Account, error) {
	actor, err := s.privileges.VerifyAdmin(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.privileges.VerifyAdminMFA(ctx, actorID); err != nil {
		return nil, nil, err
	}
	target, err := s.getTarget(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}
	if err := checkSameOrganization(actor.OrganizationID, target.OrganizationID); err != nil {
		return nil, nil, err
	}
	return actor, target, nil
}

func (s *CredentialService) getTarget(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.Error{Kind: domain.ErrNotFound, Message: "User not found."}
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}

func (s *CredentialService) setPassword(ctx context.Context, id uuid.UUID, next string) error {
	if err := RequirePasswordComplexity(next); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(ctx, next)
	if err != nil {
		return err
	}
	if _, err := s.accounts.Patch(ctx, id, domain.AccountPatch{PasswordHash: &hash}, s.now()); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	return nil
}

func (s *CredentialService) newEvent(actor *domain.Principal, action domain.AuditAction, entity *domain.Principal) domain.AuditEvent {
	return domain.AuditEvent{
		ID:         uuid.New(),
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		ActorName:  actor.FullName(),
		Action:     action,
		EntityType: domain.EntityTypeUser,
		EntityID:   entity.ID.String(),
		EntityName: entity.FullName(),
		Timestamp:  s.now(),
	}
}

// recordAudit hands event to the audit collaborator. Failures are logged,
// never returned.
func (s *CredentialService) recordAudit(ctx context.Context, event domain.AuditEvent) {
	if s.audit == nil {
		return
	}
	stampRequest(ctx, &event)
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("failed to record audit event",
			"error", err, "action", event.Action, "entity_id", event.EntityID)
	}
}

func (s *CredentialService) notifyPasswordChanged(ctx context.Context, account *domain.Principal, changedBy string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyPasswordChanged(ctx, account.Email, account.FullName(), changedBy); err != nil {
		s.logger.Warn("failed to schedule password changed notification",
			"error", err, "account_id", account.ID)
	}
}

func actorOrSelf(actor, self *domain.Principal) *domain.Principal {
	if actor != nil {
		return actor
	}
	return self
}

// diffAccount validates in and builds the patch plus the audit change-set
// for fields that differ from target.
func diffAccount(target *domain.Account, in UpdateAccountInput) (domain.AccountPatch, map[string]any, map[string]any, error) {
	var patch domain.AccountPatch
	changes := map[string]any{}
	previous := map[string]any{}

	if in.FirstName != nil {
		name := SanitizeName(*in.FirstName)
		if err := ValidateStringLength("First name", name, 1, maxNameLength); err != nil {
			return patch, nil, nil, err
		}
		if name != target.FirstName {
			patch.FirstName = &name
			changes["firstName"], previous["firstName"] = name, target.FirstName
		}
	}
	if in.LastName != nil {
		name := SanitizeName(*in.LastName)
		if err := ValidateStringLength("Last name", name, 1, maxNameLength); err != nil {
			return patch, nil, nil, err
		}
		if name != target.LastName {
			patch.LastName = &name
			changes["lastName"], previous["lastName"] = name, target.LastName
		}
	}
	if in.Phone != nil {
		phone, err := validatePhone(in.Phone)
		if err != nil {
			return patch, nil, nil, err
		}
		if stringValue(phone) != stringValue(target.Phone) {
			value := stringValue(phone)
			patch.Phone = &value
			changes["phone"], previous["phone"] = value, stringValue(target.Phone)
		}
	}
	if in.Role != nil {
		role, err := domain.ParseRole(string(*in.Role))
		if err != nil {
			return patch, nil, nil, err
		}
		if role != target.Role {
			patch.Role = &role
			changes["role"], previous["role"] = role.String(), target.Role.String()
		}
	}
	if in.Active != nil && *in.Active != target.Active {
		active := *in.Active
		patch.Active = &active
		changes["isActive"], previous["isActive"] = active, target.Active
	}

	return patch, changes, previous, nil
}

func validateNames(first, last string) (string, string, error) {
	first, last = SanitizeName(first), SanitizeName(last)
	if err := ValidateStringLength("First name", first, 1, maxNameLength); err != nil {
		return "", "", err
	}
	if err := ValidateStringLength("Last name", last, 1, maxNameLength); err != nil {
		return "", "", err
	}
	return first, last, nil
}

// validatePhone trims phone. An empty value clears the field.
func validatePhone(phone *string) (*string, error) {
	if phone == nil {
		return nil, nil
	}
	value := SanitizeName(*phone)
	if value == "" {
		return nil, nil
	}
	if err := ValidateStringLength("Phone", value, 0, maxPhoneLength); err != nil {
		return nil, err
	}
	return &value, nil
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func errInvalidCredentials() error {
	return &domain.Error{Kind: domain.ErrInvalidCredentials, Message: msgInvalidCredentials}
}

func errDuplicateEmail() error {
	return &domain.Error{Kind: domain.ErrConflict, Message: "User with this email already exists"}
}
