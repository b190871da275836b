package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction is the kind of event recorded in the audit log.
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
	AuditActionView   AuditAction = "view"
	AuditActionLogin  AuditAction = "login"
	AuditActionLogout AuditAction = "logout"
	AuditActionExport AuditAction = "export"
	AuditActionImport AuditAction = "import"
)

// EntityTypeUser is the audit entity type for accounts.
const EntityTypeUser = "user"

// AuditEvent is one entry for the audit collaborator.
type AuditEvent struct {
	ID             uuid.UUID         `json:"id"`
	ActorID        uuid.UUID         `json:"actor_id"`
	ActorEmail     string            `json:"actor_email"`
	ActorName      string            `json:"actor_name"`
	Action         AuditAction       `json:"action"`
	EntityType     string            `json:"entity_type"`
	EntityID       string            `json:"entity_id,omitempty"`
	EntityName     string            `json:"entity_name,omitempty"`
	Changes        map[string]any    `json:"changes,omitempty"`
	PreviousValues map[string]any    `json:"previous_values,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IPAddress      string            `json:"ip_address,omitempty"`
	UserAgent      string            `json:"user_agent,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// PasswordChangedNotice asks the notification collaborator to tell an
// account holder their password changed.
type PasswordChangedNotice struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	ChangedBy string    `json:"changed_by"`
	At        time.Time `json:"at"`
}
