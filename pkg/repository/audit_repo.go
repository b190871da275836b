package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-access/pkg/domain"
)

// AuditRepository stores audit events.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record inserts event. A missing ID is generated.
func (r *AuditRepository) Record(ctx context.Context, event domain.AuditEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	changes, err := marshalJSON(event.Changes)
	if err != nil {
		return fmt.Errorf("failed to encode changes: %w", err)
	}
	previous, err := marshalJSON(event.PreviousValues)
	if err != nil {
		return fmt.Errorf("failed to encode previous values: %w", err)
	}
	metadata, err := marshalJSON(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO audit_events (id, actor_id, actor_email, actor_name, action, entity_type,
			entity_id, entity_name, changes, previous_values, metadata, ip_address, user_agent, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.ActorID, event.ActorEmail, event.ActorName, string(event.Action), event.EntityType,
		event.EntityID, event.EntityName, changes, previous, metadata, event.IPAddress, event.UserAgent,
		event.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// ListByEntity returns the newest events for one entity, newest first.
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, actor_id, actor_email, actor_name, action, entity_type, entity_id, entity_name,
		       changes, previous_values, metadata, ip_address, user_agent, occurred_at
		FROM audit_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY occurred_at DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			e                           domain.AuditEvent
			action                      string
			changes, previous, metadata sql.NullString
		)
		err := rows.Scan(&e.ID, &e.ActorID, &e.ActorEmail, &e.ActorName, &action, &e.EntityType,
			&e.EntityID, &e.EntityName, &changes, &previous, &metadata, &e.IPAddress, &e.UserAgent, &e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Action = domain.AuditAction(action)
		e.Timestamp = e.Timestamp.UTC()
		if err := unmarshalJSON(changes, &e.Changes); err != nil {
			return nil, fmt.Errorf("failed to decode changes: %w", err)
		}
		if err := unmarshalJSON(previous, &e.PreviousValues); err != nil {
			return nil, fmt.Errorf("failed to decode previous values: %w", err)
		}
		if err := unmarshalJSON(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}
	return events, nil
}

// marshalJSON encodes v, storing empty maps as NULL.
func marshalJSON[M ~map[string]V, V any](v M) (*string, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func unmarshalJSON(s sql.NullString, v any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), v)
}
