package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

// AuditRepository is the append-only audit log table.
type AuditRepository struct {
	db DBTX
}

func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit event
func (r *AuditRepository) Append(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	query := `
		INSERT INTO audit_logs (id, user_id, user_email, action, entity_type, entity_id, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	details := string(event.Details)
	if details == "" {
		details = "{}"
	}

	_, err := r.db.Exec(ctx, query,
		event.ID, event.UserID, event.UserEmail, event.Action, event.EntityType, event.EntityID,
		details, event.IPAddress, event.UserAgent, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListByEntity retrieves audit events for an entity, newest first
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*models.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, user_email, action, entity_type, entity_id, details, ip_address, user_agent, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		e := &models.AuditEvent{}
		var details []byte
		err := rows.Scan(
			&e.ID, &e.UserID, &e.UserEmail, &e.Action, &e.EntityType, &e.EntityID,
			&details, &e.IPAddress, &e.UserAgent, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		e.Details = details
		events = append(events, e)
	}

	return events, rows.Err()
}
