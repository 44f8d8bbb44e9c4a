package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

// ProvisionAttemptRepository persists one row per provisionService call.
type ProvisionAttemptRepository struct {
	db DBTX
}

func NewProvisionAttemptRepository(db DBTX) *ProvisionAttemptRepository {
	return &ProvisionAttemptRepository{db: db}
}

func (r *ProvisionAttemptRepository) Create(ctx context.Context, attempt *models.ProvisionAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}

	query := `
		INSERT INTO provision_attempts (id, service_id, status, result, error, attempts)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		attempt.ID, attempt.ServiceID, string(attempt.Status), nullableJSON(attempt.Result), attempt.Error, attempt.Attempts,
	).Scan(&attempt.CreatedAt, &attempt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert provision_attempt: %w", err)
	}
	return nil
}

// MarkCompleted moves a PROCESSING attempt to COMPLETED with the raw provider result.
func (r *ProvisionAttemptRepository) MarkCompleted(ctx context.Context, id string, result json.RawMessage) error {
	query := `
		UPDATE provision_attempts SET status = $1, result = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`
	return r.finish(ctx, query, string(models.AttemptStatusCompleted), nullableJSON(result), id, string(models.AttemptStatusProcessing))
}

// MarkFailed moves a PROCESSING attempt to FAILED with the error and the new attempt counter.
func (r *ProvisionAttemptRepository) MarkFailed(ctx context.Context, id, errorMsg string, attempts int) error {
	query := `
		UPDATE provision_attempts SET status = $1, error = $2, attempts = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
	`
	return r.finish(ctx, query, string(models.AttemptStatusFailed), errorMsg, attempts, id, string(models.AttemptStatusProcessing))
}

func (r *ProvisionAttemptRepository) finish(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update provision_attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByService returns the newest attempts for a service first.
func (r *ProvisionAttemptRepository) ListByService(ctx context.Context, serviceID string, limit int) ([]*models.ProvisionAttempt, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, service_id, status, result, error, attempts, created_at, updated_at
		FROM provision_attempts
		WHERE service_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, serviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query provision_attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.ProvisionAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provision_attempt row: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

func scanAttempt(row pgx.Row) (*models.ProvisionAttempt, error) {
	a := &models.ProvisionAttempt{}
	var result []byte
	err := row.Scan(&a.ID, &a.ServiceID, &a.Status, &result, &a.Error, &a.Attempts, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(result) > 0 {
		a.Result = json.RawMessage(result)
	}
	return a, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
