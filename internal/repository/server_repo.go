package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

// ServerRepository reads provider endpoints. Servers are managed by the billing admin.
type ServerRepository struct {
	db DBTX
}

func NewServerRepository(db DBTX) *ServerRepository {
	return &ServerRepository{db: db}
}

func (r *ServerRepository) GetByID(ctx context.Context, id string) (*models.Server, error) {
	query := `
		SELECT id, name, type, api_url, hostname, username, password, api_key, api_version, created_at, updated_at
		FROM servers
		WHERE id = $1
	`
	s := &models.Server{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.Type, &s.APIURL, &s.Hostname,
		&s.Username, &s.Password, &s.APIKey, &s.APIVersion,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan server: %w", err)
	}
	return s, nil
}

// List retrieves all servers ordered by name
func (r *ServerRepository) List(ctx context.Context) ([]*models.Server, error) {
	query := `
		SELECT id, name, type, api_url, hostname, username, password, api_key, api_version, created_at, updated_at
		FROM servers
		ORDER BY name
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}
	defer rows.Close()

	var servers []*models.Server
	for rows.Next() {
		s := &models.Server{}
		err := rows.Scan(
			&s.ID, &s.Name, &s.Type, &s.APIURL, &s.Hostname,
			&s.Username, &s.Password, &s.APIKey, &s.APIVersion,
			&s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		servers = append(servers, s)
	}

	return servers, rows.Err()
}
