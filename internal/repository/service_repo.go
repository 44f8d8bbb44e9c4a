package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

var ErrNotFound = errors.New("not found")

type ServiceRepository struct {
	db DBTX
}

func NewServiceRepository(db DBTX) *ServiceRepository {
	return &ServiceRepository{db: db}
}

func (r *ServiceRepository) GetByID(ctx context.Context, id string) (*models.Service, error) {
	query := `
		SELECT id, user_id, product_id, status,
			   username, password, external_id, domain,
			   created_at, updated_at
		FROM services
		WHERE id = $1
	`
	svc := &models.Service{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&svc.ID, &svc.UserID, &svc.ProductID, &svc.Status,
		&svc.Username, &svc.Password, &svc.ExternalID, &svc.Domain,
		&svc.CreatedAt, &svc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan service: %w", err)
	}
	return svc, nil
}

// GetContext loads a service with its product, owning user and (optional) server in one round trip.
func (r *ServiceRepository) GetContext(ctx context.Context, id string) (*models.ServiceContext, error) {
	query := `
		SELECT s.id, s.user_id, s.product_id, s.status,
			   s.username, s.password, s.external_id, s.domain,
			   s.created_at, s.updated_at,
			   p.id, p.name, p.server_id, p.config,
			   u.id, u.email, u.first_name, u.last_name,
			   sv.id, sv.name, sv.type, sv.api_url, sv.hostname,
			   sv.username, sv.password, sv.api_key, sv.api_version,
			   sv.created_at, sv.updated_at
		FROM services s
		JOIN products p ON p.id = s.product_id
		JOIN users u ON u.id = s.user_id
		LEFT JOIN servers sv ON sv.id = p.server_id
		WHERE s.id = $1
	`

	svc := &models.Service{}
	product := &models.Product{}
	user := &models.User{}
	var productConfig []byte
	var server nullableServer

	err := r.db.QueryRow(ctx, query, id).Scan(
		&svc.ID, &svc.UserID, &svc.ProductID, &svc.Status,
		&svc.Username, &svc.Password, &svc.ExternalID, &svc.Domain,
		&svc.CreatedAt, &svc.UpdatedAt,
		&product.ID, &product.Name, &product.ServerID, &productConfig,
		&user.ID, &user.Email, &user.FirstName, &user.LastName,
		&server.ID, &server.Name, &server.Type, &server.APIURL, &server.Hostname,
		&server.Username, &server.Password, &server.APIKey, &server.APIVersion,
		&server.CreatedAt, &server.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan service context: %w", err)
	}

	if len(productConfig) > 0 {
		if err := json.Unmarshal(productConfig, &product.Config); err != nil {
			return nil, fmt.Errorf("decode product config: %w", err)
		}
	}

	return &models.ServiceContext{
		Service: svc,
		Product: product,
		Server:  server.toModel(),
		User:    user,
	}, nil
}

// TransitionStatus moves a service to `to` only when its current status is one of `from`.
// The boolean reports whether the row was updated.
func (r *ServiceRepository) TransitionStatus(ctx context.Context, id string, from []models.ServiceStatus, to models.ServiceStatus) (bool, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	query := `UPDATE services SET status = $1, updated_at = NOW() WHERE id = $2 AND status = ANY($3)`
	tag, err := r.db.Exec(ctx, query, string(to), id, allowed)
	if err != nil {
		return false, fmt.Errorf("transition service status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SaveCredentials stores the remote identity. An empty ExternalID leaves the column untouched.
func (r *ServiceRepository) SaveCredentials(ctx context.Context, id string, creds models.Credentials) error {
	query := `
		UPDATE services SET
			username = $1,
			password = $2,
			external_id = COALESCE(NULLIF($3, ''), external_id),
			updated_at = NOW()
		WHERE id = $4
	`
	tag, err := r.db.Exec(ctx, query, creds.Username, creds.Password, creds.ExternalID, id)
	if err != nil {
		return fmt.Errorf("update service credentials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// nullableServer receives the LEFT JOIN columns of a product without a server.
type nullableServer struct {
	ID         *string
	Name       *string
	Type       *string
	APIURL     *string
	Hostname   *string
	Username   *string
	Password   *string
	APIKey     *string
	APIVersion *string
	CreatedAt  pgtype.Timestamptz
	UpdatedAt  pgtype.Timestamptz
}

func (n nullableServer) toModel() *models.Server {
	if n.ID == nil {
		return nil
	}
	srv := &models.Server{
		ID:        *n.ID,
		Hostname:  n.Hostname,
		Username:  n.Username,
		Password:  n.Password,
		APIKey:    n.APIKey,
		CreatedAt: n.CreatedAt.Time,
		UpdatedAt: n.UpdatedAt.Time,
	}
	if n.Name != nil {
		srv.Name = *n.Name
	}
	if n.Type != nil {
		srv.Type = models.ServerType(*n.Type)
	}
	if n.APIURL != nil {
		srv.APIURL = *n.APIURL
	}
	if n.APIVersion != nil {
		srv.APIVersion = *n.APIVersion
	}
	return srv
}
