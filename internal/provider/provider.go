// Package provider adapts the per-panel API clients to one lifecycle contract
// so the orchestrator never switches on the server type itself.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

var (
	// ErrMissingCredentials means the server row lacks a field its type requires.
	ErrMissingCredentials = errors.New("missing provider credentials")
	// ErrUnsupportedServerType is returned for a type tag with no adapter.
	ErrUnsupportedServerType = errors.New("unsupported server type")
	// ErrMissingPlanConfig means the product lacks a provider plan parameter needed to create a resource.
	ErrMissingPlanConfig = errors.New("missing product provider config")
	// ErrResourceNotProvisioned means the service has no remote handle to address.
	ErrResourceNotProvisioned = errors.New("resource not provisioned")
)

// CreateRequest carries everything an adapter needs to create the remote resource.
type CreateRequest struct {
	ServiceID   string
	ProductName string
	Username    string
	Password    string
	Domain      string
	Plan        models.ProductConfig
	Owner       models.User
}

// CreateResult is the outcome of a successful create.
type CreateResult struct {
	Credentials models.Credentials
	Raw         json.RawMessage
}

// ResourceRef addresses an existing remote resource.
type ResourceRef struct {
	Username   string
	ExternalID string
}

// RefFromService builds a ResourceRef from the stored remote identity.
func RefFromService(svc *models.Service) ResourceRef {
	var ref ResourceRef
	if svc.Username != nil {
		ref.Username = *svc.Username
	}
	if svc.ExternalID != nil {
		ref.ExternalID = *svc.ExternalID
	}
	return ref
}

// Provider is the lifecycle contract every control panel adapter satisfies.
type Provider interface {
	Kind() models.ServerType
	CreateResource(ctx context.Context, req CreateRequest) (*CreateResult, error)
	SuspendResource(ctx context.Context, ref ResourceRef) error
	UnsuspendResource(ctx context.Context, ref ResourceRef) error
	DeleteResource(ctx context.Context, ref ResourceRef) error
	TestConnection(ctx context.Context) error
}

// numericID parses a stored external id. Empty and zero ids are reported as not provisioned.
func numericID(externalID string) (int, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return 0, ErrResourceNotProvisioned
	}
	id, err := strconv.Atoi(externalID)
	if err != nil {
		return 0, fmt.Errorf("invalid external id %q: %w", externalID, err)
	}
	if id == 0 {
		return 0, ErrResourceNotProvisioned
	}
	return id, nil
}
