package provider

import (
	"context"

	"github.com/wenwu/saas-platform/provisioning-service/internal/client"
	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

// DirectAdmin addresses accounts by username. Nothing from the create response is persisted.
// A service without a domain is sent as is; the panel decides whether to accept it.
type DirectAdmin struct {
	client *client.DirectAdminClient
}

func NewDirectAdmin(c *client.DirectAdminClient) *DirectAdmin {
	return &DirectAdmin{client: c}
}

func (p *DirectAdmin) Kind() models.ServerType {
	return models.ServerTypeDirectAdmin
}

func (p *DirectAdmin) CreateResource(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	raw, err := p.client.CreateAccount(ctx, client.CreateAccountRequest{
		Username: req.Username,
		Email:    req.Owner.Email,
		Password: req.Password,
		Domain:   req.Domain,
		Package:  req.Plan.Package,
	})
	if err != nil {
		return nil, err
	}

	return &CreateResult{
		Credentials: models.Credentials{Username: req.Username, Password: req.Password},
		Raw:         raw,
	}, nil
}

func (p *DirectAdmin) SuspendResource(ctx context.Context, ref ResourceRef) error {
	if ref.Username == "" {
		return ErrResourceNotProvisioned
	}
	return p.client.SuspendAccount(ctx, ref.Username)
}

func (p *DirectAdmin) UnsuspendResource(ctx context.Context, ref ResourceRef) error {
	if ref.Username == "" {
		return ErrResourceNotProvisioned
	}
	return p.client.UnsuspendAccount(ctx, ref.Username)
}

func (p *DirectAdmin) DeleteResource(ctx context.Context, ref ResourceRef) error {
	if ref.Username == "" {
		return ErrResourceNotProvisioned
	}
	return p.client.DeleteAccount(ctx, ref.Username)
}

func (p *DirectAdmin) TestConnection(ctx context.Context) error {
	return p.client.TestConnection(ctx)
}
