package provider

import (
	"context"
	"fmt"

	"github.com/wenwu/saas-platform/provisioning-service/internal/client"
	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

// VirtFusion logs in as root on the created VPS; the numeric server id is the remote handle.
const virtFusionLoginUser = "root"

type VirtFusion struct {
	client *client.VirtFusionClient
}

func NewVirtFusion(c *client.VirtFusionClient) *VirtFusion {
	return &VirtFusion{client: c}
}

func (p *VirtFusion) Kind() models.ServerType {
	return models.ServerTypeVirtFusion
}

func (p *VirtFusion) CreateResource(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.Plan.PackageID <= 0 {
		return nil, fmt.Errorf("%w: virtfusion package_id", ErrMissingPlanConfig)
	}

	hostname := req.Domain
	if hostname == "" {
		hostname = req.Username
	}

	raw, err := p.client.CreateServer(ctx, client.CreateServerRequest{
		PackageID:    req.Plan.PackageID,
		UserID:       req.Plan.VFUserID,
		HypervisorID: req.Plan.HypervisorID,
		Hostname:     hostname,
		Password:     req.Password,
		IPv4:         req.Plan.IPv4,
		IPv6:         req.Plan.IPv6,
	})
	if err != nil {
		return nil, err
	}

	externalID, err := ExtractExternalID(raw)
	if err != nil {
		return nil, fmt.Errorf("virtfusion create server: %w", err)
	}

	return &CreateResult{
		Credentials: models.Credentials{
			Username:   virtFusionLoginUser,
			Password:   req.Password,
			ExternalID: externalID,
		},
		Raw: raw,
	}, nil
}

func (p *VirtFusion) SuspendResource(ctx context.Context, ref ResourceRef) error {
	id, err := numericID(ref.ExternalID)
	if err != nil {
		return err
	}
	return p.client.SuspendServer(ctx, id)
}

func (p *VirtFusion) UnsuspendResource(ctx context.Context, ref ResourceRef) error {
	id, err := numericID(ref.ExternalID)
	if err != nil {
		return err
	}
	return p.client.UnsuspendServer(ctx, id)
}

func (p *VirtFusion) DeleteResource(ctx context.Context, ref ResourceRef) error {
	id, err := numericID(ref.ExternalID)
	if err != nil {
		return err
	}
	return p.client.TerminateServer(ctx, id)
}

func (p *VirtFusion) TestConnection(ctx context.Context) error {
	return p.client.TestConnection(ctx)
}
