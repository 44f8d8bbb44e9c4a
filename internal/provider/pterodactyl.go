package provider

import (
	"context"
	"fmt"

	"github.com/wenwu/saas-platform/provisioning-service/internal/client"
	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

// Pterodactyl creates a panel user for the customer (reusing one with the same email)
// and then a game server owned by that user.
type Pterodactyl struct {
	client *client.PterodactylClient
}

func NewPterodactyl(c *client.PterodactylClient) *Pterodactyl {
	return &Pterodactyl{client: c}
}

func (p *Pterodactyl) Kind() models.ServerType {
	return models.ServerTypePterodactyl
}

func (p *Pterodactyl) CreateResource(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	plan := req.Plan
	if plan.EggID <= 0 || plan.AllocationID <= 0 {
		return nil, fmt.Errorf("%w: pterodactyl egg_id and allocation_id", ErrMissingPlanConfig)
	}
	if req.Owner.Email == "" {
		return nil, fmt.Errorf("%w: pterodactyl users require an email", ErrMissingPlanConfig)
	}

	user, err := p.ensureUser(ctx, req)
	if err != nil {
		return nil, err
	}

	name := req.ProductName
	if name == "" {
		name = req.Username
	}

	raw, err := p.client.CreateServer(ctx, client.CreateGameServerRequest{
		Name:        name,
		User:        user.ID,
		Egg:         plan.EggID,
		DockerImage: plan.DockerImage,
		Startup:     plan.Startup,
		Environment: plan.Environment,
		Limits: client.ServerLimits{
			Memory: plan.Memory,
			Swap:   plan.Swap,
			Disk:   plan.Disk,
			IO:     plan.IO,
			CPU:    plan.CPU,
		},
		FeatureLimits: client.FeatureLimits{
			Databases:   plan.Databases,
			Allocations: plan.Allocations,
			Backups:     plan.Backups,
		},
		Allocation: client.ServerAllocation{Default: plan.AllocationID},
	})
	if err != nil {
		return nil, err
	}

	externalID, err := ExtractExternalID(raw)
	if err != nil {
		return nil, fmt.Errorf("pterodactyl create server: %w", err)
	}

	return &CreateResult{
		Credentials: models.Credentials{
			Username:   user.Username,
			Password:   req.Password,
			ExternalID: externalID,
		},
		Raw: raw,
	}, nil
}

func (p *Pterodactyl) ensureUser(ctx context.Context, req CreateRequest) (*client.PterodactylUser, error) {
	existing, err := p.client.FindUserByEmail(ctx, req.Owner.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	// The panel rejects empty names
	first, last := req.Owner.FirstName, req.Owner.LastName
	if first == "" {
		first = req.Username
	}
	if last == "" {
		last = req.Username
	}

	return p.client.CreateUser(ctx, client.CreateUserRequest{
		Email:     req.Owner.Email,
		Username:  req.Username,
		FirstName: first,
		LastName:  last,
		Password:  req.Password,
	})
}

func (p *Pterodactyl) SuspendResource(ctx context.Context, ref ResourceRef) error {
	id, err := numericID(ref.ExternalID)
	if err != nil {
		return err
	}
	return p.client.SuspendServer(ctx, id)
}

func (p *Pterodactyl) UnsuspendResource(ctx context.Context, ref ResourceRef) error {
	id, err := numericID(ref.ExternalID)
	if err != nil {
		return err
	}
	return p.client.UnsuspendServer(ctx, id)
}

// DeleteResource always force-deletes so an unreachable node cannot block termination.
func (p *Pterodactyl) DeleteResource(ctx context.Context, ref ResourceRef) error {
	id, err := numericID(ref.ExternalID)
	if err != nil {
		return err
	}
	return p.client.DeleteServer(ctx, id, true)
}

func (p *Pterodactyl) TestConnection(ctx context.Context) error {
	return p.client.TestConnection(ctx)
}
