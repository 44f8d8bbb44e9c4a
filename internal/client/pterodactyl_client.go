package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

const (
	pterodactylBasePath = "/api/application"
	pterodactylAccept   = "Application/vnd.pterodactyl.v1+json"
)

// PterodactylClient uses the Pterodactyl application API (admin key).
type PterodactylClient struct {
	t *transport
}

func NewPterodactylClient(opts Options, apiKey string) *PterodactylClient {
	authorize := func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+apiKey)
		r.Header.Set("Accept", pterodactylAccept)
	}
	return &PterodactylClient{t: newTransport(ProviderPterodactyl, opts, authorize, jsonErrorMessage)}
}

type PterodactylUser struct {
	ID         int    `json:"id"`
	ExternalID string `json:"external_id,omitempty"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
}

type CreateUserRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password,omitempty"`
}

// ServerLimits are the hard resource limits of a game server.
type ServerLimits struct {
	Memory int `json:"memory"`
	Swap   int `json:"swap"`
	Disk   int `json:"disk"`
	IO     int `json:"io"`
	CPU    int `json:"cpu"`
}

type FeatureLimits struct {
	Databases   int `json:"databases"`
	Allocations int `json:"allocations"`
	Backups     int `json:"backups"`
}

type ServerAllocation struct {
	Default int `json:"default"`
}

type CreateGameServerRequest struct {
	Name          string            `json:"name"`
	User          int               `json:"user"`
	Egg           int               `json:"egg"`
	DockerImage   string            `json:"docker_image"`
	Startup       string            `json:"startup"`
	Environment   map[string]string `json:"environment"`
	Limits        ServerLimits      `json:"limits"`
	FeatureLimits FeatureLimits     `json:"feature_limits"`
	Allocation    ServerAllocation  `json:"allocation"`
}

// UpdateBuildRequest changes limits of an existing server.
type UpdateBuildRequest struct {
	Allocation    int           `json:"allocation"`
	Limits        ServerLimits  `json:"limits"`
	FeatureLimits FeatureLimits `json:"feature_limits"`
}

type pterodactylObject struct {
	Object     string          `json:"object"`
	Attributes json.RawMessage `json:"attributes"`
}

type pterodactylList struct {
	Object string              `json:"object"`
	Data   []pterodactylObject `json:"data"`
}

func pteroServerPath(id int, suffix string) string {
	return pterodactylBasePath + "/servers/" + itoa(id) + suffix
}

// FindUserByEmail returns nil without error when no panel user has the address.
func (c *PterodactylClient) FindUserByEmail(ctx context.Context, email string) (*PterodactylUser, error) {
	const op = "find_user"
	raw, err := c.t.jsonCall(ctx, op, http.MethodGet, pterodactylBasePath+"/users",
		url.Values{"filter[email]": {email}}, nil)
	if err != nil {
		return nil, err
	}
	var list pterodactylList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, c.t.decodeError(op, http.StatusOK, err, raw)
	}
	for _, item := range list.Data {
		var user PterodactylUser
		if err := json.Unmarshal(item.Attributes, &user); err != nil {
			return nil, c.t.decodeError(op, http.StatusOK, err, raw)
		}
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, nil
}

func (c *PterodactylClient) CreateUser(ctx context.Context, req CreateUserRequest) (*PterodactylUser, error) {
	const op = "create_user"
	raw, err := c.t.jsonCall(ctx, op, http.MethodPost, pterodactylBasePath+"/users", nil, req)
	if err != nil {
		return nil, err
	}
	var obj pterodactylObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, c.t.decodeError(op, http.StatusOK, err, raw)
	}
	var user PterodactylUser
	if err := json.Unmarshal(obj.Attributes, &user); err != nil {
		return nil, c.t.decodeError(op, http.StatusOK, err, raw)
	}
	return &user, nil
}

// CreateServer returns the raw response; the server id lives under attributes.id.
func (c *PterodactylClient) CreateServer(ctx context.Context, req CreateGameServerRequest) (json.RawMessage, error) {
	if req.Environment == nil {
		req.Environment = map[string]string{}
	}
	return c.t.jsonCall(ctx, "create_server", http.MethodPost, pterodactylBasePath+"/servers", nil, req)
}

func (c *PterodactylClient) GetServer(ctx context.Context, id int) (json.RawMessage, error) {
	return c.t.jsonCall(ctx, "get_server", http.MethodGet, pteroServerPath(id, ""), nil, nil)
}

func (c *PterodactylClient) SuspendServer(ctx context.Context, id int) error {
	_, err := c.t.jsonCall(ctx, "suspend_server", http.MethodPost, pteroServerPath(id, "/suspend"), nil, nil)
	return err
}

func (c *PterodactylClient) UnsuspendServer(ctx context.Context, id int) error {
	_, err := c.t.jsonCall(ctx, "unsuspend_server", http.MethodPost, pteroServerPath(id, "/unsuspend"), nil, nil)
	return err
}

// DeleteServer removes a server. force deletes it even when the node is unreachable.
func (c *PterodactylClient) DeleteServer(ctx context.Context, id int, force bool) error {
	path := pteroServerPath(id, "")
	if force {
		path += "/force"
	}
	_, err := c.t.jsonCall(ctx, "delete_server", http.MethodDelete, path, nil, nil)
	return err
}

func (c *PterodactylClient) ReinstallServer(ctx context.Context, id int) error {
	_, err := c.t.jsonCall(ctx, "reinstall_server", http.MethodPost, pteroServerPath(id, "/reinstall"), nil, nil)
	return err
}

func (c *PterodactylClient) UpdateBuild(ctx context.Context, id int, req UpdateBuildRequest) (json.RawMessage, error) {
	return c.t.jsonCall(ctx, "update_build", http.MethodPatch, pteroServerPath(id, "/build"), nil, req)
}

func (c *PterodactylClient) ListServers(ctx context.Context) (json.RawMessage, error) {
	return c.t.jsonCall(ctx, "list_servers", http.MethodGet, pterodactylBasePath+"/servers", nil, nil)
}

func (c *PterodactylClient) ListLocations(ctx context.Context) (json.RawMessage, error) {
	return c.t.jsonCall(ctx, "list_locations", http.MethodGet, pterodactylBasePath+"/locations", nil, nil)
}

func (c *PterodactylClient) ListNests(ctx context.Context) (json.RawMessage, error) {
	return c.t.jsonCall(ctx, "list_nests", http.MethodGet, pterodactylBasePath+"/nests", nil, nil)
}

// ListEggs includes the egg variables so callers can build an environment map.
func (c *PterodactylClient) ListEggs(ctx context.Context, nestID int) (json.RawMessage, error) {
	return c.t.jsonCall(ctx, "list_eggs", http.MethodGet, pterodactylBasePath+"/nests/"+itoa(nestID)+"/eggs",
		url.Values{"include": {"variables"}}, nil)
}

func (c *PterodactylClient) TestConnection(ctx context.Context) error {
	_, err := c.t.jsonCall(ctx, "test_connection", http.MethodGet, pterodactylBasePath+"/locations", nil, nil)
	return err
}
