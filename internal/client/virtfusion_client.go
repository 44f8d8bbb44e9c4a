package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

const virtFusionBasePath = "/api/v1"

// VirtFusionClient manages virtual servers through the VirtFusion REST API.
type VirtFusionClient struct {
	t *transport
}

func NewVirtFusionClient(opts Options, apiKey string) *VirtFusionClient {
	authorize := func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+apiKey)
		r.Header.Set("Accept", "application/json")
	}
	return &VirtFusionClient{t: newTransport(ProviderVirtFusion, opts, authorize, jsonErrorMessage)}
}

// CreateServerRequest describes a new VPS. IPv4/IPv6 are allocation counts.
type CreateServerRequest struct {
	PackageID    int    `json:"packageId"`
	UserID       int    `json:"userId,omitempty"`
	HypervisorID int    `json:"hypervisorId,omitempty"`
	Hostname     string `json:"hostname,omitempty"`
	Password     string `json:"password,omitempty"`
	IPv4         int    `json:"ipv4,omitempty"`
	IPv6         int    `json:"ipv6,omitempty"`
}

// ReinstallRequest rebuilds a server from an OS template.
type ReinstallRequest struct {
	OperatingSystemID int    `json:"operatingSystemId"`
	Name              string `json:"name,omitempty"`
	Hostname          string `json:"hostname,omitempty"`
	SSHKeys           []int  `json:"sshKeys,omitempty"`
}

func serverPath(id int, suffix string) string {
	return virtFusionBasePath + "/servers/" + itoa(id) + suffix
}

// CreateServer returns the raw creation response; the server id lives under data.id.
func (c *VirtFusionClient) CreateServer(ctx context.Context, req CreateServerRequest) (json.RawMessage, error) {
	return c.t.jsonCall(ctx, "create_server", http.MethodPost, virtFusionBasePath+"/servers", nil, req)
}

func (c *VirtFusionClient) GetServer(ctx context.Context, id int) (json.RawMessage, error) {
	return c.t.jsonCall(ctx, "get_server", http.MethodGet, serverPath(id, ""), nil, nil)
}

func (c *VirtFusionClient) SuspendServer(ctx context.Context, id int) error {
	_, err := c.t.jsonCall(ctx, "suspend_server", http.MethodPost, serverPath(id, "/suspend"), nil, nil)
	return err
}

func (c *VirtFusionClient) UnsuspendServer(ctx context.Context, id int) error {
	_, err := c.t.jsonCall(ctx, "unsuspend_server", http.MethodPost, serverPath(id, "/unsuspend"), nil, nil)
	return err
}

// TerminateServer deletes the server and releases its resources.
func (c *VirtFusionClient) TerminateServer(ctx context.Context, id int) error {
	_, err := c.t.jsonCall(ctx, "terminate_server", http.MethodDelete, serverPath(id, ""), nil, nil)
	return err
}

func (c *VirtFusionClient) RebootServer(ctx context.Context, id int) error {
	return c.power(ctx, "reboot_server", id, "restart")
}

func (c *VirtFusionClient) StartServer(ctx context.Context, id int) error {
	return c.power(ctx, "start_server", id, "boot")
}

// StopServer cuts power immediately. Use ShutdownServer for a graceful ACPI shutdown.
func (c *VirtFusionClient) StopServer(ctx context.Context, id int) error {
	return c.power(ctx, "stop_server", id, "poweroff")
}

func (c *VirtFusionClient) ShutdownServer(ctx context.Context, id int) error {
	return c.power(ctx, "shutdown_server", id, "shutdown")
}

func (c *VirtFusionClient) power(ctx context.Context, op string, id int, action string) error {
	_, err := c.t.jsonCall(ctx, op, http.MethodPost, serverPath(id, "/power/"+action), nil, nil)
	return err
}

func (c *VirtFusionClient) ReinstallServer(ctx context.Context, id int, req ReinstallRequest) (json.RawMessage, error) {
	return c.t.jsonCall(ctx, "reinstall_server", http.MethodPost, serverPath(id, "/build"), nil, req)
}

// ResizeServer moves the server to another package.
func (c *VirtFusionClient) ResizeServer(ctx context.Context, id, packageID int) error {
	_, err := c.t.jsonCall(ctx, "resize_server", http.MethodPut, serverPath(id, "/package/"+itoa(packageID)), nil, nil)
	return err
}

// ChangePassword resets the root password. The API generates one when password is empty.
func (c *VirtFusionClient) ChangePassword(ctx context.Context, id int, password string) (json.RawMessage, error) {
	payload := map[string]any{"user": "root", "sendMail": false}
	if password != "" {
		payload["password"] = password
	}
	return c.t.jsonCall(ctx, "change_password", http.MethodPost, serverPath(id, "/resetPassword"), nil, payload)
}

func (c *VirtFusionClient) GetStats(ctx context.Context, id int) (json.RawMessage, error) {
	return c.t.jsonCall(ctx, "get_stats", http.MethodGet, serverPath(id, "/traffic"), nil, nil)
}

// GetConsoleURL enables VNC and returns the console URL found in the response.
func (c *VirtFusionClient) GetConsoleURL(ctx context.Context, id int) (string, error) {
	const op = "get_console_url"
	raw, err := c.t.jsonCall(ctx, op, http.MethodPost, serverPath(id, "/vnc"), nil, map[string]bool{"vnc": true})
	if err != nil {
		return "", err
	}
	var resp struct {
		Data struct {
			VNC struct {
				URL string `json:"url"`
			} `json:"vnc"`
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", c.t.decodeError(op, http.StatusOK, err, raw)
	}
	if resp.Data.VNC.URL != "" {
		return resp.Data.VNC.URL, nil
	}
	return resp.Data.URL, nil
}

func (c *VirtFusionClient) MountISO(ctx context.Context, id, isoID int) error {
	_, err := c.t.jsonCall(ctx, "mount_iso", http.MethodPost, serverPath(id, "/media/iso/"+itoa(isoID)), nil, nil)
	return err
}

func (c *VirtFusionClient) UnmountISO(ctx context.Context, id int) error {
	_, err := c.t.jsonCall(ctx, "unmount_iso", http.MethodDelete, serverPath(id, "/media/iso"), nil, nil)
	return err
}

// ListServers returns one page of servers. page starts at 1.
func (c *VirtFusionClient) ListServers(ctx context.Context, page int) (json.RawMessage, error) {
	var params url.Values
	if page > 0 {
		params = url.Values{"page": {itoa(page)}}
	}
	return c.t.jsonCall(ctx, "list_servers", http.MethodGet, virtFusionBasePath+"/servers", params, nil)
}

func (c *VirtFusionClient) ListPackages(ctx context.Context) (json.RawMessage, error) {
	return c.t.jsonCall(ctx, "list_packages", http.MethodGet, virtFusionBasePath+"/packages", nil, nil)
}

func (c *VirtFusionClient) TestConnection(ctx context.Context) error {
	_, err := c.t.jsonCall(ctx, "test_connection", http.MethodGet, virtFusionBasePath+"/connect", nil, nil)
	return err
}
