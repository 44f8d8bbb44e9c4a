package models

import "time"

// ServerType identifies the hosting control plane behind a Server.
type ServerType string

const (
	ServerTypeDirectAdmin ServerType = "DIRECTADMIN"
	ServerTypeVirtFusion  ServerType = "VIRTFUSION"
	ServerTypePterodactyl ServerType = "PTERODACTYL"
)

// DirectAdmin API generations
const (
	APIVersionV1 = "v1"
	APIVersionV2 = "v2"
)

// Server describes one provider endpoint and the credentials used against it.
type Server struct {
	ID       string
	Name     string
	Type     ServerType
	APIURL   string
	Hostname *string

	Username   *string
	Password   *string
	APIKey     *string
	APIVersion string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UsesLegacyAPI reports whether a DirectAdmin server speaks the CMD_API_* protocol.
func (s *Server) UsesLegacyAPI() bool {
	return s.APIVersion == APIVersionV1
}

// Product is a sellable plan bound to at most one Server.
type Product struct {
	ID       string
	Name     string
	ServerID *string
	Config   ProductConfig
}

// ProductConfig holds provider plan parameters, stored as JSONB on the product row.
type ProductConfig struct {
	// DirectAdmin
	Package string `json:"package,omitempty"`

	// VirtFusion
	PackageID    int `json:"package_id,omitempty"`
	HypervisorID int `json:"hypervisor_id,omitempty"`
	IPv4         int `json:"ipv4,omitempty"`
	IPv6         int `json:"ipv6,omitempty"`
	VFUserID     int `json:"user_id,omitempty"`

	// Pterodactyl
	Memory       int               `json:"memory,omitempty"`
	Swap         int               `json:"swap,omitempty"`
	Disk         int               `json:"disk,omitempty"`
	IO           int               `json:"io,omitempty"`
	CPU          int               `json:"cpu,omitempty"`
	Databases    int               `json:"databases,omitempty"`
	Allocations  int               `json:"allocations,omitempty"`
	Backups      int               `json:"backups,omitempty"`
	EggID        int               `json:"egg_id,omitempty"`
	NestID       int               `json:"nest_id,omitempty"`
	DockerImage  string            `json:"docker_image,omitempty"`
	Startup      string            `json:"startup,omitempty"`
	AllocationID int               `json:"allocation_id,omitempty"`
	Environment  map[string]string `json:"environment,omitempty"`
}

// User is the owning customer of a Service.
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}
