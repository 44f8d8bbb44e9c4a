package models

import "time"

// ServiceStatus is the lifecycle status of a purchased service.
type ServiceStatus string

const (
	ServiceStatusPending    ServiceStatus = "pending"
	ServiceStatusActive     ServiceStatus = "active"
	ServiceStatusSuspended  ServiceStatus = "suspended"
	ServiceStatusTerminated ServiceStatus = "terminated"

	// ServiceStatusProvisioning is held only while a provisionService call is in flight.
	ServiceStatusProvisioning ServiceStatus = "provisioning"
)

// IsTerminal reports whether no further lifecycle transition is allowed.
func (s ServiceStatus) IsTerminal() bool {
	return s == ServiceStatusTerminated
}

// Service is one purchased, provisionable unit.
type Service struct {
	ID        string
	UserID    string
	ProductID string
	Status    ServiceStatus

	// Remote identity, populated by a successful create and kept across suspend/unsuspend
	Username   *string
	Password   *string
	ExternalID *string
	Domain     *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Credentials is the remote identity written back onto a Service after provisioning.
type Credentials struct {
	Username   string
	Password   string
	ExternalID string
}

// ServiceContext is a Service joined with everything the orchestrator needs to act on it.
type ServiceContext struct {
	Service *Service
	Product *Product
	Server  *Server // nil when the product has no assigned server
	User    *User
}
