package models

import (
	"encoding/json"
	"time"
)

// ==================== Internal API DTOs ====================

// ServiceResponse is the API view of a Service. The remote password is never returned.
type ServiceResponse struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	ProductID   string        `json:"product_id"`
	Status      ServiceStatus `json:"status"`
	Username    *string       `json:"username,omitempty"`
	ExternalID  *string       `json:"external_id,omitempty"`
	Domain      *string       `json:"domain,omitempty"`
	HasPassword bool          `json:"has_password"`
	CreatedAt   string        `json:"created_at"`
	UpdatedAt   string        `json:"updated_at"`
}

// NewServiceResponse redacts credentials from svc.
func NewServiceResponse(svc *Service) ServiceResponse {
	return ServiceResponse{
		ID:          svc.ID,
		UserID:      svc.UserID,
		ProductID:   svc.ProductID,
		Status:      svc.Status,
		Username:    svc.Username,
		ExternalID:  svc.ExternalID,
		Domain:      svc.Domain,
		HasPassword: svc.Password != nil && *svc.Password != "",
		CreatedAt:   formatTime(svc.CreatedAt),
		UpdatedAt:   formatTime(svc.UpdatedAt),
	}
}

// ProvisionResponse is returned after a successful provision call
type ProvisionResponse struct {
	ServiceID  string          `json:"service_id"`
	AttemptID  string          `json:"attempt_id"`
	ServerType ServerType      `json:"server_type"`
	Status     ServiceStatus   `json:"status"`
	Username   string          `json:"username"`
	ExternalID string          `json:"external_id,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Message    string          `json:"message"`
}

// LifecycleResponse is returned after suspend, unsuspend and terminate
type LifecycleResponse struct {
	ServiceID string        `json:"service_id"`
	Status    ServiceStatus `json:"status"`
	Message   string        `json:"message"`
}

// AttemptResponse is one entry of a service's provisioning history
type AttemptResponse struct {
	ID        string          `json:"id"`
	ServiceID string          `json:"service_id"`
	Status    AttemptStatus   `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *string         `json:"error,omitempty"`
	Attempts  int             `json:"attempts"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

func NewAttemptResponse(a *ProvisionAttempt) AttemptResponse {
	return AttemptResponse{
		ID:        a.ID,
		ServiceID: a.ServiceID,
		Status:    a.Status,
		Result:    a.Result,
		Error:     a.Error,
		Attempts:  a.Attempts,
		CreatedAt: formatTime(a.CreatedAt),
		UpdatedAt: formatTime(a.UpdatedAt),
	}
}

// AttemptListResponse wraps a service's attempts, newest first
type AttemptListResponse struct {
	ServiceID string            `json:"service_id"`
	Attempts  []AttemptResponse `json:"attempts"`
}

// ConnectionTestResponse reports the outcome of a server credential probe
type ConnectionTestResponse struct {
	ServerID  string `json:"server_id"`
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

// AuditEventResponse is one entry of a service's audit trail
type AuditEventResponse struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	UserEmail string          `json:"user_email,omitempty"`
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details"`
	IPAddress string          `json:"ip_address,omitempty"`
	CreatedAt string          `json:"created_at"`
}

func NewAuditEventResponse(e *AuditEvent) AuditEventResponse {
	return AuditEventResponse{
		ID:        e.ID,
		UserID:    e.UserID,
		UserEmail: e.UserEmail,
		Action:    e.Action,
		Details:   e.Details,
		IPAddress: e.IPAddress,
		CreatedAt: formatTime(e.CreatedAt),
	}
}

// ServerResponse describes a panel endpoint without its secrets
type ServerResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Type           ServerType `json:"type"`
	APIURL         string     `json:"api_url"`
	APIVersion     string     `json:"api_version,omitempty"`
	Hostname       *string    `json:"hostname,omitempty"`
	HasCredentials bool       `json:"has_credentials"`
}

func NewServerResponse(s *Server) ServerResponse {
	hasKey := s.APIKey != nil && *s.APIKey != ""
	hasPassword := s.Password != nil && *s.Password != ""
	return ServerResponse{
		ID:             s.ID,
		Name:           s.Name,
		Type:           s.Type,
		APIURL:         s.APIURL,
		APIVersion:     s.APIVersion,
		Hostname:       s.Hostname,
		HasCredentials: hasKey || hasPassword,
	}
}

// ==================== User API DTOs ====================

// MyServiceResponse is what a customer sees of their own service
type MyServiceResponse struct {
	ID         string        `json:"id"`
	Status     ServiceStatus `json:"status"`
	Username   *string       `json:"username,omitempty"`
	Domain     *string       `json:"domain,omitempty"`
	ExternalID *string       `json:"external_id,omitempty"`
	CreatedAt  string        `json:"created_at"`
}

func NewMyServiceResponse(svc *Service) MyServiceResponse {
	return MyServiceResponse{
		ID:         svc.ID,
		Status:     svc.Status,
		Username:   svc.Username,
		Domain:     svc.Domain,
		ExternalID: svc.ExternalID,
		CreatedAt:  formatTime(svc.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
