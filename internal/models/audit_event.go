package models

import (
	"encoding/json"
	"time"
)

// Audit action tags emitted by the orchestrator
const (
	AuditServiceProvisioned     = "SERVICE_PROVISIONED"
	AuditServiceProvisionFailed = "SERVICE_PROVISION_FAILED"
	AuditServiceSuspended       = "SERVICE_SUSPENDED"
	AuditServiceUnsuspended     = "SERVICE_UNSUSPENDED"
	AuditServiceTerminated      = "SERVICE_TERMINATED"
)

// EntityTypeService is the audit entity type for service lifecycle events.
const EntityTypeService = "service"

// AuditEvent is one append-only audit log entry.
type AuditEvent struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	UserEmail  string          `json:"user_email"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Details    json.RawMessage `json:"details"`
	IPAddress  string          `json:"ip_address,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
