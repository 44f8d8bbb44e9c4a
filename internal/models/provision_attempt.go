package models

import (
	"encoding/json"
	"time"
)

// AttemptStatus is the lifecycle state of a ProvisionAttempt.
type AttemptStatus string

const (
	AttemptStatusProcessing AttemptStatus = "PROCESSING"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
	AttemptStatusFailed     AttemptStatus = "FAILED"
)

// ProvisionAttempt records the outcome of one provisionService call.
type ProvisionAttempt struct {
	ID        string
	ServiceID string
	Status    AttemptStatus
	Result    json.RawMessage
	Error     *string
	Attempts  int

	CreatedAt time.Time
	UpdatedAt time.Time
}
