package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when the service status does not allow the requested operation.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrServiceBusy is returned when another lifecycle operation holds the service.
	ErrServiceBusy = errors.New("service is busy")
)

// ConfigurationError means the data needed to act on a service is missing or wrong.
// Retrying will not help until an operator fixes the service, product or server row.
type ConfigurationError struct {
	ServiceID string
	Reason    string
	Err       error
}

func (e *ConfigurationError) Error() string {
	if e.ServiceID == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error for service %s: %s", e.ServiceID, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a repository failure inside an orchestrator operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
