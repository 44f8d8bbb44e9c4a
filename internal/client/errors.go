package client

import "fmt"

// Provider names used in errors, logs and metrics
const (
	ProviderDirectAdmin = "directadmin"
	ProviderVirtFusion  = "virtfusion"
	ProviderPterodactyl = "pterodactyl"
)

// ProviderError is returned for every failed provider call: non-2xx responses,
// transport failures, undecodable bodies and application-level errors.
type ProviderError struct {
	Provider   string
	Operation  string
	HTTPStatus int // 0 when no response was received
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("%s %s failed (status %d): %s", e.Provider, e.Operation, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Provider, e.Operation, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
