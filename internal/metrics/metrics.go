package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "provisioning"

// Outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Metrics holds the collectors for provider traffic and lifecycle outcomes.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ProviderRequests *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	Lifecycle        *prometheus.CounterVec
}

// New constructs the collectors and registers them with reg (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Provider API requests partitioned by provider, operation, and outcome.",
	}, []string{"provider", "operation", "outcome"}))
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "request_duration_seconds",
		Help:      "Provider API request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "operation"}))
	if err != nil {
		return nil, err
	}

	lifecycle, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "service",
		Name:      "lifecycle_operations_total",
		Help:      "Service lifecycle operations partitioned by operation, server type, and outcome.",
	}, []string{"operation", "server_type", "outcome"}))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ProviderRequests: requests,
		ProviderDuration: duration,
		Lifecycle:        lifecycle,
	}, nil
}

// ObserveProviderCall records one provider API round trip.
func (m *Metrics) ObserveProviderCall(provider, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(provider, operation, outcome(err)).Inc()
	m.ProviderDuration.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

// ObserveLifecycle records the result of one orchestrator operation.
func (m *Metrics) ObserveLifecycle(operation, serverType, result string) {
	if m == nil {
		return
	}
	m.Lifecycle.WithLabelValues(operation, serverType, result).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

// register reuses an already registered collector of the same type.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
			var zero C
			return zero, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		var zero C
		return zero, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}
