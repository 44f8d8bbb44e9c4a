// Package audit delivers lifecycle audit events to the audit log and, optionally, the event bus.
package audit

import (
	"context"
	"errors"

	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

type Sink interface {
	Record(ctx context.Context, event *models.AuditEvent) error
}

// Store is the persistence side of the audit log (repository.AuditRepository).
type Store interface {
	Append(ctx context.Context, event *models.AuditEvent) error
}

// StoreSink writes events to the audit_logs table.
type StoreSink struct {
	store Store
}

func NewStoreSink(store Store) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Record(ctx context.Context, event *models.AuditEvent) error {
	return s.store.Append(ctx, event)
}

// MultiSink records every event to all sinks, even when an earlier one fails.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, event *models.AuditEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
