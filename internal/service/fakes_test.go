package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
	"github.com/wenwu/saas-platform/provisioning-service/internal/provider"
	"github.com/wenwu/saas-platform/provisioning-service/internal/repository"
)

type memoryServices struct {
	mu       sync.Mutex
	services map[string]*models.ServiceContext
	saveErr  error
	// failTo makes transitions into the given status return errBoom
	failTo models.ServiceStatus
}

func newMemoryServices(contexts ...*models.ServiceContext) *memoryServices {
	m := &memoryServices{services: make(map[string]*models.ServiceContext)}
	for _, sc := range contexts {
		m.services[sc.Service.ID] = sc
	}
	return m
}

func (m *memoryServices) GetByID(_ context.Context, id string) (*models.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.services[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	svc := *sc.Service
	return &svc, nil
}

func (m *memoryServices) GetContext(_ context.Context, id string) (*models.ServiceContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.services[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	svc := *sc.Service
	clone := *sc
	clone.Service = &svc
	return &clone, nil
}

func (m *memoryServices) TransitionStatus(_ context.Context, id string, from []models.ServiceStatus, to models.ServiceStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTo != "" && m.failTo == to {
		return false, errBoom
	}
	sc, ok := m.services[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if sc.Service.Status == s {
			sc.Service.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryServices) SaveCredentials(_ context.Context, id string, creds models.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	sc, ok := m.services[id]
	if !ok {
		return repository.ErrNotFound
	}
	sc.Service.Username = strPtr(creds.Username)
	sc.Service.Password = strPtr(creds.Password)
	if creds.ExternalID != "" {
		sc.Service.ExternalID = strPtr(creds.ExternalID)
	}
	return nil
}

func (m *memoryServices) status(id string) models.ServiceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.services[id].Service.Status
}

func (m *memoryServices) service(id string) models.Service {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.services[id].Service
}

type memoryAttempts struct {
	mu          sync.Mutex
	attempts    []*models.ProvisionAttempt
	completeErr error
}

func (m *memoryAttempts) Create(_ context.Context, attempt *models.ProvisionAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	stored := *attempt
	m.attempts = append(m.attempts, &stored)
	return nil
}

func (m *memoryAttempts) finish(id string, apply func(a *models.ProvisionAttempt)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.ID == id && a.Status == models.AttemptStatusProcessing {
			apply(a)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memoryAttempts) MarkCompleted(_ context.Context, id string, result json.RawMessage) error {
	if m.completeErr != nil {
		return m.completeErr
	}
	return m.finish(id, func(a *models.ProvisionAttempt) {
		a.Status = models.AttemptStatusCompleted
		a.Result = result
	})
}

func (m *memoryAttempts) MarkFailed(_ context.Context, id, errorMsg string, attempts int) error {
	return m.finish(id, func(a *models.ProvisionAttempt) {
		a.Status = models.AttemptStatusFailed
		a.Error = strPtr(errorMsg)
		a.Attempts = attempts
	})
}

func (m *memoryAttempts) ListByService(_ context.Context, serviceID string, limit int) ([]*models.ProvisionAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ProvisionAttempt
	for i := len(m.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		if m.attempts[i].ServiceID == serviceID {
			out = append(out, m.attempts[i])
		}
	}
	return out, nil
}

func (m *memoryAttempts) all() []models.ProvisionAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ProvisionAttempt, len(m.attempts))
	for i, a := range m.attempts {
		out[i] = *a
	}
	return out
}

type memoryServers map[string]*models.Server

func (m memoryServers) GetByID(_ context.Context, id string) (*models.Server, error) {
	srv, ok := m[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return srv, nil
}

func (m memoryServers) List(context.Context) ([]*models.Server, error) {
	out := make([]*models.Server, 0, len(m))
	for _, srv := range m {
		out = append(out, srv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memoryAudit struct {
	mu     sync.Mutex
	events []*models.AuditEvent
	err    error
}

func (m *memoryAudit) Record(_ context.Context, event *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func (m *memoryAudit) ListByEntity(_ context.Context, entityType, entityID string, limit int) ([]*models.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AuditEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if e := m.events[i]; e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Action
	}
	return out
}

func (m *memoryAudit) last() *models.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

// fakeProvider counts calls and returns scripted results.
type fakeProvider struct {
	kind      models.ServerType
	createRaw json.RawMessage
	createErr error
	callErr   error

	mu       sync.Mutex
	creates  []provider.CreateRequest
	suspends []provider.ResourceRef
	resumes  []provider.ResourceRef
	deletes  []provider.ResourceRef
}

func (f *fakeProvider) Kind() models.ServerType { return f.kind }

func (f *fakeProvider) CreateResource(_ context.Context, req provider.CreateRequest) (*provider.CreateResult, error) {
	f.mu.Lock()
	f.creates = append(f.creates, req)
	f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}

	creds := models.Credentials{Username: req.Username, Password: req.Password}
	if f.kind != models.ServerTypeDirectAdmin {
		id, err := provider.ExtractExternalID(f.createRaw)
		if err != nil {
			return nil, err
		}
		creds.ExternalID = id
		if f.kind == models.ServerTypeVirtFusion {
			creds.Username = "root"
		}
	}
	return &provider.CreateResult{Credentials: creds, Raw: f.createRaw}, nil
}

func (f *fakeProvider) record(list *[]provider.ResourceRef, ref provider.ResourceRef) error {
	if f.kind != models.ServerTypeDirectAdmin && (ref.ExternalID == "" || ref.ExternalID == "0") {
		return provider.ErrResourceNotProvisioned
	}
	f.mu.Lock()
	*list = append(*list, ref)
	f.mu.Unlock()
	return f.callErr
}

func (f *fakeProvider) SuspendResource(_ context.Context, ref provider.ResourceRef) error {
	return f.record(&f.suspends, ref)
}

func (f *fakeProvider) UnsuspendResource(_ context.Context, ref provider.ResourceRef) error {
	return f.record(&f.resumes, ref)
}

func (f *fakeProvider) DeleteResource(_ context.Context, ref provider.ResourceRef) error {
	return f.record(&f.deletes, ref)
}

func (f *fakeProvider) TestConnection(context.Context) error { return f.callErr }

type fakeFactory struct {
	p   provider.Provider
	err error
}

func (f *fakeFactory) For(*models.Server) (provider.Provider, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.p, nil
}

var errBoom = errors.New("boom")

func strPtr(s string) *string { return &s }
