package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wenwu/saas-platform/provisioning-service/internal/client"
	"github.com/wenwu/saas-platform/provisioning-service/internal/lock"
	"github.com/wenwu/saas-platform/provisioning-service/internal/metrics"
	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
	"github.com/wenwu/saas-platform/provisioning-service/internal/provider"
	"github.com/wenwu/saas-platform/provisioning-service/internal/repository"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newServiceContext(id string, status models.ServiceStatus, serverType models.ServerType) *models.ServiceContext {
	return &models.ServiceContext{
		Service: &models.Service{
			ID:        id,
			UserID:    "user-1",
			ProductID: "prod-1",
			Status:    status,
			Domain:    strPtr("example.com"),
		},
		Product: &models.Product{ID: "prod-1", Name: "Starter", ServerID: strPtr("srv-1")},
		Server: &models.Server{
			ID:       "srv-1",
			Type:     serverType,
			APIURL:   "https://panel.example.com",
			Username: strPtr("admin"),
			Password: strPtr("pw"),
			APIKey:   strPtr("key"),
		},
		User: &models.User{ID: "user-1", Email: "jane@example.com", FirstName: "Jane", LastName: "Doe"},
	}
}

type harness struct {
	svc      *ProvisionService
	services *memoryServices
	attempts *memoryAttempts
	audit    *memoryAudit
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T, factory ProviderFactory, contexts ...*models.ServiceContext) *harness {
	t.Helper()
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	h := &harness{
		services: newMemoryServices(contexts...),
		attempts: &memoryAttempts{},
		audit:    &memoryAudit{},
		metrics:  m,
	}
	h.svc = NewProvisionService(Dependencies{
		Services:  h.services,
		Attempts:  h.attempts,
		Servers:   memoryServers{},
		Audit:     h.audit,
		AuditLog:  h.audit,
		Locker:    lock.NewLocalLocker(50*time.Millisecond, nil),
		Providers: factory,
		Metrics:   m,
		Logger:    zaptest.NewLogger(t),
		Now:       func() time.Time { return fixedNow },
	})
	return h
}

func TestProvisionDirectAdminSuccess(t *testing.T) {
	p := &fakeProvider{kind: models.ServerTypeDirectAdmin, createRaw: json.RawMessage(`{"error":"0","text":"User created"}`)}
	h := newHarness(t, &fakeFactory{p: p}, newServiceContext("svc-1", models.ServiceStatusPending, models.ServerTypeDirectAdmin))

	ctx := WithRequestMeta(context.Background(), RequestMeta{UserID: "admin-7", UserEmail: "ops@example.com", IPAddress: "10.0.0.1", UserAgent: "curl"})
	res, err := h.svc.ProvisionService(ctx, "svc-1")
	require.NoError(t, err)

	require.Len(t, p.creates, 1)
	req := p.creates[0]
	assert.Equal(t, "user_1772366400000", req.Username)
	assert.Len(t, req.Password, 16)
	assert.Equal(t, "example.com", req.Domain)
	assert.Equal(t, "jane@example.com", req.Owner.Email)

	stored := h.services.service("svc-1")
	assert.Equal(t, models.ServiceStatusActive, stored.Status)
	assert.Equal(t, req.Username, *stored.Username)
	assert.Equal(t, req.Password, *stored.Password)
	assert.Nil(t, stored.ExternalID)

	attempts := h.attempts.all()
	require.Len(t, attempts, 1)
	assert.Equal(t, models.AttemptStatusCompleted, attempts[0].Status)
	assert.JSONEq(t, `{"error":"0","text":"User created"}`, string(attempts[0].Result))
	assert.Equal(t, res.AttemptID, attempts[0].ID)

	assert.Equal(t, []string{models.AuditServiceProvisioned}, h.audit.actions())
	event := h.audit.last()
	assert.Equal(t, "admin-7", event.UserID)
	assert.Equal(t, "10.0.0.1", event.IPAddress)
	assert.Equal(t, "curl", event.UserAgent)
	assert.Equal(t, models.EntityTypeService, event.EntityType)
	assert.Equal(t, "svc-1", event.EntityID)
	var details map[string]any
	require.NoError(t, json.Unmarshal(event.Details, &details))
	assert.Equal(t, "Starter", details["productName"])
	assert.Equal(t, "DIRECTADMIN", details["serverType"])
	assert.Contains(t, details, "result")

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Lifecycle.WithLabelValues(OpProvision, "DIRECTADMIN", metrics.OutcomeSuccess)))
}

func TestProvisionStoresExternalIDForEveryShape(t *testing.T) {
	shapes := []string{
		`{"id":5}`,
		`{"data":{"id":5}}`,
		`{"server_id":5}`,
		`{"server":{"id":5}}`,
		`{"attributes":{"id":5}}`,
	}
	for _, kind := range []models.ServerType{models.ServerTypeVirtFusion, models.ServerTypePterodactyl} {
		for _, shape := range shapes {
			t.Run(string(kind)+" "+shape, func(t *testing.T) {
				p := &fakeProvider{kind: kind, createRaw: json.RawMessage(shape)}
				h := newHarness(t, &fakeFactory{p: p}, newServiceContext("svc-1", models.ServiceStatusPending, kind))

				res, err := h.svc.ProvisionService(context.Background(), "svc-1")
				require.NoError(t, err)
				assert.Equal(t, "5", res.ExternalID)

				stored := h.services.service("svc-1")
				assert.Equal(t, models.ServiceStatusActive, stored.Status)
				require.NotNil(t, stored.ExternalID)
				assert.Equal(t, "5", *stored.ExternalID)
				require.NotNil(t, stored.Username)
			})
		}
	}
}

func TestProvisionReusesExistingCredentials(t *testing.T) {
	sc := newServiceContext("svc-1", models.ServiceStatusPending, models.ServerTypeDirectAdmin)
	sc.Service.Username = strPtr("jane01")
	sc.Service.Password = strPtr("existing-password")

	p := &fakeProvider{kind: models.ServerTypeDirectAdmin}
	h := newHarness(t, &fakeFactory{p: p}, sc)

	_, err := h.svc.ProvisionService(context.Background(), "svc-1")
	require.NoError(t, err)
	require.Len(t, p.creates, 1)
	assert.Equal(t, "jane01", p.creates[0].Username)
	assert.Equal(t, "existing-password", p.creates[0].Password)
}

func TestProvisionFailureRecordsOneFailedAttempt(t *testing.T) {
	providerErr := &client.ProviderError{Provider: client.ProviderVirtFusion, Operation: "create_server", HTTPStatus: 500, Message: "hypervisor offline"}
	p := &fakeProvider{kind: models.ServerTypeVirtFusion, createErr: providerErr}
	h := newHarness(t, &fakeFactory{p: p}, newServiceContext("svc-1", models.ServiceStatusPending, models.ServerTypeVirtFusion))

	_, err := h.svc.ProvisionService(context.Background(), "svc-1")
	require.Error(t, err)

	var perr *client.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Len(t, p.creates, 1)

	assert.Equal(t, models.ServiceStatusPending, h.services.status("svc-1"))

	attempts := h.attempts.all()
	require.Len(t, attempts, 1)
	assert.Equal(t, models.AttemptStatusFailed, attempts[0].Status)
	assert.Equal(t, 1, attempts[0].Attempts)
	require.NotNil(t, attempts[0].Error)
	assert.Contains(t, *attempts[0].Error, "hypervisor offline")

	assert.Equal(t, []string{models.AuditServiceProvisionFailed}, h.audit.actions())
	var details map[string]any
	require.NoError(t, json.Unmarshal(h.audit.last().Details, &details))
	assert.Contains(t, details["error"], "hypervisor offline")
	assert.Equal(t, "VIRTFUSION", details["serverType"])

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Lifecycle.WithLabelValues(OpProvision, "VIRTFUSION", metrics.OutcomeError)))
}

func TestProvisionMissingExternalIDFails(t *testing.T) {
	p := &fakeProvider{kind: models.ServerTypePterodactyl, createRaw: json.RawMessage(`{"object":"server"}`)}
	h := newHarness(t, &fakeFactory{p: p}, newServiceContext("svc-1", models.ServiceStatusPending, models.ServerTypePterodactyl))

	_, err := h.svc.ProvisionService(context.Background(), "svc-1")
	assert.ErrorIs(t, err, provider.ErrExternalIDNotFound)
	assert.Equal(t, models.ServiceStatusPending, h.services.status("svc-1"))
	require.Len(t, h.attempts.all(), 1)
	assert.Equal(t, models.AttemptStatusFailed, h.attempts.all()[0].Status)
}

func TestProvisionPersistenceFailure(t *testing.T) {
	p := &fakeProvider{kind: models.ServerTypeDirectAdmin}
	h := newHarness(t, &fakeFactory{p: p}, newServiceContext("svc-1", models.ServiceStatusPending, models.ServerTypeDirectAdmin))
	h.services.saveErr = errBoom

	_, err := h.svc.ProvisionService(context.Background(), "svc-1")

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "save service credentials", perr.Op)
	assert.Equal(t, models.ServiceStatusPending, h.services.status("svc-1"))
	assert.Equal(t, models.AttemptStatusFailed, h.attempts.all()[0].Status)
}

func TestProvisionPreconditions(t *testing.T) {
	noServer := newServiceContext("svc-2", models.ServiceStatusPending, models.ServerTypeDirectAdmin)
	noServer.Server = nil

	h := newHarness(t, &fakeFactory{p: &fakeProvider{kind: models.ServerTypeDirectAdmin}},
		newServiceContext("svc-active", models.ServiceStatusActive, models.ServerTypeDirectAdmin),
		newServiceContext("svc-busy", models.ServiceStatusProvisioning, models.ServerTypeDirectAdmin),
		noServer,
	)

	_, err := h.svc.ProvisionService(context.Background(), "missing")
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = h.svc.ProvisionService(context.Background(), "svc-2")
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "product has no assigned server", cfgErr.Reason)

	_, err = h.svc.ProvisionService(context.Background(), "svc-active")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = h.svc.ProvisionService(context.Background(), "svc-busy")
	assert.ErrorIs(t, err, ErrServiceBusy)

	assert.Empty(t, h.attempts.all())
}

func TestProvisionMissingCredentialsIsConfigurationError(t *testing.T) {
	h := newHarness(t, &fakeFactory{err: provider.ErrMissingCredentials},
		newServiceContext("svc-1", models.ServiceStatusPending, models.ServerTypeVirtFusion))

	_, err := h.svc.ProvisionService(context.Background(), "svc-1")

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.ErrorIs(t, err, provider.ErrMissingCredentials)
	assert.Equal(t, models.ServiceStatusPending, h.services.status("svc-1"))

	attempts := h.attempts.all()
	require.Len(t, attempts, 1)
	assert.Equal(t, models.AttemptStatusFailed, attempts[0].Status)
	require.NotNil(t, attempts[0].Error)
	assert.Contains(t, *attempts[0].Error, "missing provider credentials")
	assert.Equal(t, []string{models.AuditServiceProvisionFailed}, h.audit.actions())
}

func TestProvisionActivationFailureRecordsFailedAttempt(t *testing.T) {
	p := &fakeProvider{kind: models.ServerTypeVirtFusion, createRaw: json.RawMessage(`{"data":{"id":7}}`)}
	h := newHarness(t, &fakeFactory{p: p}, newServiceContext("svc-1", models.ServiceStatusPending, models.ServerTypeVirtFusion))
	h.services.failTo = models.ServiceStatusActive

	_, err := h.svc.ProvisionService(context.Background(), "svc-1")

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "activate service", perr.Op)
	assert.Equal(t, models.ServiceStatusPending, h.services.status("svc-1"))

	attempts := h.attempts.all()
	require.Len(t, attempts, 1)
	assert.Equal(t, models.AttemptStatusFailed, attempts[0].Status)
	assert.Nil(t, attempts[0].Result)
}

func TestProvisionAttemptCompletionFailureKeepsServiceActive(t *testing.T) {
	p := &fakeProvider{kind: models.ServerTypeVirtFusion, createRaw: json.RawMessage(`{"data":{"id":7}}`)}
	h := newHarness(t, &fakeFactory{p: p}, newServiceContext("svc-1", models.ServiceStatusPending, models.ServerTypeVirtFusion))
	h.attempts.completeErr = errBoom

	result, err := h.svc.ProvisionService(context.Background(), "svc-1")
	require.NoError(t, err)
	assert.Equal(t, "7", result.ExternalID)
	assert.Equal(t, models.ServiceStatusActive, h.services.status("svc-1"))
	assert.Equal(t, []string{models.AuditServiceProvisioned}, h.audit.actions())
}

func TestProvisionMissingPlanConfigIsConfigurationError(t *testing.T) {
	p := &fakeProvider{kind: models.ServerTypeVirtFusion, createErr: provider.ErrMissingPlanConfig}
	h := newHarness(t, &fakeFactory{p: p}, newServiceContext("svc-1", models.ServiceStatusPending, models.ServerTypeVirtFusion))

	_, err := h.svc.ProvisionService(context.Background(), "svc-1")

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, models.AttemptStatusFailed, h.attempts.all()[0].Status)
}

func TestConcurrentProvisionCreatesOnce(t *testing.T) {
	p := &fakeProvider{kind: models.ServerTypeDirectAdmin}
	h := newHarness(t, &fakeFactory{p: p}, newServiceContext("svc-1", models.ServiceStatusPending, models.ServerTypeDirectAdmin))

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.ProvisionService(context.Background(), "svc-1")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrServiceBusy), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, p.creates, 1)
	assert.Len(t, h.attempts.all(), 1)
}

func TestSuspendTwiceCallsProviderTwice(t *testing.T) {
	sc := newServiceContext("svc-1", models.ServiceStatusActive, models.ServerTypeVirtFusion)
	sc.Service.ExternalID = strPtr("42")
	p := &fakeProvider{kind: models.ServerTypeVirtFusion}
	h := newHarness(t, &fakeFactory{p: p}, sc)

	require.NoError(t, h.svc.SuspendService(context.Background(), "svc-1"))
	require.NoError(t, h.svc.SuspendService(context.Background(), "svc-1"))

	require.Len(t, p.suspends, 2)
	assert.Equal(t, "42", p.suspends[1].ExternalID)
	assert.Equal(t, models.ServiceStatusSuspended, h.services.status("svc-1"))
	assert.Equal(t, []string{models.AuditServiceSuspended, models.AuditServiceSuspended}, h.audit.actions())
}

func TestSuspendUnsuspendCycle(t *testing.T) {
	sc := newServiceContext("svc-1", models.ServiceStatusActive, models.ServerTypeDirectAdmin)
	sc.Service.Username = strPtr("user_1")
	p := &fakeProvider{kind: models.ServerTypeDirectAdmin}
	h := newHarness(t, &fakeFactory{p: p}, sc)

	for i := 0; i < 2; i++ {
		require.NoError(t, h.svc.SuspendService(context.Background(), "svc-1"))
		assert.Equal(t, models.ServiceStatusSuspended, h.services.status("svc-1"))
		require.NoError(t, h.svc.UnsuspendService(context.Background(), "svc-1"))
		assert.Equal(t, models.ServiceStatusActive, h.services.status("svc-1"))
	}

	assert.Len(t, p.suspends, 2)
	assert.Len(t, p.resumes, 2)
	assert.Equal(t, "user_1", p.resumes[0].Username)
}

func TestSuspendFailureLeavesStatus(t *testing.T) {
	sc := newServiceContext("svc-1", models.ServiceStatusActive, models.ServerTypePterodactyl)
	sc.Service.ExternalID = strPtr("7")
	p := &fakeProvider{kind: models.ServerTypePterodactyl, callErr: errBoom}
	h := newHarness(t, &fakeFactory{p: p}, sc)

	err := h.svc.SuspendService(context.Background(), "svc-1")
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, models.ServiceStatusActive, h.services.status("svc-1"))
	assert.Empty(t, h.audit.actions())
	assert.Empty(t, h.attempts.all())
}

func TestSuspendWithoutExternalIDSkipsProvider(t *testing.T) {
	sc := newServiceContext("svc-1", models.ServiceStatusActive, models.ServerTypeVirtFusion)
	sc.Service.ExternalID = strPtr("0")
	p := &fakeProvider{kind: models.ServerTypeVirtFusion}
	h := newHarness(t, &fakeFactory{p: p}, sc)

	require.NoError(t, h.svc.SuspendService(context.Background(), "svc-1"))

	assert.Empty(t, p.suspends)
	assert.Equal(t, models.ServiceStatusSuspended, h.services.status("svc-1"))

	var details map[string]any
	require.NoError(t, json.Unmarshal(h.audit.last().Details, &details))
	assert.Equal(t, true, details["skipped"])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Lifecycle.WithLabelValues(OpSuspend, "VIRTFUSION", metrics.OutcomeSkipped)))
}

func TestSuspendRequiresActiveOrSuspended(t *testing.T) {
	h := newHarness(t, &fakeFactory{p: &fakeProvider{kind: models.ServerTypeDirectAdmin}},
		newServiceContext("svc-1", models.ServiceStatusPending, models.ServerTypeDirectAdmin))

	assert.ErrorIs(t, h.svc.SuspendService(context.Background(), "svc-1"), ErrInvalidTransition)
	assert.ErrorIs(t, h.svc.UnsuspendService(context.Background(), "svc-1"), ErrInvalidTransition)
}

func TestTerminateIsFinal(t *testing.T) {
	sc := newServiceContext("svc-1", models.ServiceStatusSuspended, models.ServerTypePterodactyl)
	sc.Service.ExternalID = strPtr("77")
	p := &fakeProvider{kind: models.ServerTypePterodactyl}
	h := newHarness(t, &fakeFactory{p: p}, sc)

	require.NoError(t, h.svc.TerminateService(context.Background(), "svc-1"))
	assert.Equal(t, models.ServiceStatusTerminated, h.services.status("svc-1"))
	require.Len(t, p.deletes, 1)
	assert.Equal(t, "77", p.deletes[0].ExternalID)

	_, err := h.svc.ProvisionService(context.Background(), "svc-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, h.svc.SuspendService(context.Background(), "svc-1"), ErrInvalidTransition)
	assert.ErrorIs(t, h.svc.UnsuspendService(context.Background(), "svc-1"), ErrInvalidTransition)
	assert.ErrorIs(t, h.svc.TerminateService(context.Background(), "svc-1"), ErrInvalidTransition)

	assert.Equal(t, models.ServiceStatusTerminated, h.services.status("svc-1"))
	assert.Len(t, p.deletes, 1)
	assert.Empty(t, p.suspends)
	assert.Empty(t, p.resumes)
	assert.Equal(t, []string{models.AuditServiceTerminated}, h.audit.actions())
}

func TestTerminatePendingServiceWithoutRemoteResource(t *testing.T) {
	p := &fakeProvider{kind: models.ServerTypeVirtFusion}
	h := newHarness(t, &fakeFactory{p: p}, newServiceContext("svc-1", models.ServiceStatusPending, models.ServerTypeVirtFusion))

	require.NoError(t, h.svc.TerminateService(context.Background(), "svc-1"))
	assert.Equal(t, models.ServiceStatusTerminated, h.services.status("svc-1"))
	assert.Empty(t, p.deletes)
}

func TestLifecycleBusyWhenLockHeld(t *testing.T) {
	sc := newServiceContext("svc-1", models.ServiceStatusActive, models.ServerTypeDirectAdmin)
	sc.Service.Username = strPtr("user_1")
	h := newHarness(t, &fakeFactory{p: &fakeProvider{kind: models.ServerTypeDirectAdmin}}, sc)

	unlock, err := h.svc.locks.Acquire(context.Background(), "svc-1")
	require.NoError(t, err)
	defer func() { _ = unlock(context.Background()) }()

	assert.ErrorIs(t, h.svc.SuspendService(context.Background(), "svc-1"), ErrServiceBusy)
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	sc := newServiceContext("svc-1", models.ServiceStatusActive, models.ServerTypeDirectAdmin)
	sc.Service.Username = strPtr("user_1")
	h := newHarness(t, &fakeFactory{p: &fakeProvider{kind: models.ServerTypeDirectAdmin}}, sc)
	h.audit.err = errBoom

	require.NoError(t, h.svc.SuspendService(context.Background(), "svc-1"))
	assert.Equal(t, models.ServiceStatusSuspended, h.services.status("svc-1"))
}

func TestListAttempts(t *testing.T) {
	p := &fakeProvider{kind: models.ServerTypeDirectAdmin, createErr: errBoom}
	h := newHarness(t, &fakeFactory{p: p}, newServiceContext("svc-1", models.ServiceStatusPending, models.ServerTypeDirectAdmin))

	_, err := h.svc.ProvisionService(context.Background(), "svc-1")
	require.Error(t, err)
	p.createErr = nil
	_, err = h.svc.ProvisionService(context.Background(), "svc-1")
	require.NoError(t, err)

	attempts, err := h.svc.ListAttempts(context.Background(), "svc-1", 0)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, models.AttemptStatusCompleted, attempts[0].Status)
	assert.Equal(t, models.AttemptStatusFailed, attempts[1].Status)

	_, err = h.svc.ListAttempts(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListAuditEvents(t *testing.T) {
	sc := newServiceContext("svc-1", models.ServiceStatusActive, models.ServerTypeDirectAdmin)
	sc.Service.Username = strPtr("user_1")
	h := newHarness(t, &fakeFactory{p: &fakeProvider{kind: models.ServerTypeDirectAdmin}}, sc)

	require.NoError(t, h.svc.SuspendService(context.Background(), "svc-1"))
	require.NoError(t, h.svc.UnsuspendService(context.Background(), "svc-1"))

	events, err := h.svc.ListAuditEvents(context.Background(), "svc-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.AuditServiceUnsuspended, events[0].Action)
	assert.Equal(t, models.AuditServiceSuspended, events[1].Action)

	_, err = h.svc.ListAuditEvents(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListServers(t *testing.T) {
	h := newHarness(t, &fakeFactory{})
	h.svc.servers = memoryServers{
		"srv-2": {ID: "srv-2", Type: models.ServerTypePterodactyl},
		"srv-1": {ID: "srv-1", Type: models.ServerTypeDirectAdmin},
	}

	servers, err := h.svc.ListServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "srv-1", servers[0].ID)
}

func TestTestServerConnection(t *testing.T) {
	p := &fakeProvider{kind: models.ServerTypeVirtFusion}
	h := newHarness(t, &fakeFactory{p: p})
	h.svc.servers = memoryServers{"srv-1": {ID: "srv-1", Type: models.ServerTypeVirtFusion}}

	require.NoError(t, h.svc.TestServerConnection(context.Background(), "srv-1"))
	assert.ErrorIs(t, h.svc.TestServerConnection(context.Background(), "srv-x"), repository.ErrNotFound)

	p.callErr = errBoom
	assert.ErrorIs(t, h.svc.TestServerConnection(context.Background(), "srv-1"), errBoom)
}

// Full path through the real DirectAdmin v1 client against an emulated panel.
func TestProvisionDirectAdminLegacyEndToEnd(t *testing.T) {
	var forms []url.Values
	var mu sync.Mutex
	panel := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		mu.Lock()
		forms = append(forms, form)
		mu.Unlock()

		switch r.URL.Path {
		case "/CMD_API_ACCOUNT_USER", "/CMD_API_SELECT_USERS":
			_, _ = io.WriteString(w, "error=0&text=Success&details=")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer panel.Close()

	sc := newServiceContext("svc-1", models.ServiceStatusPending, models.ServerTypeDirectAdmin)
	sc.Server.APIURL = panel.URL
	sc.Server.APIKey = nil
	sc.Server.APIVersion = models.APIVersionV1
	sc.Product.Config = models.ProductConfig{Package: "gold"}

	factory := provider.NewFactory(client.Options{Logger: zaptest.NewLogger(t)})
	h := newHarness(t, factory, sc)

	_, err := h.svc.ProvisionService(context.Background(), "svc-1")
	require.NoError(t, err)

	stored := h.services.service("svc-1")
	assert.Equal(t, models.ServiceStatusActive, stored.Status)
	require.NotNil(t, stored.Username)

	require.NoError(t, h.svc.SuspendService(context.Background(), "svc-1"))
	require.NoError(t, h.svc.TerminateService(context.Background(), "svc-1"))
	assert.Equal(t, models.ServiceStatusTerminated, h.services.status("svc-1"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, forms, 3)
	assert.Equal(t, "create", forms[0].Get("action"))
	assert.Equal(t, "gold", forms[0].Get("package"))
	assert.Equal(t, *stored.Username, forms[0].Get("username"))
	assert.Equal(t, forms[0].Get("passwd"), forms[0].Get("passwd2"))
	assert.Equal(t, "Suspend", forms[1].Get("suspend"))
	assert.Equal(t, *stored.Username, forms[1].Get("select0"))
	assert.Equal(t, "yes", forms[2].Get("delete"))
}
