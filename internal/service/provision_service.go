package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wenwu/saas-platform/provisioning-service/internal/audit"
	"github.com/wenwu/saas-platform/provisioning-service/internal/lock"
	"github.com/wenwu/saas-platform/provisioning-service/internal/logger"
	"github.com/wenwu/saas-platform/provisioning-service/internal/metrics"
	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
	"github.com/wenwu/saas-platform/provisioning-service/internal/provider"
	"github.com/wenwu/saas-platform/provisioning-service/internal/repository"
)

// Lifecycle operation names used in logs and metrics
const (
	OpProvision = "provision"
	OpSuspend   = "suspend"
	OpUnsuspend = "unsuspend"
	OpTerminate = "terminate"
)

// Default page size for attempt and audit listings
const defaultListLimit = 50

// ServiceStore is implemented by repository.ServiceRepository.
type ServiceStore interface {
	GetByID(ctx context.Context, id string) (*models.Service, error)
	GetContext(ctx context.Context, id string) (*models.ServiceContext, error)
	TransitionStatus(ctx context.Context, id string, from []models.ServiceStatus, to models.ServiceStatus) (bool, error)
	SaveCredentials(ctx context.Context, id string, creds models.Credentials) error
}

// AttemptStore is implemented by repository.ProvisionAttemptRepository.
type AttemptStore interface {
	Create(ctx context.Context, attempt *models.ProvisionAttempt) error
	MarkCompleted(ctx context.Context, id string, result json.RawMessage) error
	MarkFailed(ctx context.Context, id, errorMsg string, attempts int) error
	ListByService(ctx context.Context, serviceID string, limit int) ([]*models.ProvisionAttempt, error)
}

// ServerStore is implemented by repository.ServerRepository.
type ServerStore interface {
	GetByID(ctx context.Context, id string) (*models.Server, error)
	List(ctx context.Context) ([]*models.Server, error)
}

// AuditLog is implemented by repository.AuditRepository.
type AuditLog interface {
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*models.AuditEvent, error)
}

// ProviderFactory is implemented by provider.Factory.
type ProviderFactory interface {
	For(server *models.Server) (provider.Provider, error)
}

type Dependencies struct {
	Services  ServiceStore
	Attempts  AttemptStore
	Servers   ServerStore
	Audit     audit.Sink
	AuditLog  AuditLog
	Locker    lock.Locker
	Providers ProviderFactory
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	// Optional
	Now            func() time.Time
	PasswordLength int
}

// ProvisionResult is returned by a successful ProvisionService call.
type ProvisionResult struct {
	ServiceID  string
	AttemptID  string
	ServerType models.ServerType
	Username   string
	ExternalID string
	Raw        json.RawMessage
}

// ProvisionService drives services through pending -> active <-> suspended -> terminated
// against whichever control panel hosts them.
type ProvisionService struct {
	services  ServiceStore
	attempts  AttemptStore
	servers   ServerStore
	audit     audit.Sink
	auditLog  AuditLog
	locks     lock.Locker
	providers ProviderFactory
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
	pwLength  int
}

func NewProvisionService(deps Dependencies) *ProvisionService {
	s := &ProvisionService{
		services:  deps.Services,
		attempts:  deps.Attempts,
		servers:   deps.Servers,
		audit:     deps.Audit,
		auditLog:  deps.AuditLog,
		locks:     deps.Locker,
		providers: deps.Providers,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
		pwLength:  deps.PasswordLength,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("provisioning")
	if s.now == nil {
		s.now = time.Now
	}
	if s.audit == nil {
		s.audit = audit.MultiSink{}
	}
	if s.locks == nil {
		s.locks = lock.NewLocalLocker(0, nil)
	}
	return s
}

// ProvisionService creates the remote resource for a pending service and activates it.
// Every call that gets past the precondition checks leaves exactly one ProvisionAttempt.
func (s *ProvisionService) ProvisionService(ctx context.Context, serviceID string) (*ProvisionResult, error) {
	log := logger.WithContext(ctx, s.logger).With(zap.String("service_id", serviceID), zap.String("operation", OpProvision))

	unlock, err := s.acquire(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, log, unlock)

	sc, err := s.loadContext(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	serverType := sc.Server.Type
	log = log.With(zap.String("server_type", string(serverType)))

	switch sc.Service.Status {
	case models.ServiceStatusPending:
	case models.ServiceStatusProvisioning:
		return nil, fmt.Errorf("%w: provisioning already in progress", ErrServiceBusy)
	default:
		return nil, fmt.Errorf("%w: cannot provision a %s service", ErrInvalidTransition, sc.Service.Status)
	}

	ok, err := s.services.TransitionStatus(ctx, serviceID,
		[]models.ServiceStatus{models.ServiceStatusPending}, models.ServiceStatusProvisioning)
	if err != nil {
		return nil, &PersistenceError{Op: "mark service provisioning", Err: err}
	}
	if !ok {
		return nil, fmt.Errorf("%w: service left pending concurrently", ErrServiceBusy)
	}

	attempt := &models.ProvisionAttempt{
		ServiceID: serviceID,
		Status:    models.AttemptStatusProcessing,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		s.restorePending(ctx, log, serviceID)
		return nil, &PersistenceError{Op: "create provision attempt", Err: err}
	}
	log = log.With(zap.String("attempt_id", attempt.ID))

	result, err := s.provision(ctx, log, sc, attempt)
	if err != nil {
		s.failProvision(ctx, log, sc, attempt, err)
		s.metrics.ObserveLifecycle(OpProvision, string(serverType), metrics.OutcomeError)
		return nil, err
	}

	s.recordAudit(ctx, log, sc, models.AuditServiceProvisioned, map[string]any{
		"result": result.Raw,
	})
	s.metrics.ObserveLifecycle(OpProvision, string(serverType), metrics.OutcomeSuccess)
	log.Info("service provisioned",
		zap.String("username", result.Username),
		zap.String("external_id", result.ExternalID),
	)
	return result, nil
}

// provision runs steps that, on failure, must be recorded on the attempt.
func (s *ProvisionService) provision(ctx context.Context, log *zap.Logger, sc *models.ServiceContext, attempt *models.ProvisionAttempt) (*ProvisionResult, error) {
	svc := sc.Service

	p, err := s.providerFor(sc.Server, svc.ID)
	if err != nil {
		return nil, err
	}

	username := deref(svc.Username)
	if username == "" {
		username = GenerateUsername(s.now())
	}
	password := deref(svc.Password)
	if password == "" {
		generated, err := GeneratePassword(s.pwLength)
		if err != nil {
			return nil, err
		}
		password = generated
	}

	var owner models.User
	if sc.User != nil {
		owner = *sc.User
	}

	created, err := p.CreateResource(ctx, provider.CreateRequest{
		ServiceID:   svc.ID,
		ProductName: sc.Product.Name,
		Username:    username,
		Password:    password,
		Domain:      deref(svc.Domain),
		Plan:        sc.Product.Config,
		Owner:       owner,
	})
	if err != nil {
		if errors.Is(err, provider.ErrMissingPlanConfig) {
			return nil, &ConfigurationError{ServiceID: svc.ID, Reason: err.Error(), Err: err}
		}
		return nil, err
	}

	if err := s.services.SaveCredentials(ctx, svc.ID, created.Credentials); err != nil {
		return nil, &PersistenceError{Op: "save service credentials", Err: err}
	}

	raw := created.Raw
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	// Activation commits the provision; the attempt is completed afterwards.
	ok, err := s.services.TransitionStatus(ctx, svc.ID,
		[]models.ServiceStatus{models.ServiceStatusProvisioning}, models.ServiceStatusActive)
	if err != nil {
		return nil, &PersistenceError{Op: "activate service", Err: err}
	}
	if !ok {
		return nil, &PersistenceError{Op: "activate service", Err: fmt.Errorf("service %s is no longer provisioning", svc.ID)}
	}

	if err := s.attempts.MarkCompleted(context.WithoutCancel(ctx), attempt.ID, raw); err != nil {
		log.Error("service is active but its provision attempt was not completed", zap.Error(err))
	}

	return &ProvisionResult{
		ServiceID:  svc.ID,
		AttemptID:  attempt.ID,
		ServerType: sc.Server.Type,
		Username:   created.Credentials.Username,
		ExternalID: created.Credentials.ExternalID,
		Raw:        raw,
	}, nil
}

func (s *ProvisionService) failProvision(ctx context.Context, log *zap.Logger, sc *models.ServiceContext, attempt *models.ProvisionAttempt, cause error) {
	log.Error("provisioning failed", zap.Error(cause))

	// Bookkeeping runs even when the caller's context is already cancelled
	ctx = context.WithoutCancel(ctx)

	attempt.Attempts++
	if err := s.attempts.MarkFailed(ctx, attempt.ID, cause.Error(), attempt.Attempts); err != nil {
		log.Error("failed to mark provision attempt failed", zap.Error(err))
	}
	s.restorePending(ctx, log, sc.Service.ID)

	s.recordAudit(ctx, log, sc, models.AuditServiceProvisionFailed, map[string]any{
		"error": cause.Error(),
	})
}

func (s *ProvisionService) restorePending(ctx context.Context, log *zap.Logger, serviceID string) {
	ok, err := s.services.TransitionStatus(context.WithoutCancel(ctx), serviceID,
		[]models.ServiceStatus{models.ServiceStatusProvisioning}, models.ServiceStatusPending)
	if err != nil {
		log.Error("failed to restore pending status", zap.Error(err))
		return
	}
	if !ok {
		log.Warn("service was not provisioning when restoring pending status")
	}
}

// SuspendService suspends the remote resource. It always calls the provider, even for
// an already suspended service.
func (s *ProvisionService) SuspendService(ctx context.Context, serviceID string) error {
	return s.transition(ctx, serviceID, lifecycleOp{
		name:   OpSuspend,
		from:   []models.ServiceStatus{models.ServiceStatusActive, models.ServiceStatusSuspended},
		to:     models.ServiceStatusSuspended,
		action: models.AuditServiceSuspended,
		call: func(ctx context.Context, p provider.Provider, ref provider.ResourceRef) error {
			return p.SuspendResource(ctx, ref)
		},
	})
}

func (s *ProvisionService) UnsuspendService(ctx context.Context, serviceID string) error {
	return s.transition(ctx, serviceID, lifecycleOp{
		name:   OpUnsuspend,
		from:   []models.ServiceStatus{models.ServiceStatusActive, models.ServiceStatusSuspended},
		to:     models.ServiceStatusActive,
		action: models.AuditServiceUnsuspended,
		call: func(ctx context.Context, p provider.Provider, ref provider.ResourceRef) error {
			return p.UnsuspendResource(ctx, ref)
		},
	})
}

// TerminateService deletes the remote resource. Terminated is final.
func (s *ProvisionService) TerminateService(ctx context.Context, serviceID string) error {
	return s.transition(ctx, serviceID, lifecycleOp{
		name: OpTerminate,
		from: []models.ServiceStatus{
			models.ServiceStatusPending,
			models.ServiceStatusActive,
			models.ServiceStatusSuspended,
		},
		to:     models.ServiceStatusTerminated,
		action: models.AuditServiceTerminated,
		call: func(ctx context.Context, p provider.Provider, ref provider.ResourceRef) error {
			return p.DeleteResource(ctx, ref)
		},
	})
}

type lifecycleOp struct {
	name   string
	from   []models.ServiceStatus
	to     models.ServiceStatus
	action string
	call   func(ctx context.Context, p provider.Provider, ref provider.ResourceRef) error
}

func (s *ProvisionService) transition(ctx context.Context, serviceID string, op lifecycleOp) error {
	log := logger.WithContext(ctx, s.logger).With(zap.String("service_id", serviceID), zap.String("operation", op.name))

	unlock, err := s.acquire(ctx, serviceID)
	if err != nil {
		return err
	}
	defer s.release(ctx, log, unlock)

	sc, err := s.loadContext(ctx, serviceID)
	if err != nil {
		return err
	}
	serverType := string(sc.Server.Type)
	log = log.With(zap.String("server_type", serverType))

	if err := checkStatus(sc.Service.Status, op); err != nil {
		return err
	}

	p, err := s.providerFor(sc.Server, serviceID)
	if err != nil {
		return err
	}

	skipped := false
	if err := op.call(ctx, p, provider.RefFromService(sc.Service)); err != nil {
		if !errors.Is(err, provider.ErrResourceNotProvisioned) {
			log.Error("lifecycle operation failed", zap.Error(err))
			s.metrics.ObserveLifecycle(op.name, serverType, metrics.OutcomeError)
			return err
		}
		skipped = true
		log.Warn("no remote resource to address, skipping provider call")
	}

	ok, err := s.services.TransitionStatus(ctx, serviceID, op.from, op.to)
	if err != nil {
		return &PersistenceError{Op: "update service status", Err: err}
	}
	if !ok {
		return &PersistenceError{Op: "update service status", Err: fmt.Errorf("service %s changed status during %s", serviceID, op.name)}
	}

	details := map[string]any{}
	if skipped {
		details["skipped"] = true
	}
	s.recordAudit(ctx, log, sc, op.action, details)

	outcome := metrics.OutcomeSuccess
	if skipped {
		outcome = metrics.OutcomeSkipped
	}
	s.metrics.ObserveLifecycle(op.name, serverType, outcome)
	log.Info("service status updated", zap.String("status", string(op.to)), zap.Bool("skipped", skipped))
	return nil
}

func checkStatus(current models.ServiceStatus, op lifecycleOp) error {
	if current == models.ServiceStatusProvisioning {
		return fmt.Errorf("%w: provisioning in progress", ErrServiceBusy)
	}
	for _, allowed := range op.from {
		if current == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot %s a %s service", ErrInvalidTransition, op.name, current)
}

// GetService returns the stored service row.
func (s *ProvisionService) GetService(ctx context.Context, serviceID string) (*models.Service, error) {
	svc, err := s.services.GetByID(ctx, serviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "get service", Err: err}
	}
	return svc, nil
}

// ListAttempts returns the provisioning history of a service, newest first.
func (s *ProvisionService) ListAttempts(ctx context.Context, serviceID string, limit int) ([]*models.ProvisionAttempt, error) {
	if _, err := s.GetService(ctx, serviceID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	attempts, err := s.attempts.ListByService(ctx, serviceID, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "list provision attempts", Err: err}
	}
	return attempts, nil
}

// ListAuditEvents returns the audit trail of a service, newest first.
func (s *ProvisionService) ListAuditEvents(ctx context.Context, serviceID string, limit int) ([]*models.AuditEvent, error) {
	if s.auditLog == nil {
		return nil, errors.New("audit log reader not configured")
	}
	if _, err := s.GetService(ctx, serviceID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	events, err := s.auditLog.ListByEntity(ctx, models.EntityTypeService, serviceID, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "list audit events", Err: err}
	}
	return events, nil
}

func (s *ProvisionService) ListServers(ctx context.Context) ([]*models.Server, error) {
	servers, err := s.servers.List(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list servers", Err: err}
	}
	return servers, nil
}

// TestServerConnection checks that a server's credentials are accepted by its panel.
func (s *ProvisionService) TestServerConnection(ctx context.Context, serverID string) error {
	server, err := s.servers.GetByID(ctx, serverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return &PersistenceError{Op: "get server", Err: err}
	}

	p, err := s.providerFor(server, "")
	if err != nil {
		return err
	}
	if err := p.TestConnection(ctx); err != nil {
		logger.WithContext(ctx, s.logger).Warn("server connection test failed",
			zap.String("server_id", serverID),
			zap.String("server_type", string(server.Type)),
			zap.String("api_key", logger.MaskString(deref(server.APIKey))),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *ProvisionService) acquire(ctx context.Context, serviceID string) (lock.Unlock, error) {
	unlock, err := s.locks.Acquire(ctx, serviceID)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, fmt.Errorf("%w: another operation holds service %s", ErrServiceBusy, serviceID)
		}
		return nil, fmt.Errorf("acquire service lock: %w", err)
	}
	return unlock, nil
}

func (s *ProvisionService) release(ctx context.Context, log *zap.Logger, unlock lock.Unlock) {
	if err := unlock(context.WithoutCancel(ctx)); err != nil {
		log.Warn("failed to release service lock", zap.Error(err))
	}
}

func (s *ProvisionService) loadContext(ctx context.Context, serviceID string) (*models.ServiceContext, error) {
	sc, err := s.services.GetContext(ctx, serviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ConfigurationError{ServiceID: serviceID, Reason: "service not found", Err: err}
		}
		return nil, &PersistenceError{Op: "load service", Err: err}
	}
	if sc.Server == nil {
		return nil, &ConfigurationError{ServiceID: serviceID, Reason: "product has no assigned server"}
	}
	if sc.Service.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: service %s is terminated", ErrInvalidTransition, serviceID)
	}
	return sc, nil
}

func (s *ProvisionService) providerFor(server *models.Server, serviceID string) (provider.Provider, error) {
	p, err := s.providers.For(server)
	if err != nil {
		return nil, &ConfigurationError{ServiceID: serviceID, Reason: err.Error(), Err: err}
	}
	return p, nil
}

// recordAudit never fails the operation; sink errors are logged.
func (s *ProvisionService) recordAudit(ctx context.Context, log *zap.Logger, sc *models.ServiceContext, action string, details map[string]any) {
	details["productName"] = sc.Product.Name
	details["serverType"] = string(sc.Server.Type)

	payload, err := json.Marshal(details)
	if err != nil {
		log.Error("failed to encode audit details", zap.String("action", action), zap.Error(err))
		payload = json.RawMessage("{}")
	}

	meta := RequestMetaFrom(ctx)
	event := &models.AuditEvent{
		ID:         uuid.New().String(),
		UserID:     meta.UserID,
		UserEmail:  meta.UserEmail,
		Action:     action,
		EntityType: models.EntityTypeService,
		EntityID:   sc.Service.ID,
		Details:    payload,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		CreatedAt:  s.now(),
	}
	if event.UserID == "" {
		event.UserID = sc.Service.UserID
		if sc.User != nil {
			event.UserEmail = sc.User.Email
		}
	}

	if err := s.audit.Record(context.WithoutCancel(ctx), event); err != nil {
		log.Warn("failed to record audit event", zap.String("action", action), zap.Error(err))
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
