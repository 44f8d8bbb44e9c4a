package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wenwu/saas-platform/provisioning-service/internal/client"
	"github.com/wenwu/saas-platform/provisioning-service/internal/logger"
	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
	"github.com/wenwu/saas-platform/provisioning-service/internal/repository"
	"github.com/wenwu/saas-platform/provisioning-service/internal/service"
)

// Headers internal callers use to name the operator acting on a service
const (
	headerActorID    = "X-Actor-ID"
	headerActorEmail = "X-Actor-Email"
)

// Orchestrator is implemented by service.ProvisionService.
type Orchestrator interface {
	ProvisionService(ctx context.Context, serviceID string) (*service.ProvisionResult, error)
	SuspendService(ctx context.Context, serviceID string) error
	UnsuspendService(ctx context.Context, serviceID string) error
	TerminateService(ctx context.Context, serviceID string) error
	GetService(ctx context.Context, serviceID string) (*models.Service, error)
	ListAttempts(ctx context.Context, serviceID string, limit int) ([]*models.ProvisionAttempt, error)
	ListAuditEvents(ctx context.Context, serviceID string, limit int) ([]*models.AuditEvent, error)
	ListServers(ctx context.Context) ([]*models.Server, error)
	TestServerConnection(ctx context.Context, serverID string) error
}

type Handler struct {
	orchestrator Orchestrator
	logger       *zap.Logger
}

func NewHandler(orchestrator Orchestrator, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{orchestrator: orchestrator, logger: log.Named("http")}
}

// ==================== Internal API Handlers ====================

// ProvisionService creates the remote resource for a pending service
func (h *Handler) ProvisionService(c *gin.Context) {
	serviceID := c.Param("id")
	result, err := h.orchestrator.ProvisionService(internalContext(c), serviceID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ProvisionResponse{
		ServiceID:  result.ServiceID,
		AttemptID:  result.AttemptID,
		ServerType: result.ServerType,
		Status:     models.ServiceStatusActive,
		Username:   result.Username,
		ExternalID: result.ExternalID,
		Result:     result.Raw,
		Message:    "service provisioned",
	})
}

func (h *Handler) SuspendService(c *gin.Context) {
	h.lifecycle(c, h.orchestrator.SuspendService, models.ServiceStatusSuspended, "service suspended")
}

func (h *Handler) UnsuspendService(c *gin.Context) {
	h.lifecycle(c, h.orchestrator.UnsuspendService, models.ServiceStatusActive, "service unsuspended")
}

func (h *Handler) TerminateService(c *gin.Context) {
	h.lifecycle(c, h.orchestrator.TerminateService, models.ServiceStatusTerminated, "service terminated")
}

func (h *Handler) lifecycle(c *gin.Context, op func(context.Context, string) error, status models.ServiceStatus, message string) {
	serviceID := c.Param("id")
	if err := op(internalContext(c), serviceID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.LifecycleResponse{
		ServiceID: serviceID,
		Status:    status,
		Message:   message,
	})
}

// GetService returns a service with its credentials redacted
func (h *Handler) GetService(c *gin.Context) {
	svc, err := h.orchestrator.GetService(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewServiceResponse(svc))
}

// ListAttempts returns the provisioning history of a service
func (h *Handler) ListAttempts(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	serviceID := c.Param("id")
	attempts, err := h.orchestrator.ListAttempts(c.Request.Context(), serviceID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := models.AttemptListResponse{
		ServiceID: serviceID,
		Attempts:  make([]models.AttemptResponse, 0, len(attempts)),
	}
	for _, a := range attempts {
		resp.Attempts = append(resp.Attempts, models.NewAttemptResponse(a))
	}
	c.JSON(http.StatusOK, resp)
}

// ListAuditEvents returns the audit trail of a service
func (h *Handler) ListAuditEvents(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	events, err := h.orchestrator.ListAuditEvents(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]models.AuditEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, models.NewAuditEventResponse(e))
	}
	c.JSON(http.StatusOK, gin.H{"events": resp})
}

func (h *Handler) ListServers(c *gin.Context) {
	servers, err := h.orchestrator.ListServers(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]models.ServerResponse, 0, len(servers))
	for _, s := range servers {
		resp = append(resp, models.NewServerResponse(s))
	}
	c.JSON(http.StatusOK, gin.H{"servers": resp})
}

// TestServerConnection probes a server's panel API. A rejected probe is reported in the body, not as an HTTP error.
func (h *Handler) TestServerConnection(c *gin.Context) {
	serverID := c.Param("id")
	err := h.orchestrator.TestServerConnection(c.Request.Context(), serverID)

	var perr *client.ProviderError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, models.ConnectionTestResponse{ServerID: serverID, Connected: true, Message: "connection ok"})
	case errors.As(err, &perr):
		c.JSON(http.StatusOK, models.ConnectionTestResponse{ServerID: serverID, Connected: false, Message: perr.Error()})
	default:
		h.writeError(c, err)
	}
}

// ==================== User API Handlers ====================

// GetMyService returns one of the caller's own services
func (h *Handler) GetMyService(c *gin.Context) {
	userID := c.GetString(ctxUserID)
	svc, err := h.orchestrator.GetService(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if svc.UserID != userID {
		// Indistinguishable from a missing service
		c.JSON(http.StatusNotFound, gin.H{"error": "service not found"})
		return
	}
	c.JSON(http.StatusOK, models.NewMyServiceResponse(svc))
}

// ==================== Helpers ====================

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

// internalContext attaches the acting operator and client details for audit events.
func internalContext(c *gin.Context) context.Context {
	return service.WithRequestMeta(c.Request.Context(), service.RequestMeta{
		UserID:    c.GetHeader(headerActorID),
		UserEmail: c.GetHeader(headerActorEmail),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.WithContext(c.Request.Context(), h.logger).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// statusFor maps orchestrator error kinds onto HTTP statuses.
// A row vanishing mid-operation is a PersistenceError and stays a 500; otherwise
// ErrNotFound wins over ConfigurationError, which also wraps a missing service.
func statusFor(err error) int {
	var (
		persistErr *service.PersistenceError
		cfgErr     *service.ConfigurationError
		provErr    *client.ProviderError
	)
	switch {
	case errors.As(err, &persistErr):
		return http.StatusInternalServerError
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &cfgErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrServiceBusy):
		return http.StatusConflict
	case errors.As(err, &provErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
