package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wenwu/saas-platform/provisioning-service/internal/config"
)

// Lifecycle calls reach out to provider panels; throttle per caller.
var lifecycleRateLimiter = NewRateLimiter(60, time.Minute)

// Customer reads: 30 per user per minute.
var userRateLimiter = NewRateLimiter(30, time.Minute)

type Server struct {
	router   *gin.Engine
	handler  *Handler
	cfg      *config.Config
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	srv      *http.Server
}

// NewServer wires routes. gatherer backs /metrics; nil uses the default registry.
func NewServer(cfg *config.Config, orchestrator Orchestrator, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(AccessLogMiddleware(log.Named("access")))

	s := &Server{
		router:   router,
		handler:  NewHandler(orchestrator, log),
		cfg:      cfg,
		logger:   log,
		gatherer: gatherer,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "provisioning-service",
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	// Internal API - called by billing and the admin portal
	internal := s.router.Group("/api/internal")
	internal.Use(InternalAuthMiddleware(s.cfg.InternalSecret))
	{
		services := internal.Group("/services/:id")
		{
			services.GET("", s.handler.GetService)
			services.GET("/attempts", s.handler.ListAttempts)
			services.GET("/audit", s.handler.ListAuditEvents)

			lifecycle := services.Group("")
			lifecycle.Use(RateLimitMiddleware(lifecycleRateLimiter))
			lifecycle.POST("/provision", s.handler.ProvisionService)
			lifecycle.POST("/suspend", s.handler.SuspendService)
			lifecycle.POST("/unsuspend", s.handler.UnsuspendService)
			lifecycle.POST("/terminate", s.handler.TerminateService)
		}

		internal.GET("/servers", s.handler.ListServers)
		internal.POST("/servers/:id/test-connection", s.handler.TestServerConnection)
	}

	// User API - requires JWT authentication
	user := s.router.Group("/api/v1")
	user.Use(JWTAuthMiddleware(s.cfg.JWT.SecretKey))
	user.Use(RateLimitMiddleware(userRateLimiter))
	{
		user.GET("/my/services/:id", s.handler.GetMyService)
	}
}

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until Shutdown is called. http.ErrServerClosed is not reported.
func (s *Server) Run(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
