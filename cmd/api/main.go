package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wenwu/saas-platform/provisioning-service/internal/audit"
	"github.com/wenwu/saas-platform/provisioning-service/internal/client"
	"github.com/wenwu/saas-platform/provisioning-service/internal/config"
	"github.com/wenwu/saas-platform/provisioning-service/internal/db"
	"github.com/wenwu/saas-platform/provisioning-service/internal/http"
	"github.com/wenwu/saas-platform/provisioning-service/internal/lock"
	"github.com/wenwu/saas-platform/provisioning-service/internal/logger"
	"github.com/wenwu/saas-platform/provisioning-service/internal/metrics"
	"github.com/wenwu/saas-platform/provisioning-service/internal/provider"
	"github.com/wenwu/saas-platform/provisioning-service/internal/repository"
	"github.com/wenwu/saas-platform/provisioning-service/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Error("provisioning service stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zl.Info("starting provisioning service", zap.String("env", cfg.Env))

	// Initialize database
	pool, err := db.NewPool(ctx, cfg.Database, zl)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	// Initialize repositories
	serviceRepo := repository.NewServiceRepository(pool)
	attemptRepo := repository.NewProvisionAttemptRepository(pool)
	serverRepo := repository.NewServerRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// Lifecycle lock
	var locker lock.Locker
	if cfg.Redis.Enabled {
		rdb, err := db.NewRedisClient(ctx, cfg.Redis, zl)
		if err != nil {
			return err
		}
		defer closeRedis(rdb, zl)
		locker = lock.NewRedisLocker(rdb, lock.RedisOptions{
			Prefix: cfg.Redis.LockPrefix,
			TTL:    cfg.Redis.LockTTL,
			Wait:   cfg.Provisioning.LockWait,
			Logger: zl,
		})
	} else {
		zl.Warn("redis disabled, service locks are process-local")
		locker = lock.NewLocalLocker(cfg.Provisioning.LockWait, nil)
	}

	// Audit sinks
	sinks := audit.MultiSink{audit.NewStoreSink(auditRepo)}
	if cfg.Kafka.Enabled {
		producer, err := audit.NewKafkaProducer(cfg.Kafka.Brokers)
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		kafkaSink := audit.NewKafkaSink(producer, cfg.Kafka.AuditTopic, zl)
		defer func() {
			if err := kafkaSink.Close(); err != nil {
				zl.Warn("failed to close kafka producer", zap.Error(err))
			}
		}()
		sinks = append(sinks, kafkaSink)
	}

	// Provider clients
	factory := provider.NewFactory(client.Options{
		Timeout:   cfg.Provider.RequestTimeout,
		RateLimit: cfg.Provider.RateLimitPerSecond,
		Burst:     cfg.Provider.RateBurst,
		Logger:    zl,
		Metrics:   m,
	})

	provisionService := service.NewProvisionService(service.Dependencies{
		Services:       serviceRepo,
		Attempts:       attemptRepo,
		Servers:        serverRepo,
		Audit:          sinks,
		AuditLog:       auditRepo,
		Locker:         locker,
		Providers:      factory,
		Metrics:        m,
		Logger:         zl,
		PasswordLength: cfg.Provisioning.PasswordLength,
	})

	server := http.NewServer(cfg, provisionService, prometheus.DefaultGatherer, zl)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		zl.Info("server starting", zap.String("addr", addr))
		errCh <- server.Run(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	zl.Info("server exited")
	return nil
}

func closeRedis(rdb *redis.Client, zl *zap.Logger) {
	if err := rdb.Close(); err != nil {
		zl.Warn("failed to close redis client", zap.Error(err))
	}
}
