package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/physiodesk/scheduler/internal/api"
	"github.com/physiodesk/scheduler/internal/api/router"
	"github.com/physiodesk/scheduler/internal/clinicapi"
	appconfig "github.com/physiodesk/scheduler/internal/config"
	"github.com/physiodesk/scheduler/internal/dayschedule"
	"github.com/physiodesk/scheduler/internal/observability/metrics"
	"github.com/physiodesk/scheduler/internal/overbook"
	"github.com/physiodesk/scheduler/internal/plans"
	"github.com/physiodesk/scheduler/pkg/logging"
)

func main() {
	// Load .env if present (local development only)
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting physiodesk scheduler API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	loc, err := time.LoadLocation(cfg.ClinicTZ)
	if err != nil {
		logger.Error("invalid clinic timezone", "tz", cfg.ClinicTZ, "error", err)
		os.Exit(1)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	schedMetrics := metrics.NewSchedulerMetrics(registry)

	// Clinic backend client
	backend := clinicapi.New(cfg.BackendBaseURL, cfg.BackendAPIKey, logger,
		clinicapi.WithTimezone(loc),
		clinicapi.WithPageSize(cfg.ListPageSize),
		clinicapi.WithReadRetries(cfg.BackendReadRetries, cfg.BackendRetryBaseWait),
		clinicapi.WithHTTPClient(&http.Client{Timeout: cfg.BackendTimeout}),
		clinicapi.WithMetrics(schedMetrics),
	)

	// Patient -> plan resolution cache
	var planStore plans.Store
	switch cfg.PlanCacheBackend {
	case "redis":
		redisOpts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient := redis.NewClient(redisOpts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		cancel()
		planStore = plans.NewRedisStore(redisClient, otel.Tracer("physiodesk.plans.cache"))
		logger.Info("plan cache backend: redis", "addr", cfg.RedisAddr)
	default:
		planStore = plans.NewMemoryStore(time.Now)
		logger.Info("plan cache backend: memory")
	}

	resolver := plans.NewCachingResolver(backend, planStore, logger,
		plans.WithTTL(cfg.PlanCacheTTL),
		plans.WithMetrics(schedMetrics),
	)

	// Domain services
	days := dayschedule.NewService(backend, resolver, logger,
		dayschedule.WithTimezone(loc),
		dayschedule.WithMetrics(schedMetrics),
	)
	queue := overbook.NewReconciler(backend, resolver, logger,
		overbook.WithTimezone(loc),
		overbook.WithMetrics(schedMetrics),
	)

	// Initialize handlers
	schedulingHandler := api.NewHandler(days, queue, resolver, logger)

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		SchedulingHandler:  schedulingHandler,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSOrigins,
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
