package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-ops-platform/internal/api/router"
	appbootstrap "github.com/wolfman30/clinic-ops-platform/internal/app/bootstrap"
	"github.com/wolfman30/clinic-ops-platform/internal/appointments"
	"github.com/wolfman30/clinic-ops-platform/internal/audit"
	"github.com/wolfman30/clinic-ops-platform/internal/calendarfeed"
	"github.com/wolfman30/clinic-ops-platform/internal/catalog"
	"github.com/wolfman30/clinic-ops-platform/internal/clinic"
	appconfig "github.com/wolfman30/clinic-ops-platform/internal/config"
	httpmiddleware "github.com/wolfman30/clinic-ops-platform/internal/http/middleware"
	"github.com/wolfman30/clinic-ops-platform/internal/observability/metrics"
	"github.com/wolfman30/clinic-ops-platform/internal/patients"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-ops-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if dbPool != nil {
		defer dbPool.Close()
	}
	redisClient := appbootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	metricsHandler, bookingMetrics, gatherer := setupMetrics()
	hub := calendarfeed.NewHub(logger)
	routerCfg, closeDeps := buildRouterConfig(cfg, dbPool, redisClient, hub, bookingMetrics, gatherer, logger)
	defer closeDeps()
	routerCfg.MetricsHandler = metricsHandler

	if routerCfg.RateLimiter != nil {
		go routerCfg.RateLimiter.RunEviction(ctx)
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
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// connectPostgresPool returns nil when no URL is configured or the database is
// unreachable; the API then runs on in-memory stores.
func connectPostgresPool(ctx context.Context, url string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(url) == "" {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
		return nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("postgres not reachable", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics, prometheus.Gatherer) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), bookingMetrics, reg
}

// buildRouterConfig wires stores, services and handlers. The returned func
// releases anything opened here.
func buildRouterConfig(
	cfg *appconfig.Config,
	dbPool *pgxpool.Pool,
	redisClient *redis.Client,
	hub *calendarfeed.Hub,
	bookingMetrics *metrics.BookingMetrics,
	gatherer prometheus.Gatherer,
	logger *logging.Logger,
) (*router.Config, func()) {
	closeFn := func() {}

	var (
		apptStore    appointments.Store
		catalogRepo  catalog.Repository
		patientsRepo patients.Repository
		auditSvc     *audit.Service
	)
	if dbPool != nil {
		apptStore = appointments.NewPostgresStore(dbPool)
		catalogRepo = catalog.NewPostgresRepository(dbPool)
		patientsRepo = patients.NewPostgresRepository(dbPool)
		sqlDB := stdlib.OpenDBFromPool(dbPool)
		auditSvc = audit.NewService(sqlDB)
		closeFn = func() { _ = sqlDB.Close() }
	} else {
		apptStore = appointments.NewMemoryStore()
		catalogRepo = catalog.NewInMemoryRepository()
		patientsRepo = patients.NewInMemoryRepository()
	}

	settings := appbootstrap.BuildClinicStore(redisClient, cfg)
	checker := appointments.NewChecker(apptStore, catalogRepo, settings)
	svc := appointments.NewService(apptStore, checker, logger).
		WithPatients(patientsRepo).
		WithFeed(hub).
		WithMetrics(bookingMetrics)
	if auditSvc != nil {
		svc = svc.WithAudit(auditSvc)
	}

	routerCfg := &router.Config{
		Logger:              logger,
		AppointmentsHandler: appointments.NewHandler(svc, logger),
		PatientsHandler:     patients.NewHandler(patientsRepo, logger),
		CatalogHandler:      catalog.NewHandler(catalogRepo, logger),
		ClinicHandler:       clinic.NewHandler(settings, logger),
		CalendarFeed:        hub,
		AdminAuthSecret:     cfg.AdminJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		WriteLimiter:        appbootstrap.BuildWriteLimiter(redisClient, cfg, logger),
		Ready:               readiness(dbPool, redisClient),
	}
	if cfg.RateLimitRPS > 0 {
		routerCfg.RateLimiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if dbPool != nil {
		routerCfg.ClinicStatsHandler = clinic.NewStatsHandler(clinic.NewStatsRepository(dbPool), logger)
		routerCfg.ClinicDashboard = clinic.NewDashboardHandler(clinic.NewDashboardRepository(dbPool), gatherer, logger)
		routerCfg.AuditHandler = audit.NewHandler(auditSvc, logger)
	}
	return routerCfg, closeFn
}

func readiness(dbPool *pgxpool.Pool, redisClient *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if dbPool != nil {
			if err := dbPool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}
