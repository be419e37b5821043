package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whitelabel_crm_backend/internal/contacts"
	"whitelabel_crm_backend/internal/events"
	apphttp "whitelabel_crm_backend/internal/http"
	"whitelabel_crm_backend/internal/http/router"
	"whitelabel_crm_backend/internal/leadinbox"
	"whitelabel_crm_backend/internal/metaleads"
	"whitelabel_crm_backend/internal/metrics"
	"whitelabel_crm_backend/internal/routing"
	"whitelabel_crm_backend/internal/scheduler"
	"whitelabel_crm_backend/platform/config"
	"whitelabel_crm_backend/platform/db"
	"whitelabel_crm_backend/platform/logger"
	"whitelabel_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	pool, err := db.Connect(ctx, cfg, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if cfg.MigrationsEnabled {
		if err := db.Migrate(ctx, pool, log); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	appMetrics := metrics.New(metrics.NewRegistry())
	appMetrics.Subscribe(eventBus)

	leadPassClient, closeClient := initLeadPassClient(cfg, log)
	if closeClient != nil {
		defer closeClient()
	}
	if leadPassClient != nil {
		scheduler.SubscribeLeadInboxNudge(eventBus, leadPassClient, log)
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	routingModule, err := routing.NewModule(pool, val, log)
	if err != nil {
		log.Error("failed to initialize routing module", "error", err)
		panic("failed to initialize routing module: " + err.Error())
	}
	leadInboxModule := leadinbox.NewModule(pool, routingModule.Service(), contacts.NewStore(pool), eventBus, appMetrics, cfg, log)
	metaLeadsModule := metaleads.NewModule(pool, leadInboxModule.Service(), cfg, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:     cfg,
		Logger:     log,
		Health:     pool,
		Metrics:    appMetrics.Handler(),
		Middleware: []gin.HandlerFunc{appMetrics.Middleware()},
		Modules: []apphttp.Module{
			routingModule,
			leadInboxModule,
			metaLeadsModule,
		},
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initLeadPassClient(cfg config.SchedulerConfig, log *logger.Logger) (scheduler.LeadPassEnqueuer, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; received leads wait for the next scheduled pass")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize lead pass client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}
