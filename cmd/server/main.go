package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"companion-chat/backend/internal/models"
	"companion-chat/backend/pkg/config"
	"companion-chat/backend/pkg/di"
	"companion-chat/backend/pkg/health"
	"companion-chat/backend/pkg/logger"
	"companion-chat/backend/pkg/router"
	"companion-chat/backend/shared/observability"
)

func main() {
	// Load configuration (.env, environment, optional CONFIG_FILE)
	cfg := config.New()

	// Initialize structured logger
	logConfig := logger.ConfigFrom(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application", "version", cfg.Server.Version, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.TracingEnabled {
		shutdownTracing, err := observability.SetupTracing("companion-chat", os.Stdout)
		if err != nil {
			log.LogError(err, "Failed to set up tracing")
		} else {
			defer func() { _ = shutdownTracing(context.Background()) }()
		}
	}

	// Initialize database
	db, err := config.NewDB()
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}

	// Auto-migrate the schema
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.LogError(err, "Failed to migrate database")
		os.Exit(1)
	}

	// Initialize dependency injection container
	container, err := di.New(db, cfg, log)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}

	if err := container.CatalogService.Seed(ctx); err != nil {
		log.LogError(err, "Failed to seed model catalog")
	}

	container.Health.Start(ctx)

	// Initialize and setup router
	r := router.New(container)
	r.SetupRoutes()
	go r.Hub.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	grpcHealth := health.NewGRPCServer(container.Health, log)
	go func() {
		if err := grpcHealth.Serve(net.JoinHostPort("", cfg.Server.GRPCPort)); err != nil {
			log.LogError(err, "gRPC health server stopped")
		}
	}()

	// Block until we receive a signal
	<-ctx.Done()
	log.Info("Shutting down server...")

	// Create a deadline to wait for
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}
	grpcHealth.Stop()
	r.RateLimiter.Stop()

	if err := container.Close(shutdownCtx); err != nil {
		log.LogError(err, "Failed to release resources")
	}

	log.Info("Server exited gracefully")
}
