package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/pwannenmacher/ConfReview/docs" // This is for Swagger
	"github.com/pwannenmacher/ConfReview/internal/auth"
	"github.com/pwannenmacher/ConfReview/internal/config"
	"github.com/pwannenmacher/ConfReview/internal/handlers"
	"github.com/pwannenmacher/ConfReview/internal/logger"
	"github.com/pwannenmacher/ConfReview/internal/metrics"
	"github.com/pwannenmacher/ConfReview/internal/middleware"
	"github.com/pwannenmacher/ConfReview/internal/service"
	"github.com/pwannenmacher/ConfReview/internal/vault"
)

// @title ConfReview API
// @version 1.0
// @description Conference paper review service: committees, submissions, reviews and decisions

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logger
	log := logger.Setup(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("Starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"env", cfg.App.Env,
		"log_level", cfg.Log.Level,
		"store", cfg.Store.Driver,
	)

	// Fetch the token signing secret from vault when enabled
	if cfg.Vault.Enabled {
		ctx, cancel := getContext(cfg.Vault.Timeout)
		err := vault.ResolveJWTSecret(ctx, cfg)
		cancel()
		if err != nil {
			slog.Error("Failed to load JWT secret from vault", "error", err)
			os.Exit(1)
		}
		slog.Info("JWT secret loaded from vault", "path", cfg.Vault.Mount+"/"+cfg.Vault.Path)
	}

	// Open the document store
	store, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Failed to close store", "error", err)
		}
	}()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// Initialize services
	opts := service.Options{
		Metrics:     collector,
		Logger:      log,
		SaveRetries: cfg.Workflow.SaveRetries,
	}
	tokens := auth.NewService(&cfg.JWT)
	authSvc := service.NewAuthService(store.Users, tokens, opts)
	conferenceSvc := service.NewConferenceService(store.Store, opts)
	paperSvc := service.NewPaperService(store.Store, opts)
	reviewSvc := service.NewReviewService(store.Store, opts)

	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit)
	defer rateLimiter.Stop()

	handler := handlers.NewRouter(handlers.RouterConfig{
		Auth:        authSvc,
		Conferences: conferenceSvc,
		Papers:      paperSvc,
		Reviews:     reviewSvc,
		CORS:        &cfg.CORS,
		RateLimiter: rateLimiter,
		Metrics:     collector,
		Gatherer:    reg,
		Health:      store,
		Version:     cfg.App.Version,
	})

	// Create server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.TimeoutRead,
		WriteTimeout: cfg.Server.TimeoutWrite,
		IdleTimeout:  cfg.Server.TimeoutIdle,
	}

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		return
	}

	slog.Info("Server shutting down...")

	// Graceful shutdown with timeout
	ctx, cancel := getContext(cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return
	}

	slog.Info("Server stopped")
}
