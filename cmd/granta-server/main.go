// Package main is the entrypoint for the Granta server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/granta-app/granta/internal/api"
	"github.com/granta-app/granta/internal/auth"
	"github.com/granta-app/granta/internal/config"
	"github.com/granta-app/granta/internal/db"
	"github.com/granta-app/granta/internal/delivery"
	"github.com/granta-app/granta/internal/entitlement"
	"github.com/granta-app/granta/internal/maintenance"
	"github.com/granta-app/granta/internal/metrics"
	"github.com/granta-app/granta/internal/payments"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting Granta server")

	// Load configuration
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	// Connect to database
	database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to connect to database")
		return 1
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to run database migrations")
		return 1
	}

	// Initialize session store
	sessionCfg := auth.DefaultSessionConfig([]byte(cfg.SessionSecret), cfg.IsProduction())
	if cfg.SessionMaxAge > 0 {
		sessionCfg.MaxAge = cfg.SessionMaxAge
	}
	sessions, err := auth.NewSessionStore(sessionCfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize session store")
		return 1
	}

	// Initialize object storage client
	files, err := delivery.NewClient(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize storage client")
		return 1
	}
	if err := files.TestConnection(ctx); err != nil {
		logger.Error().Err(err).Str("bucket", cfg.Storage.Bucket).Msg("Storage bucket unreachable")
		return 1
	}

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to register metrics")
		return 1
	}
	if _, err := metrics.NewPoolCollector(registry, database); err != nil {
		logger.Error().Err(err).Msg("Failed to register database pool metrics")
		return 1
	}

	// Initialize services
	entitlements := entitlement.NewService(database, logger)
	processor := payments.NewProcessor(database, entitlements, logger)

	// Build API router
	api.Version = Version
	api.Commit = Commit
	api.BuildDate = BuildDate
	router, err := api.NewRouter(cfg, database, sessions, entitlements, processor, files, registry, m, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize router")
		return 1
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Proxied downloads can stream large files.
		WriteTimeout: 10 * time.Minute,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Start expiry sweeper
	sweeper := maintenance.NewExpirySweeper(database, logger)
	if err := sweeper.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start expiry sweeper")
	}
	defer sweeper.Stop()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down server")
	case err := <-errCh:
		logger.Error().Err(err).Msg("HTTP server error")
		return 1
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		return 1
	}

	logger.Info().Msg("Server stopped gracefully")
	return 0
}
