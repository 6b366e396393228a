package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/warp/staycount/alerts"
	"github.com/warp/staycount/api"
	"github.com/warp/staycount/config"
	"github.com/warp/staycount/generic"
	"github.com/warp/staycount/jurisdiction"
	"github.com/warp/staycount/store/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the staycount server",
	Long:  `Start the HTTP API, the periodic snapshot scheduler and the /metrics endpoint.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting staycount")

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close database")
		}
	}()
	logger.Info().Str("path", cfg.Database.Path).Msg("Database initialized")

	// Rule registry: built-ins + config rules, custom rules from the database
	registry, err := jurisdiction.NewRegistry(store, cfg.Engine.RuleCacheSize, cfg.ExtraRules()...)
	if err != nil {
		return fmt.Errorf("failed to initialize rule registry: %w", err)
	}

	ctx := context.Background()
	primary := generic.JurisdictionCode(cfg.Engine.PrimaryZone)
	if primary != "" {
		if _, err := registry.GetRule(ctx, primary); err != nil {
			return fmt.Errorf("primary zone: %w", err)
		}
	}

	// Handler
	handler := api.NewHandler(store, registry, logger)
	handler.Calculator.PrimaryZone = primary
	handler.Simulator.HorizonDays = cfg.Engine.SearchHorizonDays
	handler.MaxTripDays = cfg.Server.MaxTripDays

	// Summary cache
	if cfg.Redis.Enabled {
		cache, err := api.NewRedisSummaryCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer cache.Close()
		handler.Cache = cache
		logger.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.TTL).Msg("Summary cache enabled")
	}

	// Snapshot scheduler with log-based alerts
	dispatcher := alerts.NewDispatcher(logger, alerts.LogNotifier{Logger: logger})
	scheduler := api.NewSnapshotScheduler(store, registry, handler.Calculator, dispatcher, logger)
	scheduler.Enabled = cfg.Snapshot.Enabled
	scheduler.Interval = cfg.Snapshot.Interval
	scheduler.Concurrency = cfg.Snapshot.Concurrency
	handler.Snapshots = scheduler

	scheduler.Start()
	defer scheduler.Stop()

	// Router and server
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		StaticDir:      cfg.Server.StaticDir,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down server")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info().Msg("Server stopped")
	return nil
}
