// Package main is the entry point for the Inkwell billing API server.
//
// It loads configuration, connects the PostgreSQL ledger store, wires the
// billing services and HTTP handlers onto the core chassis, and serves until
// a shutdown signal arrives. Graceful shutdown is handled via OS signal
// interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inkwell/internal/api/handlers"
	"inkwell/internal/billing"
	"inkwell/internal/config"
	"inkwell/internal/core"
	"inkwell/internal/db"
	"inkwell/internal/external"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("inkwell API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	// Storage and services.
	ledgerRepo := db.NewLedgerRepo(pool)
	analyticsRepo := db.NewAnalyticsRepo(pool)
	catalog := billing.NewStaticCatalog()
	ledger := billing.NewLedger(ledgerRepo, catalog)
	recorder := billing.NewRecorder(ledgerRepo, catalog, logger)
	reporter := billing.NewAggregationReporter(analyticsRepo, catalog)
	generator := external.NewGeneratorClient(cfg.Generator)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, db.NewHealthProbe(pool))

	// Handlers.
	entitlementHandler := handlers.NewEntitlementHandler(ledger, logger)
	accountsHandler := handlers.NewAccountsHandler(ledger, srv.Validator, logger)
	usageHandler := handlers.NewUsageHandler(recorder, srv.Validator, logger)
	documentsHandler := handlers.NewDocumentsHandler(generator, ledger, recorder, srv.Validator, logger)
	billingEventsHandler := handlers.NewBillingEventsHandler(ledger, srv.Validator, logger)
	adminHandler := handlers.NewAdminHandler(reporter, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		entitlementHandler.RegisterRoutes,
		accountsHandler.RegisterRoutes,
		usageHandler.RegisterRoutes,
		documentsHandler.RegisterRoutes,
		billingEventsHandler.RegisterRoutes,
	)
	srv.AdminRouteRegistrars = append(srv.AdminRouteRegistrars, adminHandler.RegisterRoutes)

	srv.MountRoutes()

	return serveHTTP(ctx, srv, cfg, logger)
}

// serveHTTP runs the HTTP server until the context is canceled or the
// listener fails, then drains in-flight requests within the configured
// shutdown timeout.
func serveHTTP(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON structured logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
