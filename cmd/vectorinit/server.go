package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"rag-system/vectorinit/internal/orchestrator"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the vectorinit HTTP API server",
	Long: `Start the HTTP server on the configured port (default :8081).

The server exposes health, readiness and bootstrap endpoints. With
server.bootstrap_on_start it runs a bootstrap in the background as soon as
it is listening. It shuts down cleanly on SIGTERM or SIGINT.`,
	RunE: runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if app.otelProvider != nil {
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if shutErr := app.otelProvider.Shutdown(shutCtx); shutErr != nil {
				slog.Warn("OTEL shutdown error", "err", shutErr)
			}
		}()
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      app.router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("vectorinit server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if cfg.Server.BootstrapOnStart {
		go bootstrapOnStart(ctx)
	}

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped cleanly")
	return nil
}

// bootstrapOnStart runs one bootstrap bounded by bootstrap.timeout. A
// shutdown signal cancels it.
func bootstrapOnStart(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Bootstrap.Timeout)
	defer cancel()

	result, err := app.orchestrator.RunBootstrap(ctx)
	if err != nil {
		if !errors.Is(err, orchestrator.ErrBootstrapInProgress) {
			slog.Error("startup bootstrap", "err", err)
		}
		return
	}
	if err := resultError(result); err != nil {
		slog.Warn("startup bootstrap did not complete; /ready stays 503 until a successful run", "err", err)
	}
}
