package main

import (
	"context"
	"fmt"
	"log/slog"

	"rag-system/vectorinit/internal/api"
	"rag-system/vectorinit/internal/clients"
	"rag-system/vectorinit/internal/config"
	"rag-system/vectorinit/internal/dbsetup"
	"rag-system/vectorinit/internal/orchestrator"
	"rag-system/vectorinit/internal/telemetry"
)

// AppContext holds all constructed application dependencies shared across
// subcommands. It is built once in PersistentPreRunE and referenced by
// server.go, bootstrap.go and sql.go.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	orchestrator *orchestrator.Orchestrator
	router       *api.Router
}

// buildAppContext constructs all application dependencies from cfg:
//  1. Initialises the OTEL provider (best-effort, non-fatal)
//  2. Renders the statement plan from the grant target and schema settings
//  3. Creates the Postgres client and, when configured, NATS and Redis
//  4. Creates the orchestrator and the HTTP router
//
// No connection is opened here.
func buildAppContext(cfg *config.Config) (*AppContext, error) {
	app := &AppContext{cfg: cfg}

	// When OTLPEndpoint is empty, telemetry is disabled entirely. This avoids
	// the SDK's periodic-reader noise when no collector is running locally.
	if cfg.Telemetry.OTLPEndpoint == "" {
		slog.Debug("OTEL telemetry disabled (no endpoint configured)")
	} else {
		tp, err := telemetry.InitProvider(
			context.Background(),
			cfg.Telemetry.OTLPEndpoint,
			cfg.Telemetry.ServiceName,
			cfg.Telemetry.OTLPInsecure,
		)
		if err != nil {
			slog.Warn("OTEL provider init failed, telemetry disabled", "err", err)
		} else {
			app.otelProvider = tp
			// Fan out: keep stdout (TraceHandler+JSONHandler) and add OTEL logs.
			slog.SetDefault(slog.New(telemetry.NewTeeHandler(
				slog.Default().Handler(),
				tp.LogHandler,
			)))
		}
	}

	database, role := cfg.GrantTarget()
	plan := dbsetup.Plan{
		Database:            database,
		Role:                role,
		Tables:              cfg.Bootstrap.Schema.Tables,
		EmbeddingDimensions: cfg.Bootstrap.Schema.EmbeddingDimensions,
	}
	statements, err := plan.Statements()
	if err != nil {
		return nil, fmt.Errorf("rendering statements: %w", err)
	}

	// One circuit breaker per client so each dependency trips independently.
	pg := clients.NewPostgresClient(
		cfg.Bootstrap.Postgres,
		clients.NewCircuitBreaker("postgres"),
		cfg.Bootstrap.MaxAttempts,
		cfg.Bootstrap.RetryBackoff,
	)

	// Interface values stay nil (not typed-nil pointers) when a notifier is
	// not configured, so the orchestrator reports its phase as skipped.
	var publisher orchestrator.EventPublisher
	if cfg.Bootstrap.NATS.URL != "" {
		publisher = clients.NewNATSClient(cfg.Bootstrap.NATS, clients.NewCircuitBreaker("nats"))
	}
	var recorder orchestrator.ResultRecorder
	if cfg.Bootstrap.Redis.Addr != "" {
		recorder = clients.NewRedisClient(cfg.Bootstrap.Redis, clients.NewCircuitBreaker("redis"))
	}

	slog.Debug("bootstrap plan",
		"database", database,
		"role", role,
		"statements", len(statements),
		"nats", publisher != nil,
		"redis", recorder != nil,
	)

	app.orchestrator = orchestrator.New(statements, pg, publisher, recorder)
	app.router = api.NewRouter(app.orchestrator, cfg.Telemetry.ServiceName, cfg.Bootstrap.Timeout)

	return app, nil
}
