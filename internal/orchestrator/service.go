package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"rag-system/vectorinit/internal/dbsetup"
)

// ErrBootstrapInProgress is returned when RunBootstrap is called while a
// bootstrap is already running.
var ErrBootstrapInProgress = errors.New("bootstrap already in progress")

// PGBootstrapper is satisfied by *clients.PostgresClient.
type PGBootstrapper interface {
	Bootstrap(ctx context.Context, statements []dbsetup.Statement) ([]dbsetup.StatementResult, error)
	Probe(ctx context.Context) ProbeResult
}

// EventPublisher is satisfied by *clients.NATSClient.
type EventPublisher interface {
	PublishResult(ctx context.Context, event BootstrapEvent) error
	Probe(ctx context.Context) ProbeResult
}

// ResultRecorder is satisfied by *clients.RedisClient.
type ResultRecorder interface {
	RecordResult(ctx context.Context, event BootstrapEvent) error
	Probe(ctx context.Context) ProbeResult
}

// Orchestrator applies the setup statements and fans the outcome out to the
// optional publishers.
type Orchestrator struct {
	statements []dbsetup.Statement
	pg         PGBootstrapper
	publisher  EventPublisher
	recorder   ResultRecorder

	runs         metric.Int64Counter
	stmtOutcomes metric.Int64Counter

	bootstrapInProgress atomic.Bool
	lastResult          *BootstrapResult
	resultMu            sync.RWMutex
}

// New constructs an Orchestrator. publisher and recorder may be nil, in which
// case their phases are reported as skipped and they are left out of deep
// health.
func New(statements []dbsetup.Statement, pg PGBootstrapper, publisher EventPublisher, recorder ResultRecorder) *Orchestrator {
	meter := otel.Meter("vectorinit")

	// Instrument creation only fails on invalid names; record skips nil counters.
	runs, err := meter.Int64Counter("vectorinit.bootstrap.runs",
		metric.WithDescription("Bootstrap runs by final status"))
	if err != nil {
		slog.Warn("creating runs counter", "err", err)
	}
	stmts, err := meter.Int64Counter("vectorinit.bootstrap.statements",
		metric.WithDescription("Setup statements by outcome"))
	if err != nil {
		slog.Warn("creating statements counter", "err", err)
	}

	return &Orchestrator{
		statements:   statements,
		pg:           pg,
		publisher:    publisher,
		recorder:     recorder,
		runs:         runs,
		stmtOutcomes: stmts,
	}
}

// RunBootstrap applies the setup statements, then publishes the outcome.
// The postgres phase alone decides the overall status; notification failures
// are recorded on their phase. Returns ErrBootstrapInProgress if a run is
// already active.
func (o *Orchestrator) RunBootstrap(ctx context.Context) (*BootstrapResult, error) {
	if !o.bootstrapInProgress.CompareAndSwap(false, true) {
		return nil, ErrBootstrapInProgress
	}
	defer o.bootstrapInProgress.Store(false)

	result := &BootstrapResult{
		Status:    StatusInProgress,
		StartedAt: time.Now().UTC(),
		Phases:    make(map[string]PhaseResult),
	}

	ctx, span := otel.Tracer("vectorinit").Start(ctx, "vectorinit.bootstrap")
	defer span.End()

	slog.InfoContext(ctx, "bootstrap started", "statements", len(o.statements))

	statements, err := o.pg.Bootstrap(ctx, o.statements)
	result.Statements = statements
	pgPhase := provisionToPhase(PhasePostgres, err)
	logPhase(ctx, pgPhase)
	result.Phases[PhasePostgres] = pgPhase

	result.Status = StatusOK
	if err != nil {
		result.Status = StatusError
		result.Failure = failureFrom(err)
	}
	result.FinishedAt = time.Now().UTC()

	event := result.event()

	// Plain errgroup: a failed publisher must not cancel its sibling.
	var g errgroup.Group
	notify := func(name string, enabled bool, fn func(context.Context, BootstrapEvent) error) {
		if !enabled {
			result.Lock()
			result.Phases[name] = PhaseResult{Name: name, Status: StatusSkipped}
			result.Unlock()
			return
		}
		g.Go(func() error {
			phase := provisionToPhase(name, fn(ctx, event))
			logPhase(ctx, phase)
			result.Lock()
			result.Phases[name] = phase
			result.Unlock()
			return nil
		})
	}
	notify(PhaseNATS, o.publisher != nil, func(ctx context.Context, e BootstrapEvent) error {
		return o.publisher.PublishResult(ctx, e)
	})
	notify(PhaseRedis, o.recorder != nil, func(ctx context.Context, e BootstrapEvent) error {
		return o.recorder.RecordResult(ctx, e)
	})

	// Never returns an error: every goroutine returns nil.
	_ = g.Wait()

	o.record(ctx, result)

	span.SetAttributes(
		attribute.String("bootstrap.status", result.Status),
		attribute.Int("bootstrap.statements", len(result.Statements)),
	)
	if result.Status == StatusError {
		span.SetStatus(codes.Error, result.Failure.Error)
		slog.ErrorContext(ctx, "bootstrap failed",
			"index", result.Failure.Index,
			"description", result.Failure.Description,
			"kind", result.Failure.Kind,
			"error", result.Failure.Error,
		)
	} else {
		span.SetStatus(codes.Ok, "")
		slog.InfoContext(ctx, "bootstrap completed", "status", result.Status)
	}

	o.resultMu.Lock()
	o.lastResult = result
	o.resultMu.Unlock()

	return result, nil
}

// RunDeepHealth probes every configured dependency concurrently and returns a
// map of phase name to ProbeResult.
func (o *Orchestrator) RunDeepHealth(ctx context.Context) map[string]ProbeResult {
	results := make(map[string]ProbeResult, 3)
	var mu sync.Mutex
	var g errgroup.Group

	probe := func(name string, fn func(context.Context) ProbeResult) {
		g.Go(func() error {
			p := fn(ctx)
			mu.Lock()
			results[name] = p
			mu.Unlock()
			return nil
		})
	}

	probe(PhasePostgres, o.pg.Probe)
	if o.publisher != nil {
		probe(PhaseNATS, o.publisher.Probe)
	}
	if o.recorder != nil {
		probe(PhaseRedis, o.recorder.Probe)
	}

	_ = g.Wait()
	return results
}

// IsBootstrapInProgress returns true while a bootstrap run is active.
func (o *Orchestrator) IsBootstrapInProgress() bool {
	return o.bootstrapInProgress.Load()
}

// IsReady returns true if the last bootstrap completed with StatusOK.
func (o *Orchestrator) IsReady() bool {
	o.resultMu.RLock()
	defer o.resultMu.RUnlock()
	return o.lastResult != nil && o.lastResult.Status == StatusOK
}

// LastResult returns the most recent completed run, or nil before the first.
func (o *Orchestrator) LastResult() *BootstrapResult {
	o.resultMu.RLock()
	defer o.resultMu.RUnlock()
	return o.lastResult
}

// Statements returns the statements this orchestrator applies.
func (o *Orchestrator) Statements() []dbsetup.Statement {
	return o.statements
}

func (o *Orchestrator) record(ctx context.Context, result *BootstrapResult) {
	if o.runs != nil {
		o.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", result.Status)))
	}
	if o.stmtOutcomes != nil {
		for _, s := range result.Statements {
			o.stmtOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(s.Outcome))))
		}
		if result.Failure != nil && result.Failure.Index > 0 {
			o.stmtOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(result.Failure.Kind))))
		}
	}
}

// logPhase emits a trace-correlated log for a bootstrap phase result.
func logPhase(ctx context.Context, p PhaseResult) {
	if p.Status == StatusOK {
		slog.InfoContext(ctx, "bootstrap phase ok", "phase", p.Name)
		return
	}
	slog.WarnContext(ctx, "bootstrap phase failed", "phase", p.Name, "error", p.Error)
}

// provisionToPhase converts a phase error to a PhaseResult.
func provisionToPhase(name string, err error) PhaseResult {
	if err == nil {
		return PhaseResult{Name: name, Status: StatusOK}
	}
	return PhaseResult{Name: name, Status: StatusError, Error: err.Error()}
}
