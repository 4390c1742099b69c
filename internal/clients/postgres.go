package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sony/gobreaker"

	"rag-system/vectorinit/internal/config"
	"rag-system/vectorinit/internal/dbsetup"
	"rag-system/vectorinit/internal/orchestrator"
)

const postgresProbeName = "postgres"

const extensionVersionSQL = "SELECT extversion FROM pg_extension WHERE extname = 'vector'"

// pgConn abstracts the *pgx.Conn methods used here so tests can inject a fake
// without standing up a real database.
type pgConn interface {
	dbsetup.Execer
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// PostgresClient opens a single session per bootstrap attempt and applies the
// setup statements on it.
type PostgresClient struct {
	cfg         config.PostgresConfig
	cb          *gobreaker.CircuitBreaker
	maxAttempts uint
	retryDelay  time.Duration
	connect     func(ctx context.Context, cfg config.PostgresConfig) (pgConn, error)
}

// NewPostgresClient creates a PostgresClient. No connection is made at
// construction time. Connection-class failures during Bootstrap are retried
// up to maxAttempts times, retryDelay apart.
func NewPostgresClient(cfg config.PostgresConfig, cb *gobreaker.CircuitBreaker, maxAttempts int, retryDelay time.Duration) *PostgresClient {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &PostgresClient{
		cfg:         cfg,
		cb:          cb,
		maxAttempts: uint(maxAttempts),
		retryDelay:  retryDelay,
		connect:     realConnect,
	}
}

// Bootstrap applies statements in order on one session. A failure of kind
// connection (including the session failing to open) is retried on a fresh
// session; every other failure is returned at once. If ctx ends while
// waiting for the next attempt, the last attempt's *dbsetup.BootstrapError is
// returned with the context error joined into it.
func (c *PostgresClient) Bootstrap(ctx context.Context, statements []dbsetup.Statement) ([]dbsetup.StatementResult, error) {
	attempt := 0
	var (
		lastResults []dbsetup.StatementResult
		lastErr     *dbsetup.BootstrapError
	)
	operation := func() ([]dbsetup.StatementResult, error) {
		attempt++
		results, err := c.applyOnce(ctx, statements)
		if err == nil {
			return results, nil
		}
		lastResults, lastErr = results, nil
		errors.As(err, &lastErr)
		if dbsetup.KindOf(err) == dbsetup.KindConnection {
			slog.WarnContext(ctx, "bootstrap attempt failed", "attempt", attempt, "max_attempts", c.maxAttempts, "error", err)
			return results, err
		}
		return results, backoff.Permanent(err)
	}

	results, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(c.maxAttempts),
	)
	var bootstrapErr *dbsetup.BootstrapError
	if err != nil && lastErr != nil && !errors.As(err, &bootstrapErr) {
		wrapped := *lastErr
		wrapped.Err = errors.Join(lastErr.Err, err)
		return lastResults, &wrapped
	}
	return results, err
}

func (c *PostgresClient) applyOnce(ctx context.Context, statements []dbsetup.Statement) ([]dbsetup.StatementResult, error) {
	conn, err := c.connect(ctx, c.cfg)
	if err != nil {
		return nil, sessionError(err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := conn.Close(closeCtx); err != nil {
			slog.WarnContext(ctx, "closing postgres session", "error", err)
		}
	}()

	if err := conn.Ping(ctx); err != nil {
		return nil, sessionError(fmt.Errorf("ping: %w", err))
	}

	return dbsetup.Apply(ctx, conn, statements)
}

// sessionError reports a failure that happened before any statement was sent.
func sessionError(err error) error {
	kind := dbsetup.Classify(err)
	if kind == dbsetup.KindAlreadyApplied || kind == dbsetup.KindUnclassified {
		kind = dbsetup.KindConnection
	}
	return &dbsetup.BootstrapError{
		Index:       0,
		Description: "open connection",
		Kind:        kind,
		Err:         err,
	}
}

// Probe pings the server and reads the installed pgvector version. The check
// runs in the circuit breaker, so persistent failures trip it after three
// consecutive errors.
func (c *PostgresClient) Probe(ctx context.Context) orchestrator.ProbeResult {
	start := time.Now()

	version, err := c.cb.Execute(func() (any, error) {
		conn, err := c.connect(ctx, c.cfg)
		if err != nil {
			return nil, err
		}
		defer conn.Close(ctx) //nolint:errcheck

		if err := conn.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}

		var v string
		if err := conn.QueryRow(ctx, extensionVersionSQL).Scan(&v); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, errors.New("vector extension not installed")
			}
			return nil, fmt.Errorf("reading vector extension version: %w", err)
		}
		return v, nil
	})

	latency := time.Since(start).Milliseconds()

	if err != nil {
		return failedProbe(postgresProbeName, latency, err)
	}

	detail, _ := version.(string)
	return orchestrator.ProbeResult{
		Name:      postgresProbeName,
		OK:        true,
		LatencyMs: latency,
		Detail:    detail,
	}
}

// realConnect opens a pgx session and logs server NOTICEs such as
// "extension \"vector\" already exists, skipping".
func realConnect(ctx context.Context, cfg config.PostgresConfig) (pgConn, error) {
	connCfg, err := pgx.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	connCfg.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		slog.Info("postgres notice", "severity", n.Severity, "code", n.Code, "message", n.Message)
	}

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return conn, nil
}
