package clients

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-system/vectorinit/internal/config"
	"rag-system/vectorinit/internal/dbsetup"
)

// mockRow implements pgx.Row for use in tests.
type mockRow struct {
	scanErr error
	val     string
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*string); ok {
			*ptr = r.val
		}
	}
	return nil
}

// mockConn implements pgConn for use in tests.
type mockConn struct {
	pingErr  error
	queryRow pgx.Row
	execErrs map[string]error

	mu     sync.Mutex
	execs  []string
	closed bool
}

func (m *mockConn) Ping(_ context.Context) error { return m.pingErr }
func (m *mockConn) Close(_ context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
func (m *mockConn) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return m.queryRow
}
func (m *mockConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execs = append(m.execs, sql)
	return pgconn.CommandTag{}, m.execErrs[sql]
}

// connSeq hands out the given connections (or errors) in order, one per
// connect call, and counts the calls.
type connSeq struct {
	mu    sync.Mutex
	conns []pgConn
	errs  []error
	calls int
}

func (s *connSeq) connect(_ context.Context, _ config.PostgresConfig) (pgConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.conns) {
		i = len(s.conns) - 1
	}
	if s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.conns[i], nil
}

// makeClient returns a PostgresClient with a stubbed connect function.
func makeClient(conn pgConn, connectErr error, cb *gobreaker.CircuitBreaker) *PostgresClient {
	return &PostgresClient{
		cfg:         config.PostgresConfig{},
		cb:          cb,
		maxAttempts: 1,
		connect: func(_ context.Context, _ config.PostgresConfig) (pgConn, error) {
			if connectErr != nil {
				return nil, connectErr
			}
			return conn, nil
		},
	}
}

func defaultStatements(t *testing.T) []dbsetup.Statement {
	t.Helper()
	stmts, err := dbsetup.Plan{Database: "rag_system", Role: "puniyani"}.Statements()
	require.NoError(t, err)
	return stmts
}

func TestNewPostgresClient(t *testing.T) {
	t.Parallel()

	client := NewPostgresClient(config.PostgresConfig{Host: "db"}, NewCircuitBreaker("pg-new"), 0, 0)
	assert.Equal(t, uint(1), client.maxAttempts)
	assert.NotNil(t, client.connect)
}

func TestPostgresBootstrap_AppliesOnOneSession(t *testing.T) {
	t.Parallel()

	conn := &mockConn{}
	client := makeClient(conn, nil, NewCircuitBreaker("pg-apply"))
	stmts := defaultStatements(t)

	results, err := client.Bootstrap(context.Background(), stmts)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, []string{
		"CREATE EXTENSION IF NOT EXISTS vector;",
		"GRANT ALL PRIVILEGES ON DATABASE rag_system TO puniyani;",
	}, conn.execs)
	assert.True(t, conn.closed)
}

func TestPostgresBootstrap_PermissionDeniedNotRetried(t *testing.T) {
	t.Parallel()

	stmts := defaultStatements(t)
	conn := &mockConn{execErrs: map[string]error{
		stmts[0].SQL: &pgconn.PgError{Code: "42501", Message: "permission denied to create extension"},
	}}
	seq := &connSeq{conns: []pgConn{conn}, errs: []error{nil}}
	client := &PostgresClient{cb: NewCircuitBreaker("pg-denied"), maxAttempts: 3, connect: seq.connect}

	_, err := client.Bootstrap(context.Background(), stmts)
	require.Error(t, err)

	assert.Equal(t, 1, seq.calls, "permission errors must not be retried")
	assert.Equal(t, []string{stmts[0].SQL}, conn.execs)

	var be *dbsetup.BootstrapError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 1, be.Index)
	assert.Equal(t, dbsetup.KindPermissionDenied, be.Kind)
}

func TestPostgresBootstrap_RetriesConnectionFailures(t *testing.T) {
	t.Parallel()

	good := &mockConn{}
	seq := &connSeq{
		conns: []pgConn{nil, &mockConn{pingErr: errors.New("connection reset")}, good},
		errs:  []error{errors.New("dial tcp: connection refused"), nil, nil},
	}
	client := &PostgresClient{cb: NewCircuitBreaker("pg-retry"), maxAttempts: 3, connect: seq.connect}

	results, err := client.Bootstrap(context.Background(), defaultStatements(t))
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 3, seq.calls)
	assert.Len(t, good.execs, 2)
}

func TestPostgresBootstrap_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	seq := &connSeq{conns: []pgConn{nil}, errs: []error{errors.New("dial tcp: connection refused")}}
	client := &PostgresClient{cb: NewCircuitBreaker("pg-giveup"), maxAttempts: 2, connect: seq.connect}

	_, err := client.Bootstrap(context.Background(), defaultStatements(t))
	require.Error(t, err)
	assert.Equal(t, 2, seq.calls)

	var be *dbsetup.BootstrapError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 0, be.Index)
	assert.Equal(t, "open connection", be.Description)
	assert.Equal(t, dbsetup.KindConnection, be.Kind)
}

func TestPostgresBootstrap_DeadlineDuringRetryWaitKeepsLastFailure(t *testing.T) {
	t.Parallel()

	seq := &connSeq{conns: []pgConn{nil}, errs: []error{errors.New("dial tcp: connection refused")}}
	client := &PostgresClient{
		cb:          NewCircuitBreaker("pg-deadline"),
		maxAttempts: 3,
		retryDelay:  time.Second,
		connect:     seq.connect,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Bootstrap(ctx, defaultStatements(t))
	require.Error(t, err)
	assert.Equal(t, 1, seq.calls)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "connection refused")

	var be *dbsetup.BootstrapError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 0, be.Index)
	assert.Equal(t, "open connection", be.Description)
	assert.Equal(t, dbsetup.KindConnection, be.Kind)
}

func TestPostgresBootstrap_KeepsCompletedResultsOnFailure(t *testing.T) {
	t.Parallel()

	stmts := defaultStatements(t)
	conn := &mockConn{execErrs: map[string]error{
		stmts[1].SQL: &pgconn.PgError{Code: "42601", Message: "syntax error"},
	}}
	client := makeClient(conn, nil, NewCircuitBreaker("pg-partial"))

	results, err := client.Bootstrap(context.Background(), stmts)
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, dbsetup.OutcomeApplied, results[0].Outcome)
	assert.Equal(t, dbsetup.KindSyntaxOrCompatibility, dbsetup.KindOf(err))
}

func TestSessionError(t *testing.T) {
	t.Parallel()

	err := sessionError(&pgconn.PgError{Code: "28P01", Message: "password authentication failed"})
	assert.Equal(t, dbsetup.KindConnection, dbsetup.KindOf(err))

	err = sessionError(&pgconn.PgError{Code: "42501", Message: "permission denied for database"})
	assert.Equal(t, dbsetup.KindPermissionDenied, dbsetup.KindOf(err))

	err = sessionError(&pgconn.PgError{Code: "53300", Message: "too many connections"})
	assert.Equal(t, dbsetup.KindConnection, dbsetup.KindOf(err))
}

func TestProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pingErr    error
		scanErr    error
		connectErr error
		wantOK     bool
		wantDetail string
		wantErrSub string
	}{
		{
			name:       "success - ping ok and vector installed",
			wantOK:     true,
			wantDetail: "0.8.0",
		},
		{
			name:       "failure - ping error",
			pingErr:    errors.New("connection refused"),
			wantErrSub: "ping",
		},
		{
			name:       "failure - extension missing",
			scanErr:    pgx.ErrNoRows,
			wantErrSub: "vector extension not installed",
		},
		{
			name:       "failure - query error",
			scanErr:    errors.New("relation does not exist"),
			wantErrSub: "reading vector extension version",
		},
		{
			name:       "failure - connect error",
			connectErr: errors.New("dial error"),
			wantErrSub: "dial error",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cb := NewCircuitBreaker("test-" + tc.name)
			conn := &mockConn{
				pingErr:  tc.pingErr,
				queryRow: &mockRow{scanErr: tc.scanErr, val: "0.8.0"},
			}
			client := makeClient(conn, tc.connectErr, cb)

			result := client.Probe(context.Background())

			assert.Equal(t, "postgres", result.Name)
			assert.Equal(t, tc.wantOK, result.OK)
			if tc.wantErrSub != "" {
				assert.Contains(t, result.Error, tc.wantErrSub)
			}
			if tc.wantOK {
				assert.Empty(t, result.Error)
				assert.Equal(t, tc.wantDetail, result.Detail)
			}
		})
	}
}

func TestProbeCircuitBreaker_OpensAfterThreeFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("cb-open-test")
	client := makeClient(&mockConn{
		pingErr:  errors.New("connection refused"),
		queryRow: &mockRow{val: "0.8.0"},
	}, nil, cb)

	for i := range 3 {
		result := client.Probe(context.Background())
		assert.False(t, result.OK, "probe %d should fail", i+1)
		assert.NotEqual(t, "circuit open", result.Error,
			"probe %d should not be circuit-open yet", i+1)
	}

	result := client.Probe(context.Background())
	assert.False(t, result.OK)
	assert.Equal(t, "circuit open", result.Error)
}

func TestNewCircuitBreaker(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("unit-test")
	assert.NotNil(t, cb)
	assert.Equal(t, "unit-test", cb.Name())
}
