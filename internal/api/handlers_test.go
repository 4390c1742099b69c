package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"rag-system/vectorinit/internal/dbsetup"
	"rag-system/vectorinit/internal/orchestrator"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopLogger returns a slog.Logger that discards all output.
func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeOrchestrator is a test double that implements orchestratorService.
type fakeOrchestrator struct {
	inProgress   bool
	ready        bool
	deepProbes   map[string]orchestrator.ProbeResult
	last         *orchestrator.BootstrapResult
	bootstrapErr error
	// bootstrapDelay simulates slow bootstrap so async tests can verify 202.
	bootstrapDelay time.Duration

	runs        atomic.Int32
	hadDeadline atomic.Bool
}

func (f *fakeOrchestrator) IsBootstrapInProgress() bool {
	return f.inProgress
}

func (f *fakeOrchestrator) IsReady() bool {
	return f.ready
}

func (f *fakeOrchestrator) LastResult() *orchestrator.BootstrapResult {
	return f.last
}

func (f *fakeOrchestrator) RunBootstrap(ctx context.Context) (*orchestrator.BootstrapResult, error) {
	_, ok := ctx.Deadline()
	f.hadDeadline.Store(ok)
	defer f.runs.Add(1)

	if f.bootstrapDelay > 0 {
		time.Sleep(f.bootstrapDelay)
	}
	if f.bootstrapErr != nil {
		return nil, f.bootstrapErr
	}
	return &orchestrator.BootstrapResult{
		Status: orchestrator.StatusOK,
		Phases: map[string]orchestrator.PhaseResult{},
	}, nil
}

func (f *fakeOrchestrator) RunDeepHealth(_ context.Context) map[string]orchestrator.ProbeResult {
	if f.deepProbes != nil {
		return f.deepProbes
	}
	return map[string]orchestrator.ProbeResult{}
}

// newTestEngine builds a minimal Gin engine with only the given handler and
// no middleware, for isolated handler testing.
func newTestEngine(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Handle(method, path, h)
	return r
}

func serve(engine http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	engine.ServeHTTP(w, req)
	return w
}

// --- Bootstrap handler ---

func TestBootstrap_202WhenNotRunning(t *testing.T) {
	t.Parallel()

	fake := &fakeOrchestrator{inProgress: false, bootstrapDelay: 50 * time.Millisecond}
	handler := &Handler{orchestrator: fake, runTimeout: time.Minute}

	engine := newTestEngine(http.MethodPost, "/api/v1/bootstrap", handler.Bootstrap)
	w := serve(engine, http.MethodPost, "/api/v1/bootstrap")

	assert.Equal(t, http.StatusAccepted, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "accepted", body["status"])

	assert.Eventually(t, func() bool { return fake.runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, fake.hadDeadline.Load(), "background run should carry the run timeout")
}

func TestBootstrap_NoDeadlineWithoutTimeout(t *testing.T) {
	t.Parallel()

	fake := &fakeOrchestrator{}
	handler := &Handler{orchestrator: fake}

	engine := newTestEngine(http.MethodPost, "/api/v1/bootstrap", handler.Bootstrap)
	w := serve(engine, http.MethodPost, "/api/v1/bootstrap")
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.Eventually(t, func() bool { return fake.runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, fake.hadDeadline.Load())
}

func TestBootstrap_409WhenInProgress(t *testing.T) {
	t.Parallel()

	fake := &fakeOrchestrator{inProgress: true}
	handler := &Handler{orchestrator: fake}

	engine := newTestEngine(http.MethodPost, "/api/v1/bootstrap", handler.Bootstrap)
	w := serve(engine, http.MethodPost, "/api/v1/bootstrap")

	assert.Equal(t, http.StatusConflict, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "in-progress", body["status"])
	assert.Equal(t, int32(0), fake.runs.Load())
}

// --- BootstrapStatus handler ---

func TestBootstrapStatus(t *testing.T) {
	t.Parallel()

	failed := &orchestrator.BootstrapResult{
		Status: orchestrator.StatusError,
		Statements: []dbsetup.StatementResult{
			{Index: 1, Description: "enable pgvector extension", Outcome: dbsetup.OutcomeApplied},
		},
		Failure: &orchestrator.Failure{
			Index:       2,
			Description: "grant all privileges on database rag_system to puniyani",
			Kind:        dbsetup.KindPermissionDenied,
			Error:       "permission denied",
		},
	}

	tests := []struct {
		name       string
		fake       *fakeOrchestrator
		wantCode   int
		wantStatus string
	}{
		{name: "never run", fake: &fakeOrchestrator{}, wantCode: http.StatusNotFound, wantStatus: "not-run"},
		{name: "first run in progress", fake: &fakeOrchestrator{inProgress: true}, wantCode: http.StatusNotFound, wantStatus: "in-progress"},
		{name: "last run failed", fake: &fakeOrchestrator{last: failed}, wantCode: http.StatusOK, wantStatus: "error"},
		{name: "last run ok", fake: &fakeOrchestrator{last: &orchestrator.BootstrapResult{Status: orchestrator.StatusOK}}, wantCode: http.StatusOK, wantStatus: "ok"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			handler := &Handler{orchestrator: tc.fake}
			engine := newTestEngine(http.MethodGet, "/api/v1/bootstrap", handler.BootstrapStatus)
			w := serve(engine, http.MethodGet, "/api/v1/bootstrap")

			assert.Equal(t, tc.wantCode, w.Code)

			var body map[string]any
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tc.wantStatus, body["status"])
		})
	}
}

func TestBootstrapStatus_ReportsFailingStatement(t *testing.T) {
	t.Parallel()

	fake := &fakeOrchestrator{last: &orchestrator.BootstrapResult{
		Status: orchestrator.StatusError,
		Failure: &orchestrator.Failure{
			Index:       1,
			Description: "enable pgvector extension",
			Kind:        dbsetup.KindSyntaxOrCompatibility,
			Error:       `extension "vector" is not available`,
		},
	}}
	handler := &Handler{orchestrator: fake}

	engine := newTestEngine(http.MethodGet, "/api/v1/bootstrap", handler.BootstrapStatus)
	w := serve(engine, http.MethodGet, "/api/v1/bootstrap")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Failure orchestrator.Failure `json:"failure"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 1, body.Failure.Index)
	assert.Equal(t, dbsetup.KindSyntaxOrCompatibility, body.Failure.Kind)
}

// --- Health handler ---

func TestHealth_AlwaysReturns200(t *testing.T) {
	t.Parallel()

	handler := &Handler{orchestrator: &fakeOrchestrator{}}

	engine := newTestEngine(http.MethodGet, "/health", handler.Health)
	w := serve(engine, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "shallow", body["mode"])
}

// --- DeepHealth handler ---

func TestDeepHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		probes     map[string]orchestrator.ProbeResult
		wantCode   int
		wantStatus string
	}{
		{
			name: "all healthy",
			probes: map[string]orchestrator.ProbeResult{
				"postgres": {Name: "postgres", OK: true, Detail: "0.8.0"},
				"nats":     {Name: "nats", OK: true},
				"redis":    {Name: "redis", OK: true},
			},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name: "postgres only, healthy",
			probes: map[string]orchestrator.ProbeResult{
				"postgres": {Name: "postgres", OK: true},
			},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name: "one unhealthy",
			probes: map[string]orchestrator.ProbeResult{
				"postgres": {Name: "postgres", OK: true},
				"nats":     {Name: "nats", OK: false, Error: "connection refused"},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
		{
			name: "all unhealthy",
			probes: map[string]orchestrator.ProbeResult{
				"postgres": {Name: "postgres", OK: false, Error: "vector extension not installed"},
				"redis":    {Name: "redis", OK: false, Error: "circuit open"},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			handler := &Handler{orchestrator: &fakeOrchestrator{deepProbes: tc.probes}}
			engine := newTestEngine(http.MethodGet, "/health/deep", handler.DeepHealth)
			w := serve(engine, http.MethodGet, "/health/deep")

			assert.Equal(t, tc.wantCode, w.Code)

			var body map[string]any
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tc.wantStatus, body["status"])
			deps, ok := body["dependencies"].(map[string]any)
			require.True(t, ok)
			assert.Len(t, deps, len(tc.probes))
		})
	}
}

// --- Ready handler ---

func TestReady_503BeforeBootstrap(t *testing.T) {
	t.Parallel()

	handler := &Handler{orchestrator: &fakeOrchestrator{ready: false}}

	engine := newTestEngine(http.MethodGet, "/ready", handler.Ready)
	w := serve(engine, http.MethodGet, "/ready")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, false, body["ready"])
}

func TestReady_200AfterBootstrap(t *testing.T) {
	t.Parallel()

	handler := &Handler{orchestrator: &fakeOrchestrator{ready: true}}

	engine := newTestEngine(http.MethodGet, "/ready", handler.Ready)
	w := serve(engine, http.MethodGet, "/ready")

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, true, body["ready"])
}

// --- Recovery middleware ---

func TestRecoveryMiddleware_Returns500OnPanic(t *testing.T) {
	t.Parallel()

	engine := gin.New()
	engine.Use(Recovery(noopLogger()))
	engine.GET("/panic", func(c *gin.Context) {
		panic("intentional test panic")
	})

	w := serve(engine, http.MethodGet, "/panic")

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "error", body["status"])
}

// --- NewRouter smoke test ---

// Not parallel: NewRouter sets the global gin mode.
func TestNewRouter_RoutesRegistered(t *testing.T) {
	fake := &fakeOrchestrator{
		ready: true,
		last:  &orchestrator.BootstrapResult{Status: orchestrator.StatusOK},
		deepProbes: map[string]orchestrator.ProbeResult{
			"postgres": {Name: "postgres", OK: true},
		},
	}
	router := NewRouter(fake, "vectorinit-test", time.Minute)

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/health/deep", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/api/v1/bootstrap", http.StatusOK},
		{http.MethodPost, "/api/v1/bootstrap", http.StatusAccepted},
		{http.MethodGet, "/api-docs", http.StatusMovedPermanently},
		{http.MethodGet, "/missing", http.StatusNotFound},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(""))
		router.Handler().ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, "route %s %s", tc.method, tc.path)
	}
}
