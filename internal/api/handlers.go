package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"rag-system/vectorinit/internal/orchestrator"

	"github.com/gin-gonic/gin"
)

// orchestratorService is the subset of *orchestrator.Orchestrator used by the
// HTTP handlers. Declaring it as an interface allows test doubles to be injected.
type orchestratorService interface {
	RunBootstrap(ctx context.Context) (*orchestrator.BootstrapResult, error)
	RunDeepHealth(ctx context.Context) map[string]orchestrator.ProbeResult
	IsReady() bool
	IsBootstrapInProgress() bool
	LastResult() *orchestrator.BootstrapResult
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	orchestrator orchestratorService
	// runTimeout bounds background bootstrap runs. Zero means no deadline.
	runTimeout time.Duration
}

// Bootstrap handles POST /api/v1/bootstrap.
//
//	@Summary		Start a bootstrap run
//	@Description	Applies the setup statements in the background. Poll GET /api/v1/bootstrap or /ready for the outcome.
//	@Tags			bootstrap
//	@Produce		json
//	@Success		202	{object}	map[string]string
//	@Failure		409	{object}	map[string]string
//	@Router			/api/v1/bootstrap [post]
func (h *Handler) Bootstrap(c *gin.Context) {
	if h.orchestrator.IsBootstrapInProgress() {
		c.JSON(http.StatusConflict, gin.H{"status": "in-progress"})
		return
	}
	go h.runInBackground() //nolint:contextcheck
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// runInBackground is detached from the request; the run outlives the 202.
func (h *Handler) runInBackground() {
	ctx := context.Background()
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}
	if _, err := h.orchestrator.RunBootstrap(ctx); err != nil && !errors.Is(err, orchestrator.ErrBootstrapInProgress) {
		slog.Error("background bootstrap", "error", err)
	}
}

// BootstrapStatus handles GET /api/v1/bootstrap.
//
//	@Summary		Last bootstrap result
//	@Tags			bootstrap
//	@Produce		json
//	@Success		200	{object}	orchestrator.BootstrapResult
//	@Failure		404	{object}	map[string]string
//	@Router			/api/v1/bootstrap [get]
func (h *Handler) BootstrapStatus(c *gin.Context) {
	result := h.orchestrator.LastResult()
	if result == nil {
		status := "not-run"
		if h.orchestrator.IsBootstrapInProgress() {
			status = orchestrator.StatusInProgress
		}
		c.JSON(http.StatusNotFound, gin.H{"status": status})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Health handles GET /health.
// It always returns 200; this is the liveness probe.
//
//	@Summary	Liveness probe
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"mode":   "shallow",
	})
}

// DeepHealth handles GET /health/deep.
// It probes every configured dependency and returns 200 only when every probe is OK.
//
//	@Summary	Dependency health
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Failure	503	{object}	map[string]any
//	@Router		/health/deep [get]
func (h *Handler) DeepHealth(c *gin.Context) {
	probes := h.orchestrator.RunDeepHealth(c.Request.Context())

	allOK := true
	for _, p := range probes {
		if !p.OK {
			allOK = false
			break
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !allOK {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": probes,
	})
}

// Ready handles GET /ready.
// It returns 200 only after a successful bootstrap; 503 otherwise.
//
//	@Summary	Readiness probe
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]bool
//	@Failure	503	{object}	map[string]bool
//	@Router		/ready [get]
func (h *Handler) Ready(c *gin.Context) {
	if h.orchestrator.IsReady() {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}
