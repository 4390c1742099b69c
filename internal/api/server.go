package api

import (
	"log/slog"
	"net/http"
	"time"

	_ "rag-system/vectorinit/docs" // register generated Swagger spec

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const docsPrefix = "/api-docs"

// Router wraps a configured Gin engine and exposes it as an http.Handler.
type Router struct {
	engine *gin.Engine
}

// NewRouter constructs a Router with the full middleware chain and all routes
// registered. Middleware order:
//  1. Recovery: panic becomes 500
//  2. Tracing: trace context per request
//  3. RequestLogger: structured request/response logging
//
// runTimeout bounds bootstrap runs started through POST /api/v1/bootstrap.
func NewRouter(o orchestratorService, serviceName string, runTimeout time.Duration) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(Recovery(slog.Default()))
	engine.Use(Tracing(serviceName))
	engine.Use(RequestLogger(slog.Default()))

	h := &Handler{orchestrator: o, runTimeout: runTimeout}

	v1 := engine.Group("/api/v1")
	v1.POST("/bootstrap", h.Bootstrap)
	v1.GET("/bootstrap", h.BootstrapStatus)

	engine.GET("/health", h.Health)
	engine.GET("/health/deep", h.DeepHealth)
	engine.GET("/ready", h.Ready)

	// API docs at http://localhost:8081/api-docs
	engine.GET(docsPrefix, func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, docsPrefix+"/index.html")
	})
	engine.GET(docsPrefix+"/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return &Router{engine: engine}
}

// Handler returns the underlying http.Handler for use with net/http servers.
func (r *Router) Handler() http.Handler {
	return r.engine
}
