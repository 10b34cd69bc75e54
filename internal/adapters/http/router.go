package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/reqctx-service/internal/adapters/http/dto"
	"github.com/jsamuelsen/reqctx-service/internal/adapters/http/handlers"
	"github.com/jsamuelsen/reqctx-service/internal/adapters/http/middleware"
	"github.com/jsamuelsen/reqctx-service/internal/app/reqctx"
	"github.com/jsamuelsen/reqctx-service/internal/domain"
	"github.com/jsamuelsen/reqctx-service/internal/platform/telemetry"
)

// DefaultRequestTimeout is the default timeout for API requests.
const DefaultRequestTimeout = 30 * time.Second

// RouterConfig contains configuration for setting up the router.
type RouterConfig struct {
	// Agent starts the tracing transaction every request runs in.
	Agent *telemetry.Agent

	// Provider resolves request contexts from those transactions.
	Provider *reqctx.Provider

	// HealthHandler handles health check endpoints.
	HealthHandler *handlers.HealthHandler

	// ContextHandler serves /api/v1/context.
	ContextHandler *handlers.ContextHandler

	// RoutinesHandler serves /api/v1/routines.
	RoutinesHandler *handlers.RoutinesHandler

	// Timeout is the default request timeout.
	Timeout time.Duration
}

// SetupRouter configures all routes and middleware on the Gin engine.
// Middleware is applied in the following order (first to last):
//  1. Recovery - catch panics first
//  2. Request ID - generate/extract request ID
//  3. Transaction - start the tracing transaction; context end hooks run when it ends
//  4. Metrics - HTTP server metrics
//  5. Correlation ID - publish the request context's correlation ID
//  6. Logging - request logging and the transaction finished hook (skips health endpoints)
//  7. Timeout - request deadline (API routes only)
//
// Route groups:
//   - /-/ (internal): Health endpoints
//   - /api/v1/ (public API): Request context endpoints
//
// Unknown routes still pass through the global middleware and answer with
// the standard NOT_FOUND error body.
func SetupRouter(engine *gin.Engine, cfg RouterConfig) {
	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		cfg.Agent.Middleware(),
		telemetry.MetricsMiddleware(),
		middleware.CorrelationID(cfg.Provider),
		middleware.Logging(cfg.Provider),
	)

	// Probes get no timeout.
	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterHealthRoutes(engine.Group("/-"))
	}

	apiV1 := engine.Group("/api/v1")
	if cfg.Timeout > 0 {
		apiV1.Use(middleware.SimpleTimeout(cfg.Timeout))
	}

	setupAPIRoutes(apiV1, cfg)

	engine.NoRoute(func(c *gin.Context) {
		dto.HandleError(c, domain.NewNotFoundError("route", c.Request.Method+" "+c.Request.URL.Path))
	})
}

// setupAPIRoutes registers business API routes.
func setupAPIRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.ContextHandler != nil {
		cfg.ContextHandler.RegisterRoutes(rg)
	}

	if cfg.RoutinesHandler != nil {
		cfg.RoutinesHandler.RegisterRoutes(rg)
	}
}

// NewDefaultRouterConfig creates a RouterConfig with sensible defaults.
func NewDefaultRouterConfig(
	agent *telemetry.Agent,
	provider *reqctx.Provider,
	healthHandler *handlers.HealthHandler,
) RouterConfig {
	return RouterConfig{
		Agent:         agent,
		Provider:      provider,
		HealthHandler: healthHandler,
		Timeout:       DefaultRequestTimeout,
	}
}
