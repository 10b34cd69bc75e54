package middleware

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/reqctx-service/internal/adapters/http/dto"
	"github.com/jsamuelsen/reqctx-service/internal/platform/logging"
)

const (
	// HeaderCorrelationID is the header name for correlation ID.
	HeaderCorrelationID = "X-Correlation-ID"

	// ContextKeyCorrelationID is the gin context key for the correlation ID.
	ContextKeyCorrelationID = dto.ContextKeyCorrelationID
)

// CorrelationSource resolves the correlation ID of the request context
// attached to ctx.
type CorrelationSource interface {
	CorrelationID(ctx context.Context) string
}

// CorrelationID returns middleware that publishes the request context's
// correlation ID. It must run after the transaction middleware so the ID is
// derived from the request's trace. The ID is:
//   - Stored in gin.Context for error responses and handlers
//   - Echoed in the X-Correlation-ID response header
//
// An inbound X-Correlation-ID that differs is kept on the context logger as
// upstream_correlation_id; it never replaces the trace-derived ID.
func CorrelationID(source CorrelationSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := source.CorrelationID(ctx)

		c.Set(ContextKeyCorrelationID, id)
		c.Header(HeaderCorrelationID, id)

		if upstream := c.GetHeader(HeaderCorrelationID); upstream != "" && upstream != id {
			logger := logging.FromContext(ctx).With(slog.String("upstream_correlation_id", upstream))
			c.Request = c.Request.WithContext(logging.WithContext(ctx, logger))
		}

		c.Next()
	}
}

// GetCorrelationID extracts the correlation ID from the gin.Context.
// Returns empty string if not set.
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(ContextKeyCorrelationID)
}
