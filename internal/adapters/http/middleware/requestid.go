// Package middleware holds the Gin middleware chain.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jsamuelsen/reqctx-service/internal/adapters/http/dto"
	"github.com/jsamuelsen/reqctx-service/internal/platform/logging"
)

const (
	HeaderRequestID     = "X-Request-ID"
	ContextKeyRequestID = dto.ContextKeyRequestID
)

// RequestID takes X-Request-ID from the inbound request, or mints a UUID,
// and echoes it on the response and binds it to the context logger.
//
// The request ID names one HTTP exchange. The correlation ID, set later in
// the chain, names the logical request and comes from the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(ContextKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))

		c.Next()
	}
}

// GetRequestID returns the request ID, or "" outside the middleware.
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}
