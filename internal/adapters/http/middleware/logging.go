package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/reqctx-service/internal/app/reqctx"
	"github.com/jsamuelsen/reqctx-service/internal/platform/logging"
)

// Lifecycle queues work to run when the request's transaction ends.
type Lifecycle interface {
	OnContextEnd(ctx context.Context, hook reqctx.EndHook) error
}

// Logging logs each request's start and completion, and queues an end hook
// that logs once the transaction is over. Probe paths under /-/ are not
// logged. Completion is logged at warn for 4xx and error for 5xx.
func Logging(lifecycle Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/-/") {
			c.Next()
			return
		}

		began := time.Now()
		ctx := c.Request.Context()
		log := logging.FromContext(ctx)
		target := c.Request.URL.RequestURI()

		log.InfoContext(ctx, "request started",
			slog.String("method", c.Request.Method),
			slog.String("path", target),
			slog.String("client_ip", c.ClientIP()),
			slog.String("user_agent", c.Request.UserAgent()),
		)

		if err := lifecycle.OnContextEnd(ctx, func(transaction string) error {
			log.InfoContext(ctx, "transaction finished",
				slog.String("transaction", transaction),
				slog.Duration("duration", time.Since(began)),
			)

			return nil
		}); err != nil {
			log.DebugContext(ctx, "transaction end not observed", slog.Any("error", err))
		}

		c.Next()

		took := time.Since(began)
		status := c.Writer.Status()

		log.Log(ctx, levelFor(status), "request completed",
			slog.String("method", c.Request.Method),
			slog.String("path", target),
			slog.Int("status", status),
			slog.Duration("latency", took),
			slog.Int64("latency_ms", took.Milliseconds()),
			slog.Int("bytes", c.Writer.Size()),
		)
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
