package telemetry

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterScope = "github.com/jsamuelsen/reqctx-service/telemetry"

type serverMetrics struct {
	latency  metric.Float64Histogram
	requests metric.Int64Counter
	inflight metric.Int64UpDownCounter
}

func newServerMetrics(mp metric.MeterProvider) (*serverMetrics, error) {
	meter := mp.Meter(meterScope)

	latency, errLatency := meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Time to serve a request"),
		metric.WithUnit("s"),
	)
	requests, errRequests := meter.Int64Counter("http.server.request.total",
		metric.WithDescription("Requests served"),
	)
	inflight, errInflight := meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("Requests in progress"),
	)

	if err := errors.Join(errLatency, errRequests, errInflight); err != nil {
		return nil, err
	}

	return &serverMetrics{latency: latency, requests: requests, inflight: inflight}, nil
}

// MetricsMiddleware records request metrics on the global meter provider.
// Spans come from Agent.Middleware.
func MetricsMiddleware() gin.HandlerFunc {
	return MetricsMiddlewareWith(otel.GetMeterProvider())
}

// MetricsMiddlewareWith records request metrics on mp. If the instruments
// cannot be created the error goes to otel.Handle and requests pass through
// unmeasured.
func MetricsMiddlewareWith(mp metric.MeterProvider) gin.HandlerFunc {
	m, err := newServerMetrics(mp)
	if err != nil {
		otel.Handle(err)

		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		began := time.Now()
		ctx := c.Request.Context()

		route := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(c.Request.Method),
			semconv.HTTPRoute(c.FullPath()),
		}

		m.inflight.Add(ctx, 1, metric.WithAttributes(route...))
		defer m.inflight.Add(ctx, -1, metric.WithAttributes(route...))

		c.Next()

		done := metric.WithAttributes(append(route, semconv.HTTPResponseStatusCode(c.Writer.Status()))...)
		m.latency.Record(ctx, time.Since(began).Seconds(), done)
		m.requests.Add(ctx, 1, done)
	}
}
