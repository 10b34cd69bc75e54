package clients

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/reqctx-service/internal/adapters/http/middleware"
	"github.com/jsamuelsen/reqctx-service/internal/platform/config"
	"github.com/jsamuelsen/reqctx-service/internal/platform/logging"
)

const (
	scopeName = "github.com/jsamuelsen/reqctx-service/internal/adapters/clients"

	// HeaderRoutine carries the caller's routine name to the downstream service.
	HeaderRoutine = "X-Routine"

	// DefaultHealthPath is probed by Check.
	DefaultHealthPath = "/-/live"

	defaultAttemptTimeout = 30 * time.Second
)

// CorrelationSource resolves the request context of a ctx.
// reqctx.Provider satisfies it.
type CorrelationSource interface {
	CorrelationID(ctx context.Context) string
	Routine(ctx context.Context) string
}

// Config describes one downstream service. Only ServiceName and Scope are
// required.
type Config struct {
	// BaseURL is prefixed to every path passed to Get.
	BaseURL string

	// ServiceName names the downstream in logs, spans and breaker events.
	ServiceName string

	// Timeout bounds a single attempt, not the whole call.
	Timeout time.Duration

	Retry   config.RetryConfig
	Circuit config.CircuitBreakerConfig

	// Scope supplies the correlation ID and routine stamped on every request.
	Scope CorrelationSource

	// HealthPath is what Check probes. Defaults to DefaultHealthPath.
	HealthPath string

	TracerProvider trace.TracerProvider
	Propagator     propagation.TextMapPropagator

	// Transport replaces the pooled default transport.
	Transport http.RoundTripper

	Logger *slog.Logger
}

// Client calls one downstream service on behalf of a request. Every call
// carries the caller's correlation ID, routine name and W3C trace context,
// and runs through retry and a circuit breaker.
type Client struct {
	hc         *http.Client
	base       string
	name       string
	healthPath string
	retryCfg   config.RetryConfig
	scope      CorrelationSource
	log        *slog.Logger
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	propagator propagation.TextMapPropagator
	tracer     trace.Tracer

	latency metric.Float64Histogram
	calls   metric.Int64Counter
}

// New validates cfg and builds a Client, filling unset fields with defaults.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	if cfg.ServiceName == "" {
		return nil, errors.New("service name is required")
	}

	if cfg.Scope == nil {
		return nil, errors.New("correlation source is required")
	}

	c := &Client{
		base:       strings.TrimSuffix(cfg.BaseURL, "/"),
		name:       cfg.ServiceName,
		healthPath: cmp.Or(cfg.HealthPath, DefaultHealthPath),
		retryCfg:   cfg.Retry,
		scope:      cfg.Scope,
		propagator: cfg.Propagator,
	}

	c.retryCfg.MaxAttempts = max(c.retryCfg.MaxAttempts, 1)

	if c.propagator == nil {
		c.propagator = otel.GetTextMapPropagator()
	}

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	c.tracer = tp.Tracer(scopeName)

	c.log = cmp.Or(cfg.Logger, slog.Default()).With(
		slog.String("component", "clients.Client"),
		slog.String("downstream", cfg.ServiceName),
	)

	if err := c.initMetrics(); err != nil {
		return nil, err
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{MaxIdleConns: 100, MaxIdleConnsPerHost: 10, IdleConnTimeout: 90 * time.Second}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}

	c.hc = &http.Client{Timeout: timeout, Transport: transport}
	c.breaker = newBreaker(cfg.ServiceName, cfg.Circuit, c.log)

	return c, nil
}

func (c *Client) initMetrics() error {
	meter := otel.Meter(scopeName)

	var err error

	c.latency, err = meter.Float64Histogram("http.client.request.duration",
		metric.WithDescription("Downstream call latency including retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("registering latency histogram: %w", err)
	}

	c.calls, err = meter.Int64Counter("http.client.request.total",
		metric.WithDescription("Downstream calls by outcome"),
	)
	if err != nil {
		return fmt.Errorf("registering call counter: %w", err)
	}

	return nil
}

// newBreaker builds the circuit breaker guarding every call. A zero
// MaxFailures never trips.
func newBreaker(name string, cfg config.CircuitBreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[*http.Response] {
	maxRequests := uint32(1)
	if cfg.HalfOpenLimit > 0 {
		maxRequests = uint32(cfg.HalfOpenLimit) //nolint:gosec // validated by config
	}

	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.MaxFailures > 0 && counts.ConsecutiveFailures >= uint32(cfg.MaxFailures) //nolint:gosec // validated by config
		},
		IsSuccessful: func(err error) bool {
			// The caller giving up says nothing about the downstream.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logger.Warn("breaker transition", slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
}

// Do sends req. Transport errors and 5xx responses are retried; any other
// response goes back to the caller, who must close its body. A request with a
// body is only replayed when req.GetBody is set.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	began := time.Now()
	logger := logging.FromContext(ctx).With(
		slog.String("downstream", c.name),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
	)

	ctx, span := c.tracer.Start(ctx, req.Method+" "+c.name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.URLFull(req.URL.String()),
			semconv.PeerService(c.name),
		),
	)
	defer span.End()

	req.Header.Set(middleware.HeaderCorrelationID, c.scope.CorrelationID(ctx))
	req.Header.Set(HeaderRoutine, c.scope.Routine(ctx))
	c.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.attempts(ctx, req, logger)
	})

	return c.finish(ctx, req.Method, resp, err, span, logger, time.Since(began))
}

// attempts sends req until it succeeds, fails for good, or runs out of tries.
func (c *Client) attempts(ctx context.Context, req *http.Request, logger *slog.Logger) (*http.Response, error) {
	attempt := 0
	jitter := max(c.retryCfg.InitialInterval/2, time.Millisecond)

	return retry.NewWithData[*http.Response](
		retry.Context(ctx),
		retry.Attempts(uint(c.retryCfg.MaxAttempts)), //nolint:gosec // at least 1
		retry.Delay(c.retryCfg.InitialInterval),
		retry.MaxDelay(c.retryCfg.MaxInterval),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(jitter),
		retry.LastErrorOnly(true),
		retry.RetryIf(retry.IsRecoverable),
		retry.OnRetry(func(n uint, err error) {
			logger.DebugContext(ctx, "retrying", slog.Uint64("attempt", uint64(n)+1), slog.Any("error", err))
		}),
	).Do(func() (*http.Response, error) {
		attempt++

		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, retry.Unrecoverable(fmt.Errorf("rewinding request body: %w", err))
			}

			req.Body = body
		}

		resp, err := c.hc.Do(req.WithContext(ctx))
		switch {
		case err != nil && transient(ctx, err):
			return nil, err
		case err != nil:
			return nil, retry.Unrecoverable(err)
		case resp.StatusCode >= http.StatusInternalServerError:
			_ = resp.Body.Close()

			return nil, &StatusError{StatusCode: resp.StatusCode}
		default:
			return resp, nil
		}
	})
}

// finish settles a call on its span, metrics and log.
func (c *Client) finish(
	ctx context.Context,
	method string,
	resp *http.Response,
	err error,
	span trace.Span,
	logger *slog.Logger,
	took time.Duration,
) (*http.Response, error) {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		span.SetStatus(codes.Error, "circuit open")
		c.observe(ctx, method, 0, took, "circuit_open")
		logger.WarnContext(ctx, "call rejected, circuit open")

		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, c.name)
	case err != nil:
		span.SetStatus(codes.Error, err.Error())
		c.observe(ctx, method, 0, took, "error")
		logger.ErrorContext(ctx, "call failed", slog.Duration("duration", took), slog.Any("error", err))

		return nil, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err)
	}

	span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, resp.Status)
	}

	c.observe(ctx, method, resp.StatusCode, took, strconv.Itoa(resp.StatusCode/100)+"xx")
	logger.DebugContext(ctx, "call done", slog.Int("status", resp.StatusCode), slog.Duration("duration", took))

	return resp, nil
}

// Get sends a GET for path relative to the base URL.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/"+strings.TrimPrefix(path, "/"), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	return c.Do(ctx, req)
}

// Name identifies the downstream in readiness responses.
func (c *Client) Name() string {
	return c.name
}

// Check probes the downstream's health path. The probe carries the
// correlation ID of ctx like any other call.
func (c *Client) Check(ctx context.Context) error {
	resp, err := c.Get(ctx, c.healthPath)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", c.healthPath, resp.StatusCode)
	}

	return nil
}

// CircuitState reports the breaker state.
func (c *Client) CircuitState() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) observe(ctx context.Context, method string, status int, took time.Duration, result string) {
	attrs := []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(method),
		semconv.PeerService(c.name),
		attribute.String("result", result),
	}
	if status > 0 {
		attrs = append(attrs, semconv.HTTPResponseStatusCode(status))
	}

	opt := metric.WithAttributes(attrs...)
	c.latency.Record(ctx, took.Seconds(), opt)
	c.calls.Add(ctx, 1, opt)
}

// transient reports whether a transport error is worth another attempt.
// The decision rests on the caller's ctx: once it is done nothing is retried.
// A per-attempt timeout from http.Client also wraps context.DeadlineExceeded,
// so the error chain alone cannot tell the two apart.
func transient(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError

	return errors.As(err, &opErr)
}
