package clients

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jsamuelsen/reqctx-service/internal/adapters/http/middleware"
	"github.com/jsamuelsen/reqctx-service/internal/app/reqctx"
	"github.com/jsamuelsen/reqctx-service/internal/platform/config"
	"github.com/jsamuelsen/reqctx-service/internal/platform/telemetry"
)

type staticScope struct {
	correlationID string
	routine       string
}

func (s staticScope) CorrelationID(context.Context) string { return s.correlationID }
func (s staticScope) Routine(context.Context) string       { return s.routine }

func ledgerConfig(baseURL string) *Config {
	return &Config{
		BaseURL:     baseURL,
		ServiceName: "ledger",
		Timeout:     5 * time.Second,
		Retry:       config.RetryConfig{MaxAttempts: 3, InitialInterval: 10 * time.Millisecond, MaxInterval: 50 * time.Millisecond},
		Circuit:     config.CircuitBreakerConfig{MaxFailures: 5, Timeout: time.Second, HalfOpenLimit: 1},
		Scope:       staticScope{correlationID: "corr-1", routine: "GET /orders"},
	}
}

// countingServer answers every request with status and counts the hits.
func countingServer(t *testing.T, status func(hit int32) int) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status(hits.Add(1)))
	}))
	t.Cleanup(srv.Close)

	return srv, &hits
}

func mustNew(t *testing.T, cfg *Config) *Client {
	t.Helper()

	c, err := New(cfg)
	require.NoError(t, err)

	return c
}

func TestNew_Rejects(t *testing.T) {
	noName := ledgerConfig("")
	noName.ServiceName = ""

	noScope := ledgerConfig("")
	noScope.Scope = nil

	for want, cfg := range map[string]*Config{
		"config is required":             nil,
		"service name is required":       noName,
		"correlation source is required": noScope,
	} {
		_, err := New(cfg)
		assert.EqualError(t, err, want)
	}
}

func TestNew_Defaults(t *testing.T) {
	cfg := ledgerConfig("https://ledger.internal/")
	cfg.Timeout = 0
	cfg.Retry.MaxAttempts = 0

	c := mustNew(t, cfg)

	assert.Equal(t, "https://ledger.internal", c.base)
	assert.Equal(t, defaultAttemptTimeout, c.hc.Timeout)
	assert.Equal(t, 1, c.retryCfg.MaxAttempts)
	assert.Equal(t, DefaultHealthPath, c.healthPath)
	assert.Equal(t, "ledger", c.Name())
	assert.Equal(t, gobreaker.StateClosed, c.CircuitState())
}

func TestClient_StampsHeaders(t *testing.T) {
	var got http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	cfg := ledgerConfig(srv.URL)
	cfg.TracerProvider = tp
	cfg.Propagator = propagation.TraceContext{}

	ctx, span := tp.Tracer("test").Start(context.Background(), "parent")
	defer span.End()

	resp, err := mustNew(t, cfg).Get(ctx, "sync")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, "corr-1", got.Get(middleware.HeaderCorrelationID))
	assert.Equal(t, "GET /orders", got.Get(HeaderRoutine))
	assert.Contains(t, got.Get("traceparent"), span.SpanContext().TraceID().String())
}

func TestClient_CarriesSubContextRoutine(t *testing.T) {
	var routine, correlationID string

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		routine = r.Header.Get(HeaderRoutine)
		correlationID = r.Header.Get(middleware.HeaderCorrelationID)
	}))
	defer srv.Close()

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	agent := telemetry.NewAgent(tp)
	provider := reqctx.NewProvider(agent, nil)

	cfg := ledgerConfig(srv.URL)
	cfg.Scope = provider
	cfg.TracerProvider = tp
	c := mustNew(t, cfg)

	ctx, txn := agent.StartTransaction(context.Background(), "POST /api/v1/routines")
	defer txn.End()

	err := provider.SubContext(ctx, "ledger-sync", func(ctx context.Context) error {
		resp, err := c.Get(ctx, "/sync")
		if err != nil {
			return err
		}

		return resp.Body.Close()
	})
	require.NoError(t, err)

	assert.Equal(t, "ledger-sync", routine)
	assert.Equal(t, provider.CorrelationID(ctx), correlationID)
}

func TestClient_Retries(t *testing.T) {
	t.Run("5xx until success", func(t *testing.T) {
		srv, hits := countingServer(t, func(hit int32) int {
			if hit < 3 {
				return http.StatusInternalServerError
			}

			return http.StatusOK
		})

		resp, err := mustNew(t, ledgerConfig(srv.URL)).Get(context.Background(), "/")
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("4xx returned at once", func(t *testing.T) {
		srv, hits := countingServer(t, func(int32) int { return http.StatusNotFound })

		resp, err := mustNew(t, ledgerConfig(srv.URL)).Get(context.Background(), "/missing")
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("exhausted", func(t *testing.T) {
		srv, hits := countingServer(t, func(int32) int { return http.StatusBadGateway })

		resp, err := mustNew(t, ledgerConfig(srv.URL)).Get(context.Background(), "/")
		assert.Nil(t, resp) //nolint:bodyclose // nil on error
		require.ErrorIs(t, err, ErrMaxRetriesExceeded)

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
		assert.Equal(t, int32(3), hits.Load())
	})
}

func TestClient_RetriesAttemptTimeout(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			select {
			case <-time.After(300 * time.Millisecond):
			case <-r.Context().Done():
			}

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	cfg := ledgerConfig(srv.URL)
	cfg.Timeout = 100 * time.Millisecond
	c := mustNew(t, cfg)

	resp, err := c.Get(context.Background(), "/slow-once")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, gobreaker.StateClosed, c.CircuitState())
}

func TestClient_CircuitOpens(t *testing.T) {
	srv, hits := countingServer(t, func(int32) int { return http.StatusServiceUnavailable })

	cfg := ledgerConfig(srv.URL)
	cfg.Retry.MaxAttempts = 1
	cfg.Circuit.MaxFailures = 2
	cfg.Circuit.Timeout = time.Minute
	c := mustNew(t, cfg)

	for range 2 {
		_, err := c.Get(context.Background(), "/") //nolint:bodyclose // nil on error
		require.ErrorIs(t, err, ErrMaxRetriesExceeded)
	}

	assert.Equal(t, gobreaker.StateOpen, c.CircuitState())

	_, err := c.Get(context.Background(), "/") //nolint:bodyclose // nil on error
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load(), "open circuit blocks the call")
}

func TestClient_CanceledCallerKeepsCircuitClosed(t *testing.T) {
	srv, _ := countingServer(t, func(int32) int { return http.StatusOK })
	c := mustNew(t, ledgerConfig(srv.URL))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "/") //nolint:bodyclose // nil on error
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, gobreaker.StateClosed, c.CircuitState())
}

func TestClient_Check(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultHealthPath {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	require.NoError(t, mustNew(t, ledgerConfig(srv.URL)).Check(context.Background()))

	cfg := ledgerConfig(srv.URL)
	cfg.HealthPath = "/healthz"

	assert.EqualError(t, mustNew(t, cfg).Check(context.Background()), "/healthz returned 404")
}

func TestTransient(t *testing.T) {
	live := context.Background()

	canceled, cancel := context.WithCancel(live)
	cancel()

	attemptTimeout := &url.Error{Op: "Get", URL: "http://ledger", Err: timeoutErr{}}
	refused := &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}

	assert.False(t, transient(live, nil))
	assert.False(t, transient(live, errors.New("boom")))
	assert.True(t, transient(live, refused))
	assert.True(t, transient(live, attemptTimeout))
	assert.False(t, transient(canceled, refused), "caller gave up")
	assert.False(t, transient(canceled, attemptTimeout))
}

// timeoutErr looks like http.Client's per-attempt timeout: a net.Error that
// also matches context.DeadlineExceeded.
type timeoutErr struct{}

func (timeoutErr) Error() string {
	return "context deadline exceeded (Client.Timeout exceeded while awaiting headers)"
}

func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func (timeoutErr) Is(target error) bool {
	return target == context.DeadlineExceeded
}
