package telemetry

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/reqctx-service/internal/platform/logging"
	"github.com/jsamuelsen/reqctx-service/internal/ports"
)

const agentInstrumentationName = "github.com/jsamuelsen/reqctx-service/telemetry/agent"

// TraceIDHeader carries the trace ID back to the caller.
const TraceIDHeader = "X-Trace-ID"

// Agent starts transactions as OpenTelemetry server spans and resolves the
// transaction active in a context. It implements ports.TransactionSource.
type Agent struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithPropagator overrides the propagator used to extract inbound trace context.
func WithPropagator(p propagation.TextMapPropagator) AgentOption {
	return func(a *Agent) {
		a.propagator = p
	}
}

// NewAgent creates an agent whose spans come from tp.
func NewAgent(tp trace.TracerProvider, opts ...AgentOption) *Agent {
	a := &Agent{
		tracer: tp.Tracer(agentInstrumentationName),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

type txnKey struct{}

// StartTransaction starts a server span named name and returns a ctx carrying
// both the span and the transaction.
func (a *Agent) StartTransaction(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, *Transaction) {
	opts = append([]trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindServer)}, opts...)
	ctx, span := a.tracer.Start(ctx, name, opts...)

	txn := newTransaction(name, span)

	return context.WithValue(ctx, txnKey{}, txn), txn
}

// CurrentTransaction returns the transaction carried by ctx, or nil.
func (a *Agent) CurrentTransaction(ctx context.Context) ports.Transaction {
	if txn := TransactionFromContext(ctx); txn != nil {
		return txn
	}

	return nil
}

// TransactionFromContext returns the transaction carried by ctx, or nil.
func TransactionFromContext(ctx context.Context) *Transaction {
	if ctx == nil {
		return nil
	}

	txn, _ := ctx.Value(txnKey{}).(*Transaction)

	return txn
}

// Middleware returns Gin middleware that runs every request inside a
// transaction named "METHOD route". Inbound W3C trace context is honored.
// The transaction ends after the rest of the chain returns or panics.
func (a *Agent) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := a.propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(c.Request.Method),
			semconv.URLPath(c.Request.URL.Path),
		}

		if route != "" {
			attrs = append(attrs, semconv.HTTPRoute(route))
		}

		ctx, txn := a.StartTransaction(ctx, TransactionName(c.Request.Method, route), trace.WithAttributes(attrs...))
		defer txn.End()

		if id := txn.TraceID(); id != "" {
			ctx = logging.WithTraceID(ctx, id)
			c.Header(TraceIDHeader, id)
		}

		c.Request = c.Request.WithContext(ctx)

		c.Next()

		txn.SetStatus(c.Writer.Status())
	}
}

// TransactionName builds the transaction name for an HTTP request.
// Unmatched routes are named by method alone.
func TransactionName(method, route string) string {
	if route == "" {
		return method
	}

	return method + " " + route
}

// Transaction is a tracing transaction backed by an OpenTelemetry span.
// It implements ports.Transaction.
type Transaction struct {
	span trace.Span
	name atomic.Pointer[string]

	mu  sync.Mutex
	end func()

	ended  atomic.Bool
	values sync.Map
}

func newTransaction(name string, span trace.Span) *Transaction {
	t := &Transaction{span: span}
	t.name.Store(&name)
	t.end = t.finish

	return t
}

// finish is the original completion logic. The span ends once no matter how
// often End is called.
func (t *Transaction) finish() {
	if t.ended.CompareAndSwap(false, true) {
		t.span.End()
	}
}

// Name returns the current transaction name.
func (t *Transaction) Name() string {
	return *t.name.Load()
}

// SetName renames the transaction and its span.
func (t *Transaction) SetName(name string) {
	t.name.Store(&name)
	t.span.SetName(name)
}

// TraceID returns the hex trace ID, or "" when the span has no valid context.
func (t *Transaction) TraceID() string {
	sc := t.span.SpanContext()
	if !sc.HasTraceID() {
		return ""
	}

	return sc.TraceID().String()
}

// Traceparent returns the W3C traceparent header value for the span, or "".
func (t *Transaction) Traceparent() string {
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(trace.ContextWithSpan(context.Background(), t.span), carrier)

	return carrier.Get("traceparent")
}

// Span returns the underlying span.
func (t *Transaction) Span() trace.Span {
	return t.span
}

// SetStatus records the HTTP response status on the span. 5xx marks the span
// as failed.
func (t *Transaction) SetStatus(code int) {
	t.span.SetAttributes(semconv.HTTPResponseStatusCode(code))

	if code >= http.StatusInternalServerError {
		t.span.SetStatus(codes.Error, http.StatusText(code))
	}
}

// Ended reports whether the span has been ended.
func (t *Transaction) Ended() bool {
	return t.ended.Load()
}

// WrapEnd replaces the completion entry point with wrap(current).
func (t *Transaction) WrapEnd(wrap func(end func()) func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.end = wrap(t.end)
}

// Load returns the value stored in the transaction slot under key.
func (t *Transaction) Load(key any) (any, bool) {
	return t.values.Load(key)
}

// LoadOrStore returns the existing value under key if present. Otherwise it
// stores value and returns it.
func (t *Transaction) LoadOrStore(key, value any) (any, bool) {
	return t.values.LoadOrStore(key, value)
}

// End runs the completion entry point, including anything wrapped around it.
func (t *Transaction) End() {
	t.mu.Lock()
	end := t.end
	t.mu.Unlock()

	end()
}
