package reqctx

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jsamuelsen/reqctx-service/internal/ports"
)

// DefaultRootRoutine is the correlation ID and routine of the root context.
const DefaultRootRoutine = "root"

// Config holds optional provider settings. A nil Config uses the defaults.
type Config struct {
	// StrictLifecycle makes OnContextEnd and Flush return
	// ErrLifecycleNotInstalled for contexts that were never bound to a
	// transaction (the root context, or sub-contexts derived from it).
	// When false, OnContextEnd grows a queue on demand and Flush on a context
	// without a queue is a no-op.
	StrictLifecycle bool

	// RootRoutine overrides the root context's correlation ID and routine.
	RootRoutine string

	// KeepHookStack captures the goroutine stack when a hook panics.
	KeepHookStack bool

	// Logger reports hook failures when ErrorHandler is nil.
	Logger *slog.Logger

	// ErrorHandler receives every hook failure. Defaults to logging at ERROR.
	ErrorHandler func(*HookError)

	// Observer receives lifecycle events. Defaults to a no-op.
	Observer Observer
}

// Provider resolves the current request context and exposes accessors for it.
// It is safe for concurrent use.
type Provider struct {
	source   ports.TransactionSource
	root     *Context
	strict   bool
	stack    bool
	logger   *slog.Logger
	onError  func(*HookError)
	observer Observer
}

// memoKey is the per-provider key under which the top-level context is
// attached to a transaction.
type memoKey struct {
	p *Provider
}

// NewProvider creates a provider resolving transactions through source.
// A nil source means no transaction is ever active.
func NewProvider(source ports.TransactionSource, cfg *Config) *Provider {
	if cfg == nil {
		cfg = &Config{}
	}

	rootRoutine := cfg.RootRoutine
	if rootRoutine == "" {
		rootRoutine = DefaultRootRoutine
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	observer := cfg.Observer
	if observer == nil {
		observer = noopObserver{}
	}

	p := &Provider{
		source:   source,
		root:     New(rootRoutine, rootRoutine),
		strict:   cfg.StrictLifecycle,
		stack:    cfg.KeepHookStack,
		logger:   logger.With(slog.String("component", "reqctx.Provider")),
		onError:  cfg.ErrorHandler,
		observer: observer,
	}

	if p.onError == nil {
		p.onError = p.logHookError
	}

	return p
}

// Root returns the process-wide root context.
func (p *Provider) Root() *Context {
	return p.root
}

// Current resolves the context for ctx. It never fails: without an active
// transaction the root context is returned. Inside SubContext the innermost
// sub-context wins over the top-level context.
func (p *Provider) Current(ctx context.Context) *Context {
	top := p.topLevel(ctx)

	if ctx == nil {
		return top
	}

	if t := top.scope.Load(); t != nil {
		if sub := t.ambient(ctx); sub != nil {
			return sub
		}
	}

	return top
}

// CorrelationID returns the correlation ID of the current context.
func (p *Provider) CorrelationID(ctx context.Context) string {
	return p.Current(ctx).CorrelationID()
}

// Routine returns the routine name of the current context.
func (p *Provider) Routine(ctx context.Context) string {
	return p.Current(ctx).Routine()
}

// ContextInfo returns the metadata of the current context, or nil.
func (p *Provider) ContextInfo(ctx context.Context) any {
	return p.Current(ctx).Info()
}

// SetContextInfo replaces the metadata of the current context.
// Concurrent writers on the same context race; last write wins.
func (p *Provider) SetContextInfo(ctx context.Context, value any) {
	p.Current(ctx).SetInfo(value)
}

// OnContextEnd registers hook on the current context. Hooks registered inside
// a sub-context share the top-level context's queue, so they run when the
// owning transaction ends or when the top-level context is flushed.
func (p *Provider) OnContextEnd(ctx context.Context, hook EndHook) error {
	if hook == nil {
		return ErrNilHook
	}

	c, q := p.queueFor(ctx)
	if q == nil {
		if p.strict {
			return fmt.Errorf("registering end hook on routine %q: %w", c.Routine(), ErrLifecycleNotInstalled)
		}

		top := p.topLevel(ctx)
		q = top.growQueue(p.newQueue(staticName(top.Routine())))
	}

	q.push(hook)

	return nil
}

// Flush runs the hooks pending on the current context now. Hooks registered
// afterwards still run when the transaction ends.
func (p *Provider) Flush(ctx context.Context) error {
	c, q := p.queueFor(ctx)
	if q == nil {
		if p.strict {
			return fmt.Errorf("flushing routine %q: %w", c.Routine(), ErrLifecycleNotInstalled)
		}

		return nil
	}

	q.flush()

	return nil
}

// PendingHooks returns the number of hooks waiting on the current context's queue.
func (p *Provider) PendingHooks(ctx context.Context) int {
	if _, q := p.queueFor(ctx); q != nil {
		return q.pending()
	}

	return 0
}

// queueFor resolves the current context and its hook queue. A sub-context
// derived before its top-level context grew a queue holds none of its own and
// uses the top-level one. q is nil when neither has a queue.
func (p *Provider) queueFor(ctx context.Context) (c *Context, q *hookQueue) {
	c = p.Current(ctx)
	if q = c.queue(); q != nil {
		return c, q
	}

	return c, p.topLevel(ctx).queue()
}

// ActiveSubContexts returns how many SubContext calls are running under the
// top-level context resolved for ctx.
func (p *Provider) ActiveSubContexts(ctx context.Context) int64 {
	if t := p.topLevel(ctx).scope.Load(); t != nil {
		return t.Active()
	}

	return 0
}

// SubContext derives a sub-context named routine from the context currently
// ambient in ctx and runs work with it attached. The derived context is what
// Current resolves for the ctx passed to work and for anything started from
// it. Work's error is returned unchanged.
func (p *Provider) SubContext(ctx context.Context, routine string, work func(ctx context.Context) error) error {
	if routine == "" {
		return ErrEmptyRoutine
	}

	if work == nil {
		return ErrNilWork
	}

	if ctx == nil {
		ctx = context.Background()
	}

	top := p.topLevel(ctx)
	tracker := top.tracker()

	parent := tracker.ambient(ctx)
	if parent == nil {
		parent = top
	}

	sub := Derive(parent, "", routine)

	tracker.active.Add(1)
	p.observer.SubContextEntered()

	defer func() {
		tracker.active.Add(-1)
		p.observer.SubContextExited()
	}()

	return work(tracker.with(ctx, sub))
}

// HealthCheck runs a sub-context round trip under ctx and reports an error
// when the derived context is not what resolution returns inside it.
func (p *Provider) HealthCheck(ctx context.Context) error {
	const probe = "healthcheck"

	return p.SubContext(ctx, probe, func(sub context.Context) error {
		if got := p.Routine(sub); got != probe {
			return fmt.Errorf("sub-context resolved routine %q, want %q", got, probe)
		}

		return sub.Err()
	})
}

// topLevel resolves the transaction-bound context for ctx, materializing it
// on first sight. Without a transaction it returns the root context.
func (p *Provider) topLevel(ctx context.Context) *Context {
	if ctx == nil || p.source == nil {
		return p.root
	}

	txn := p.source.CurrentTransaction(ctx)
	if txn == nil {
		return p.root
	}

	key := memoKey{p: p}

	if v, ok := txn.Load(key); ok {
		if c, ok := v.(*Context); ok {
			return c
		}
	}

	return p.materialize(txn, key)
}

// materialize creates the top-level context for txn. The queue is installed
// before the context is published so no caller can observe it without one;
// only the goroutine that wins the store wraps the completion entry point.
func (p *Provider) materialize(txn ports.Transaction, key memoKey) *Context {
	candidate := New(correlationFor(txn), txn.Name())
	q := p.newQueue(txn.Name)
	candidate.hooks.Store(q)

	actual, loaded := txn.LoadOrStore(key, candidate)
	if loaded {
		if c, ok := actual.(*Context); ok {
			return c
		}

		return candidate
	}

	intercept(txn, q)

	return candidate
}

func (p *Provider) newQueue(name func() string) *hookQueue {
	return &hookQueue{
		name:      name,
		onError:   p.onError,
		observer:  p.observer,
		keepStack: p.stack,
	}
}

func (p *Provider) logHookError(herr *HookError) {
	attrs := []any{
		slog.String("routine", herr.Routine),
		slog.Int("index", herr.Index),
		slog.String("error", herr.Error()),
	}

	if len(herr.Stack) > 0 {
		attrs = append(attrs, slog.String("stack", string(herr.Stack)))
	}

	p.logger.Error("context end hook failed", attrs...)
}

// correlationFor prefers the W3C traceparent, then the bare trace ID. A
// transaction without trace identity gets a random UUID.
func correlationFor(txn ports.Transaction) string {
	if tp := txn.Traceparent(); tp != "" {
		return tp
	}

	if id := txn.TraceID(); id != "" {
		return id
	}

	return uuid.NewString()
}

func staticName(name string) func() string {
	return func() string { return name }
}
