package reqctx

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jsamuelsen/reqctx-service/internal/ports"
)

// fakeTxn is an in-memory ports.Transaction.
type fakeTxn struct {
	name        atomic.Value
	traceID     string
	traceparent string

	mu       sync.Mutex
	end      func()
	wraps    int
	endCalls atomic.Int32

	values sync.Map
}

func newFakeTxn(name, traceID string) *fakeTxn {
	t := &fakeTxn{traceID: traceID}
	t.name.Store(name)
	t.end = func() { t.endCalls.Add(1) }

	return t
}

func (t *fakeTxn) Name() string        { return t.name.Load().(string) }
func (t *fakeTxn) TraceID() string     { return t.traceID }
func (t *fakeTxn) Traceparent() string { return t.traceparent }

func (t *fakeTxn) SetName(name string) { t.name.Store(name) }

func (t *fakeTxn) WrapEnd(wrap func(end func()) func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.end = wrap(t.end)
	t.wraps++
}

func (t *fakeTxn) Load(key any) (any, bool) {
	return t.values.Load(key)
}

func (t *fakeTxn) LoadOrStore(key, value any) (any, bool) {
	return t.values.LoadOrStore(key, value)
}

func (t *fakeTxn) End() {
	t.mu.Lock()
	end := t.end
	t.mu.Unlock()

	end()
}

func (t *fakeTxn) Wraps() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.wraps
}

type txnKey struct{}

// fakeSource resolves the transaction stored by withTxn.
type fakeSource struct{}

func (fakeSource) CurrentTransaction(ctx context.Context) ports.Transaction {
	if txn, ok := ctx.Value(txnKey{}).(*fakeTxn); ok {
		return txn
	}

	return nil
}

func withTxn(ctx context.Context, txn *fakeTxn) context.Context {
	return context.WithValue(ctx, txnKey{}, txn)
}

// hookErrors collects reported hook failures.
type hookErrors struct {
	mu   sync.Mutex
	errs []*HookError
}

func (h *hookErrors) handle(herr *HookError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.errs = append(h.errs, herr)
}

func (h *hookErrors) all() []*HookError {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*HookError, len(h.errs))
	copy(out, h.errs)

	return out
}

// countingObserver records Observer callbacks.
type countingObserver struct {
	flushed atomic.Int64
	failed  atomic.Int64
	entered atomic.Int64
	exited  atomic.Int64
}

func (o *countingObserver) HooksFlushed(_ string, n int) { o.flushed.Add(int64(n)) }
func (o *countingObserver) HookFailed(string)            { o.failed.Add(1) }
func (o *countingObserver) SubContextEntered()           { o.entered.Add(1) }
func (o *countingObserver) SubContextExited()            { o.exited.Add(1) }

// recorder appends the routine names hooks are invoked with.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) hook(label string) EndHook {
	return func(routine string) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		r.calls = append(r.calls, label+"@"+routine)

		return nil
	}
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.calls))
	copy(out, r.calls)

	return out
}
