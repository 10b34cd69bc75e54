package ports

import "context"

// Transaction is the view of a distributed-tracing transaction that the
// request context layer depends on. The tracing adapter owns the transaction;
// this port only exposes what is needed to key a request context to it and to
// observe its end.
type Transaction interface {
	// Name returns the human-readable transaction name (e.g. "GET /api/v1/context").
	// It is read at flush time, so adapters may allow it to change while the
	// transaction is running.
	Name() string

	// TraceID returns the hex trace identifier, or "" when the transaction
	// carries no valid trace identity.
	TraceID() string

	// Traceparent returns the W3C traceparent header value for the
	// transaction, or "" when it cannot be produced.
	Traceparent() string

	// WrapEnd replaces the transaction's completion entry point with the
	// function returned by wrap. The argument passed to wrap is the current
	// entry point. Callers must wrap at most once per transaction.
	WrapEnd(wrap func(end func()) func())

	// Load returns the value attached under key, if any.
	Load(key any) (value any, ok bool)

	// LoadOrStore attaches an opaque value to this transaction instance for
	// its lifetime. If a value is already stored under key it is returned
	// with loaded set to true and value is discarded.
	LoadOrStore(key, value any) (actual any, loaded bool)
}

// TransactionSource resolves the transaction active for a context.
type TransactionSource interface {
	// CurrentTransaction returns the active transaction, or nil when ctx is
	// not part of one.
	CurrentTransaction(ctx context.Context) Transaction
}
