// Package reqctx provides request-scoped context tracking bound to the
// lifecycle of a distributed-tracing transaction.
//
// A Context carries a correlation ID, a routine name and a metadata value.
// The Provider resolves "the current context" for a context.Context:
//
//   - no active transaction: the provider's root context
//   - active transaction: a top-level Context memoized on the transaction,
//     created the first time the transaction is seen
//   - inside SubContext: the innermost sub-context derived for that call chain
//
// # End-of-transaction hooks
//
// When a top-level context is first materialized the provider wraps the
// transaction's completion entry point. After the original completion logic
// runs, every hook registered with OnContextEnd fires exactly once, in
// registration order. A failing hook (returned error or panic) is reported and
// never stops the remaining hooks:
//
//	p := reqctx.NewProvider(agent, &reqctx.Config{Logger: logger})
//
//	_ = p.OnContextEnd(ctx, func(routine string) error {
//	    logger.Info("request finished", slog.String("routine", routine))
//	    return nil
//	})
//
// # Sub-contexts
//
// SubContext derives a child from whatever context is currently ambient and
// runs work with the child attached to the context.Context it receives.
// Goroutines started from that context observe the child; the caller and
// sibling call chains do not:
//
//	err := p.SubContext(ctx, "load-profile", func(ctx context.Context) error {
//	    p.SetContextInfo(ctx, map[string]any{"user_id": id})
//	    return loadProfile(ctx, id)
//	})
//
// A child starts with a snapshot of the parent's metadata. Replacing the
// metadata on either side does not affect the other. The hook queue is shared,
// so hooks registered inside a sub-context still run when the owning
// transaction ends.
package reqctx
