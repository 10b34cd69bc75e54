package reqctx

import (
	"context"
	"sync/atomic"
)

// scopeTracker is the propagation scope of one top-level context.
//
// The tracker pointer itself is the context.Context key under which the
// ambient sub-context is stored, so sub-contexts of one top-level context are
// invisible when resolving any other.
type scopeTracker struct {
	active atomic.Int64
}

// ambient returns the sub-context attached to ctx for this scope, or nil.
func (t *scopeTracker) ambient(ctx context.Context) *Context {
	if sub, ok := ctx.Value(t).(*Context); ok {
		return sub
	}

	return nil
}

// with returns a copy of ctx in which sub is the ambient value of this scope.
func (t *scopeTracker) with(ctx context.Context, sub *Context) context.Context {
	return context.WithValue(ctx, t, sub)
}

// Active returns the number of sub-context calls currently running.
func (t *scopeTracker) Active() int64 {
	return t.active.Load()
}
