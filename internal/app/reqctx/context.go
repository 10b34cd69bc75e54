package reqctx

import "sync/atomic"

// Context is the request-scoped logical context.
//
// The correlation ID and routine are fixed at creation. The metadata value and
// the hook queue are private slots; a top-level Context additionally owns a
// lazily created scope tracker for its sub-contexts.
type Context struct {
	correlationID string
	routine       string

	info  atomic.Pointer[infoBox]
	hooks atomic.Pointer[hookQueue] // shared by reference with derived contexts
	scope atomic.Pointer[scopeTracker]
}

// infoBox is never mutated after creation, so it can be shared between a
// parent and its derived contexts.
type infoBox struct {
	value any
}

// New creates a context with an empty metadata store.
func New(correlationID, routine string) *Context {
	return &Context{
		correlationID: correlationID,
		routine:       routine,
	}
}

// Derive builds a child of parent. The child copies the parent's slots as
// they are at call time: the metadata value and the hook queue. The queue is
// shared, not copied. An empty correlationID inherits the parent's.
// The parent is never modified.
func Derive(parent *Context, correlationID, routine string) *Context {
	if correlationID == "" {
		correlationID = parent.correlationID
	}

	child := New(correlationID, routine)

	if box := parent.info.Load(); box != nil {
		child.info.Store(box)
	}

	if q := parent.hooks.Load(); q != nil {
		child.hooks.Store(q)
	}

	return child
}

// CorrelationID returns the identifier of the logical request.
func (c *Context) CorrelationID() string {
	return c.correlationID
}

// Routine returns the name of the logical operation.
func (c *Context) Routine() string {
	return c.routine
}

// Info returns the metadata value, or nil if none was set.
func (c *Context) Info() any {
	if box := c.info.Load(); box != nil {
		return box.value
	}

	return nil
}

// SetInfo replaces the metadata value. Last write wins.
func (c *Context) SetInfo(value any) {
	c.info.Store(&infoBox{value: value})
}

// HasLifecycle reports whether the context has a hook queue.
func (c *Context) HasLifecycle() bool {
	return c.hooks.Load() != nil
}

// queue returns the hook queue, or nil.
func (c *Context) queue() *hookQueue {
	return c.hooks.Load()
}

// growQueue installs q if the context has no queue yet and returns the queue
// now in place.
func (c *Context) growQueue(q *hookQueue) *hookQueue {
	if c.hooks.CompareAndSwap(nil, q) {
		return q
	}

	return c.hooks.Load()
}

// tracker returns the scope tracker, creating it on first use.
func (c *Context) tracker() *scopeTracker {
	if t := c.scope.Load(); t != nil {
		return t
	}

	c.scope.CompareAndSwap(nil, &scopeTracker{})

	return c.scope.Load()
}
