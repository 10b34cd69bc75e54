package reqctx

// Observer receives lifecycle events for metrics collection.
// Implementations must be safe for concurrent use.
type Observer interface {
	// HooksFlushed is called after a flush pass that ran n > 0 hooks.
	HooksFlushed(routine string, n int)

	// HookFailed is called once per hook that returned an error or panicked.
	HookFailed(routine string)

	// SubContextEntered is called when SubContext starts running work.
	SubContextEntered()

	// SubContextExited is called when work returns.
	SubContextExited()
}

type noopObserver struct{}

func (noopObserver) HooksFlushed(string, int) {}
func (noopObserver) HookFailed(string)        {}
func (noopObserver) SubContextEntered()       {}
func (noopObserver) SubContextExited()        {}
