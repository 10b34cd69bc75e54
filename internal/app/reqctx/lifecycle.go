package reqctx

import (
	"runtime/debug"
	"sync"

	"github.com/jsamuelsen/reqctx-service/internal/ports"
)

// EndHook is called when the context it was registered on ends.
// The argument is the routine name of the owning transaction at flush time.
// A returned error or a panic is reported and never propagated.
type EndHook func(routine string) error

// hookQueue holds pending end hooks together with what flush needs:
// the routine name source and where to report failures.
type hookQueue struct {
	mu    sync.Mutex
	hooks []EndHook

	name      func() string
	onError   func(*HookError)
	observer  Observer
	keepStack bool
}

func (q *hookQueue) push(hook EndHook) {
	q.mu.Lock()
	q.hooks = append(q.hooks, hook)
	q.mu.Unlock()
}

// drain swaps the pending hooks for an empty queue. Hooks pushed after drain
// returns belong to the next flush.
func (q *hookQueue) drain() []EndHook {
	q.mu.Lock()
	defer q.mu.Unlock()

	hooks := q.hooks
	q.hooks = nil

	return hooks
}

// pending returns the number of hooks waiting for the next flush.
func (q *hookQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.hooks)
}

// flush invokes the hooks drained at call time in registration order and
// returns how many ran.
func (q *hookQueue) flush() int {
	hooks := q.drain()
	if len(hooks) == 0 {
		return 0
	}

	routine := q.name()

	for i, hook := range hooks {
		if herr := q.invoke(i, routine, hook); herr != nil {
			q.observer.HookFailed(routine)
			q.onError(herr)
		}
	}

	q.observer.HooksFlushed(routine, len(hooks))

	return len(hooks)
}

func (q *hookQueue) invoke(index int, routine string, hook EndHook) (herr *HookError) {
	defer func() {
		if r := recover(); r != nil {
			herr = &HookError{Routine: routine, Index: index, Panic: r}
			if q.keepStack {
				herr.Stack = debug.Stack()
			}
		}
	}()

	if err := hook(routine); err != nil {
		return &HookError{Routine: routine, Index: index, Err: err}
	}

	return nil
}

// intercept wraps the transaction's completion entry point so the original
// completion logic runs first and the queue is flushed afterwards.
// Ending the transaction again only flushes hooks registered since.
func intercept(txn ports.Transaction, q *hookQueue) {
	txn.WrapEnd(func(end func()) func() {
		return func() {
			end()
			q.flush()
		}
	})
}
