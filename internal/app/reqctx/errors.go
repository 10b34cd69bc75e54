package reqctx

import (
	"errors"
	"fmt"
)

var (
	// ErrLifecycleNotInstalled is returned in strict mode when a hook is
	// registered on, or a flush is requested for, a context whose hook queue
	// was never set up by transaction interception.
	ErrLifecycleNotInstalled = errors.New("context lifecycle not installed")

	// ErrEmptyRoutine is returned when SubContext is called without a routine name.
	ErrEmptyRoutine = errors.New("routine name cannot be empty")

	// ErrNilWork is returned when SubContext is called with a nil work function.
	ErrNilWork = errors.New("work function cannot be nil")

	// ErrNilHook is returned when OnContextEnd is called with a nil hook.
	ErrNilHook = errors.New("end hook cannot be nil")
)

// HookError describes a single end-of-context hook failure.
type HookError struct {
	// Routine is the routine name the hook was invoked with.
	Routine string

	// Index is the hook's position within its flush pass.
	Index int

	// Err is the error returned by the hook. Nil when the hook panicked.
	Err error

	// Panic holds the recovered value when the hook panicked.
	Panic any

	// Stack is the goroutine stack captured at the panic site.
	Stack []byte
}

// Error implements the error interface.
func (e *HookError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("context end hook #%d for routine %q panicked: %v", e.Index, e.Routine, e.Panic)
	}

	return fmt.Sprintf("context end hook #%d for routine %q failed: %v", e.Index, e.Routine, e.Err)
}

// Unwrap returns the hook's error for errors.Is/As support.
func (e *HookError) Unwrap() error {
	return e.Err
}
