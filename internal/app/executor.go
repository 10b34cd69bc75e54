package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jsamuelsen/reqctx-service/internal/platform/logging"
)

// An Operation runs as Validate, Perform, Verify, Archive, Respond. Validate
// runs before any sub-context is opened; Archive queues the end-of-request
// work. A failure in the first four steps comes back as an ExecutionError
// naming the step; a Respond failure is returned as is.

// ExecutionStep names a stage of an Operation.
type ExecutionStep string

const (
	StepValidate ExecutionStep = "validate"
	StepPerform  ExecutionStep = "perform"
	StepVerify   ExecutionStep = "verify"
	StepArchive  ExecutionStep = "archive"
	StepRespond  ExecutionStep = "respond"
)

// stepFailure is the ExecutionError message for each wrapped step.
var stepFailure = map[ExecutionStep]string{
	StepValidate: "input validation failed",
	StepPerform:  "operation failed",
	StepVerify:   "verification failed",
	StepArchive:  "queueing end-of-request work failed",
}

// ExecutionError records the step an operation failed in.
type ExecutionError struct {
	Step    ExecutionStep
	Message string
	Cause   error
}

func (e *ExecutionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s failed: %s", e.Step, e.Message)
	}

	return fmt.Sprintf("%s failed: %s: %v", e.Step, e.Message, e.Cause)
}

// Unwrap returns the cause.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// GetExecutionStep reports the step recorded in err, if any.
func GetExecutionStep(err error) (ExecutionStep, bool) {
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		return "", false
	}

	return execErr.Step, true
}

// Executor runs Operations. Its logger is used when ctx carries none.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates an executor. A nil logger means slog.Default().
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{logger: logger}
}

// Operation holds the step functions of one use case. Nil steps are skipped
// and pass the zero value on.
type Operation[I, P, V, O any] struct {
	Name string

	Validate func(ctx context.Context, input I) error
	Perform  func(ctx context.Context, input I) (P, error)
	Verify   func(ctx context.Context, input I, performed P) (V, error)
	Archive  func(ctx context.Context, input I, verified V) error
	Respond  func(ctx context.Context, input I, verified V) (O, error)
}

// runStep logs around fn at trace level and wraps its error with step.
func runStep[T any](ctx context.Context, logger *slog.Logger, step ExecutionStep, fn func() (T, error)) (T, error) {
	logger.Log(ctx, logging.LevelTrace, "step started", slog.String("step", string(step)))

	out, err := fn()
	if err != nil {
		level := slog.LevelError
		if step == StepValidate {
			level = slog.LevelWarn
		}

		logger.Log(ctx, level, "step failed", slog.String("step", string(step)), slog.Any("error", err))

		return out, &ExecutionError{Step: step, Message: stepFailure[step], Cause: err}
	}

	logger.Log(ctx, logging.LevelTrace, "step done", slog.String("step", string(step)))

	return out, nil
}

// Execute runs op over input, stopping at the first failing step.
func Execute[I, P, V, O any](ctx context.Context, exec *Executor, op Operation[I, P, V, O], input I) (O, error) {
	var out O

	logger := logging.FromContextOr(ctx, exec.logger).With(slog.String("operation", op.Name))
	start := time.Now()

	if op.Validate != nil {
		if _, err := runStep(ctx, logger, StepValidate, func() (struct{}, error) {
			return struct{}{}, op.Validate(ctx, input)
		}); err != nil {
			return out, err
		}
	}

	var performed P

	if op.Perform != nil {
		var err error

		performed, err = runStep(ctx, logger, StepPerform, func() (P, error) { return op.Perform(ctx, input) })
		if err != nil {
			return out, err
		}
	}

	var verified V

	if op.Verify != nil {
		var err error

		verified, err = runStep(ctx, logger, StepVerify, func() (V, error) { return op.Verify(ctx, input, performed) })
		if err != nil {
			return out, err
		}
	}

	if op.Archive != nil {
		if _, err := runStep(ctx, logger, StepArchive, func() (struct{}, error) {
			return struct{}{}, op.Archive(ctx, input, verified)
		}); err != nil {
			return out, err
		}
	}

	if op.Respond != nil {
		var err error

		logger.Log(ctx, logging.LevelTrace, "step started", slog.String("step", string(StepRespond)))

		if out, err = op.Respond(ctx, input, verified); err != nil {
			logger.WarnContext(ctx, "respond failed", slog.Any("error", err))

			var zero O

			return zero, err
		}
	}

	logger.InfoContext(ctx, "operation completed", slog.Duration("duration", time.Since(start)))

	return out, nil
}
