// Package app contains application services that orchestrate use cases.
// This is the application layer in Clean Architecture - it coordinates
// domain logic and infrastructure through ports.
//
// Application Layer Responsibilities:
//   - Orchestrate use cases (business workflows)
//   - Run work inside request sub-contexts
//   - Handle cross-cutting concerns (logging, end-of-request hooks)
//
// What does NOT belong here:
//   - HTTP/gRPC specifics (that's adapters)
//   - Tracing SDK details (that's platform/telemetry)
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"time"

	"github.com/jsamuelsen/reqctx-service/internal/app/reqctx"
	"github.com/jsamuelsen/reqctx-service/internal/domain"
	"github.com/jsamuelsen/reqctx-service/internal/platform/logging"
)

const (
	// DefaultMaxRoutines caps the routines accepted by one Run call.
	DefaultMaxRoutines = 16

	// MaxRoutineDelay bounds the simulated work of a single routine.
	MaxRoutineDelay = 5 * time.Second
)

// RequestScope is the request-context surface the routine service needs.
// reqctx.Provider satisfies it.
type RequestScope interface {
	CorrelationID(ctx context.Context) string
	Routine(ctx context.Context) string
	ContextInfo(ctx context.Context) any
	SetContextInfo(ctx context.Context, value any)
	OnContextEnd(ctx context.Context, hook reqctx.EndHook) error
	SubContext(ctx context.Context, routine string, work func(ctx context.Context) error) error
}

// RoutineSpec describes one unit of work run in its own sub-context.
type RoutineSpec struct {
	Name  string
	Info  map[string]any
	Delay time.Duration
}

// RoutineResult is what a routine observed from inside its sub-context.
type RoutineResult struct {
	Name          string
	Routine       string
	CorrelationID string
	Info          map[string]any
	HookQueued    bool
}

// RoutineService runs named routines concurrently, each inside its own
// request sub-context, and reports what every routine observed.
type RoutineService struct {
	scope       RequestScope
	exec        *Executor
	maxRoutines int
}

// RoutineServiceConfig holds optional configuration for the service.
type RoutineServiceConfig struct {
	Logger      *slog.Logger
	MaxRoutines int
}

// NewRoutineService creates a routine service resolving contexts through scope.
func NewRoutineService(scope RequestScope, cfg *RoutineServiceConfig) *RoutineService {
	logger := slog.Default()
	maxRoutines := DefaultMaxRoutines

	if cfg != nil {
		if cfg.Logger != nil {
			logger = cfg.Logger
		}

		if cfg.MaxRoutines > 0 {
			maxRoutines = cfg.MaxRoutines
		}
	}

	return &RoutineService{
		scope:       scope,
		exec:        NewExecutor(logger.With(slog.String("component", "app.RoutineService"))),
		maxRoutines: maxRoutines,
	}
}

// MaxRoutines returns the number of routines a single Run accepts.
func (s *RoutineService) MaxRoutines() int {
	return s.maxRoutines
}

// Run validates specs, runs every routine concurrently in its own
// sub-context, verifies that no routine observed another's metadata, and
// queues a summary hook on the caller's context.
func (s *RoutineService) Run(ctx context.Context, specs []RoutineSpec) ([]RoutineResult, error) {
	return Execute(ctx, s.exec, Operation[[]RoutineSpec, []RoutineResult, []RoutineResult, []RoutineResult]{
		Name:     "run-routines",
		Validate: s.validate,
		Perform:  s.perform,
		Verify:   verifyIsolation,
		Archive:  s.archive,
		Respond: func(_ context.Context, _ []RoutineSpec, verified []RoutineResult) ([]RoutineResult, error) {
			return verified, nil
		},
	}, specs)
}

func (s *RoutineService) validate(_ context.Context, specs []RoutineSpec) error {
	if len(specs) == 0 {
		return domain.NewValidationError("routines", "at least one routine is required")
	}

	if len(specs) > s.maxRoutines {
		return domain.NewValidationErrorWithValue("routines",
			fmt.Sprintf("at most %d routines are allowed", s.maxRoutines), len(specs))
	}

	seen := make(map[string]struct{}, len(specs))

	for i, spec := range specs {
		field := fmt.Sprintf("routines[%d]", i)

		if spec.Name == "" {
			return domain.NewValidationError(field+".name", "cannot be empty")
		}

		if _, dup := seen[spec.Name]; dup {
			return domain.NewValidationErrorWithValue(field+".name", "must be unique", spec.Name)
		}

		seen[spec.Name] = struct{}{}

		if spec.Delay < 0 || spec.Delay > MaxRoutineDelay {
			return domain.NewValidationErrorWithValue(field+".delay",
				fmt.Sprintf("must be between 0 and %s", MaxRoutineDelay), spec.Delay.String())
		}
	}

	return nil
}

func (s *RoutineService) perform(ctx context.Context, specs []RoutineSpec) ([]RoutineResult, error) {
	fns := make([]func(context.Context) (RoutineResult, error), len(specs))

	for i, spec := range specs {
		fns[i] = func(ctx context.Context) (RoutineResult, error) {
			return s.runRoutine(ctx, spec)
		}
	}

	return ParallelLimit(ctx, s.maxRoutines, fns...)
}

// runRoutine sets the routine's metadata, yields, and reads everything back
// from inside the sub-context.
func (s *RoutineService) runRoutine(ctx context.Context, spec RoutineSpec) (RoutineResult, error) {
	var result RoutineResult

	err := s.scope.SubContext(ctx, spec.Name, func(ctx context.Context) error {
		logging.Trace(ctx, "sub-context entered", slog.Duration("delay", spec.Delay))

		s.scope.SetContextInfo(ctx, spec.Info)

		if err := pause(ctx, spec.Delay); err != nil {
			return fmt.Errorf("routine %q: %w", spec.Name, err)
		}

		info, _ := s.scope.ContextInfo(ctx).(map[string]any)
		result = RoutineResult{
			Name:          spec.Name,
			Routine:       s.scope.Routine(ctx),
			CorrelationID: s.scope.CorrelationID(ctx),
			Info:          info,
		}

		err := s.queueEndHook(ctx, func(txn string) error {
			logging.FromContext(ctx).InfoContext(ctx, "routine finished",
				slog.String("transaction", txn),
			)

			return nil
		})
		if err != nil {
			return fmt.Errorf("routine %q: %w", spec.Name, err)
		}

		result.HookQueued = true

		return nil
	})

	return result, err
}

// verifyIsolation checks every routine saw its own routine name and metadata.
func verifyIsolation(_ context.Context, specs []RoutineSpec, results []RoutineResult) ([]RoutineResult, error) {
	if len(results) != len(specs) {
		return nil, fmt.Errorf("expected %d routine results, got %d", len(specs), len(results))
	}

	for i, spec := range specs {
		got := results[i]

		if got.Routine != spec.Name {
			return nil, fmt.Errorf("routine %q resolved routine %q", spec.Name, got.Routine)
		}

		if !reflect.DeepEqual(got.Info, spec.Info) {
			return nil, fmt.Errorf("routine %q observed foreign metadata", spec.Name)
		}
	}

	return results, nil
}

func (s *RoutineService) archive(ctx context.Context, specs []RoutineSpec, _ []RoutineResult) error {
	n := len(specs)

	return s.queueEndHook(ctx, func(txn string) error {
		logging.FromContext(ctx).InfoContext(ctx, "routines archived",
			slog.String("transaction", txn),
			slog.Int("routines", n),
		)

		return nil
	})
}

// queueEndHook registers hook on the context resolved for ctx. A context
// without a lifecycle (strict mode, no transaction) is reported as an
// unavailable request lifecycle, whichever step asked.
func (s *RoutineService) queueEndHook(ctx context.Context, hook reqctx.EndHook) error {
	err := s.scope.OnContextEnd(ctx, hook)
	if errors.Is(err, reqctx.ErrLifecycleNotInstalled) {
		return domain.NewUnavailableError("request lifecycle", err)
	}

	return err
}

// pause waits for d or until ctx is done. A zero delay still yields.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		runtime.Gosched()
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
