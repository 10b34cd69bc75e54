package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Parallel runs fns concurrently with no bound. See ParallelLimit.
func Parallel[T any](ctx context.Context, fns ...func(context.Context) (T, error)) ([]T, error) {
	return ParallelLimit(ctx, -1, fns...)
}

// ParallelLimit runs fns with at most limit in flight (negative: unbounded)
// and returns their results in input order. The first error cancels the
// context handed to the rest and is returned wrapped; results are then nil.
//
// Each fn receives the group's context, so anything stored in the caller's
// ctx (a request-context sub-scope, a logger) stays visible inside it.
func ParallelLimit[T any](ctx context.Context, limit int, fns ...func(context.Context) (T, error)) ([]T, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	out := make([]T, len(fns))

	for i := range fns {
		g.Go(func() (err error) {
			out[i], err = fns[i](gctx)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parallel execution failed: %w", err)
	}

	return out, nil
}
