package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunLimited executes ops with at most maxParallel in flight and returns
// their results in submission order regardless of completion order.
// maxParallel <= 0 runs everything at once. The first error cancels the
// group context and is returned; no partial results are offered.
func RunLimited[T any](ctx context.Context, maxParallel int, ops []func(context.Context) (T, error)) ([]T, error) {
	g, ctx := errgroup.WithContext(ctx)
	if maxParallel > 0 {
		g.SetLimit(maxParallel)
	}
	results := make([]T, len(ops))
	for i, op := range ops {
		i, op := i, op
		g.Go(func() error {
			v, err := op(ctx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
