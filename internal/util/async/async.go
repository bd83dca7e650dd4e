package async

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach calls fn for every item with at most limit calls in flight.
// A limit below one runs the items sequentially. The context passed to fn is
// cancelled as soon as one call fails, and the first error is returned.
func ForEach[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) error {
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, item := range items {
		g.Go(func() error {
			return fn(gctx, item)
		})
	}

	return g.Wait()
}
