package conjecture

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Explorer is a property of any value type. [Property] implements it.
type Explorer interface {
	PropertyName() string
	Explore(ctx context.Context, e *Engine) (*Result, error)
}

// ExploreAll explores independent properties concurrently, at most
// parallelism at a time (no limit when parallelism < 1). Results are returned
// in argument order.
//
// The first setup or internal error cancels the remaining sessions and is
// returned; results of sessions that completed are still filled in.
func ExploreAll(ctx context.Context, e *Engine, parallelism int, props ...Explorer) ([]*Result, error) {
	results := make([]*Result, len(props))

	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}

	for i, p := range props {
		g.Go(func() error {
			res, err := p.Explore(ctx, e)
			results[i] = res

			return err
		})
	}

	err := g.Wait()

	return results, err
}
