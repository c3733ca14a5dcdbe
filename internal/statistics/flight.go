package statistics

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultLookupTimeout bounds a shared lookup once it has started.
const DefaultLookupTimeout = 5 * time.Minute

// sharedLookup runs fn once per key for every concurrent caller. fn runs
// detached from the caller that started it, bounded by timeout, so one
// caller's cancellation does not fail the others. Each caller stops
// waiting when its own ctx ends.
func sharedLookup(ctx context.Context, g *singleflight.Group, key string, timeout time.Duration, fn func(context.Context) (float64, error)) (float64, error) {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	ch := g.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		n, err := fn(runCtx)
		if err != nil {
			return nil, err
		}
		return n, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(float64), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
