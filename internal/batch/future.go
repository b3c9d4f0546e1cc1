package batch

import (
	"context"

	"github.com/danielpatrickdp/emotion-core/internal/calib"
)

// #region future
// Future resolves to the scoring result of one submitted request.
// The outcome is delivered exactly once; repeated Wait calls after the first
// delivery return the same outcome. Wait is not safe for concurrent use from
// multiple goroutines — one waiter per future.
type Future struct {
	ch chan outcome

	resolved bool
	res      outcome
}

// Wait blocks until the request's batch completes or ctx is done.
// A ctx cancellation after the batch sealed is advisory: the batch still
// completes for its other members, this caller just stops waiting.
func (f *Future) Wait(ctx context.Context) (*calib.Result, error) {
	if f.resolved {
		return f.res.result, f.res.err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case o := <-f.ch:
		f.resolved = true
		f.res = o
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ResolvedFuture returns a future that is already complete with res.
// Used for cache hits so sync and async callers share one return shape.
func ResolvedFuture(res *calib.Result) *Future {
	return &Future{resolved: true, res: outcome{result: res}}
}

// #endregion future
