// internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext returns a context that inherits values from ctx1, which
// carries the chromedp target, and is canceled when either ctx1 or ctx2 is.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)
	stop := context.AfterFunc(ctx2, cancel)
	return combinedCtx, func() {
		stop()
		cancel()
	}
}

// valueOnlyContext keeps its parent's values but drops its deadline and
// cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context carrying ctx's values that is never canceled.
// Tab cleanup uses it so a timed out case can still close its target.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
