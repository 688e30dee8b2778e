package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner schedules best-effort units of work detached from the caller's
// request path. Each unit runs in its own goroutine with its own error
// boundary: failures and panics are logged and never propagate to the
// scheduling caller.
type Runner struct {
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRunner constructs a Runner. timeout bounds each unit's context; zero
// means no deadline.
func NewRunner(logger *zap.Logger, timeout time.Duration) *Runner {
	if logger == nil {
		panic("task runner requires logger")
	}
	return &Runner{logger: logger, timeout: timeout}
}

// Go schedules fn as a detached unit of work. The caller never waits on it.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("best-effort task panicked",
					zap.String("task", name),
					zap.String("panic", fmt.Sprint(rec)),
				)
			}
		}()

		ctx := context.Background()
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		if err := fn(ctx); err != nil {
			r.logger.Warn("best-effort task failed",
				zap.String("task", name),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until in-flight tasks finish or ctx expires. Used on shutdown
// so pending audit writes get a chance to land.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
