package cookieauth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Detacher runs work that must not hold up an HTTP response, such as mail
// delivery after signup.  Each task runs at most once on its own goroutine,
// outlives the request context, and is never retried; failures are only
// logged.  Tasks still running when the process exits are lost unless the
// owner calls Wait first.
type Detacher struct {
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewDetacher(logger *slog.Logger) *Detacher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detacher{logger: logger}
}

// Go starts fn in the background.  ctx contributes values only; its
// cancellation does not reach fn.
func (d *Detacher) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				d.logger.Error("detached task panicked", "task", name, "panic", fmt.Sprint(p))
			}
		}()
		if err := fn(ctx); err != nil {
			d.logger.Warn("detached task failed", "task", name, "err", err)
		}
	}()
}

// Wait blocks until every started task has finished or ctx is done.
func (d *Detacher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
