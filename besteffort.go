package authcore

import (
	"context"
	"time"
)

// bestEffortTimeout bounds each background side effect so a stuck mail
// provider cannot pin goroutines forever.
const bestEffortTimeout = 10 * time.Second

// bestEffort runs fn on its own goroutine, detached from the request
// context: the response never waits for it, but the work still completes
// after the handler returns. Failures and panics are logged, never
// propagated. The engine tracks these goroutines so Close can wait for them.
func (e *Engine) bestEffort(name string, fn func(ctx context.Context) error) {
	if e.closed.Load() {
		return
	}
	e.effects.Add(1)
	go func() {
		defer e.effects.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("background task panicked", "task", name, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), bestEffortTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			e.logger.Warn("background task failed", "task", name, "error", err)
		}
	}()
}
