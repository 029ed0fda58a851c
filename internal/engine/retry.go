package engine

import (
	"context"
	"fmt"
	"time"
)

// retryRemote runs a remote call, retrying transient failures with
// exponential backoff up to the configured retry budget. The backoff
// doubles per attempt; context cancellation aborts the wait.
func (e *Engine) retryRemote(ctx context.Context, fn func() error) error {
	max := e.cfg.Sync.RetryMax
	backoff := e.cfg.Sync.RetryBase()

	var err error
	for attempt := 0; attempt <= max; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("engine: remote call failed after %d retries: %w", max, err)
}
