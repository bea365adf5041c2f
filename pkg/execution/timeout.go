package execution

import (
	"context"
	"time"
)

// WithTimeout runs fn under a deadline and returns its result and
// error. fn is expected to honor context cancellation; a zero timeout
// runs fn with the parent context unchanged.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// Checkpoint returns the context's error, if any. Long read-only loops
// call it between items so cancellation takes effect promptly; there
// are no partial side effects to undo, so stopping anywhere is safe.
func Checkpoint(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
