package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeoutReturnsResult(t *testing.T) {
	v, err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestWithTimeoutCancelsSlowWork(t *testing.T) {
	_, err := WithTimeout(context.Background(), 5*time.Millisecond, func(ctx context.Context) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
			return 1, nil
		}
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithTimeoutZeroIsPassthrough(t *testing.T) {
	parent := context.Background()
	v, err := WithTimeout(parent, 0, func(ctx context.Context) (string, error) {
		_, hasDeadline := ctx.Deadline()
		assert.False(t, hasDeadline)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCheckpoint(t *testing.T) {
	assert.NoError(t, Checkpoint(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Checkpoint(ctx), context.Canceled)
}
