package bus

import (
	"context"
	"testing"
	"time"

	"eventtrader/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueTryPublish(t *testing.T) {
	q := NewQueue[int](2)
	require.NoError(t, q.TryPublish(1))
	require.NoError(t, q.TryPublish(2))
	require.ErrorIs(t, q.TryPublish(3), exception.ErrQueueFull)
	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, 2, q.Len())

	q.Close()
	require.ErrorIs(t, q.TryPublish(4), exception.ErrQueueClosed)

	var got []int
	q.Run(context.Background(), func(v int) { got = append(got, v) })
	assert.Equal(t, []int{1, 2}, got)
}

func TestQueuePublishBlocksUntilRoom(t *testing.T) {
	q := NewQueue[string](1)
	require.NoError(t, q.TryPublish("a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.Publish(ctx, "b"), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- q.Publish(context.Background(), "c") }()
	assert.Equal(t, "a", <-q.Events())
	require.NoError(t, <-done)
	assert.Equal(t, "c", <-q.Events())
}

func TestQueueRunStopsOnContext(t *testing.T) {
	q := NewQueue[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	q.Run(ctx, func(int) { called = true })
	assert.False(t, called)
}
