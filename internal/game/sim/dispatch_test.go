package sim

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_RunsJobs(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(4, 16, time.Second)
	var n atomic.Int32
	for range 10 {
		require.True(t, d.Go("count", func(context.Context) { n.Add(1) }))
	}
	d.Close()
	assert.Equal(t, int32(10), n.Load())
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(1, 1, 0)
	started := make(chan struct{})
	release := make(chan struct{})
	var ran atomic.Int32

	require.True(t, d.Go("block", func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	assert.True(t, d.Go("queued", func(context.Context) { ran.Add(1) }))
	assert.False(t, d.Go("dropped", func(context.Context) { ran.Add(100) }))
	assert.Equal(t, 1, d.Pending())

	close(release)
	d.Close()
	assert.Equal(t, int32(1), ran.Load())
}

func TestDispatcher_RejectsAfterClose(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(1, 1, 0)
	d.Close()
	d.Close()
	assert.False(t, d.Go("late", func(context.Context) {}))
}

func TestDispatcher_JobTimeout(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(1, 1, 10*time.Millisecond)
	errCh := make(chan error, 1)
	require.True(t, d.Go("slow", func(ctx context.Context) {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		<-ctx.Done()
		errCh <- ctx.Err()
	}))
	d.Close()
	assert.ErrorIs(t, <-errCh, context.DeadlineExceeded)
}

func TestDispatcher_PanicDoesNotKillWorker(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(1, 4, 0)
	var ran atomic.Bool
	require.True(t, d.Go("boom", func(context.Context) { panic("boom") }))
	require.True(t, d.Go("after", func(context.Context) { ran.Store(true) }))
	d.Close()
	assert.True(t, ran.Load())
}
