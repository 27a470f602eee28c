package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 4)
	handler := func(_ context.Context, job Job) error {
		mu.Lock()
		seen = append(seen, job.ID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}

	queue := NewQueue("test", handler, QueueConfig{Workers: 2, BufferSize: 8})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, queue.TryEnqueue(Job{ID: id, Type: "noop"}))
	}
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 4)
}

func TestQueueTryEnqueueFullBuffer(t *testing.T) {
	handler := func(context.Context, Job) error { return nil }
	queue := NewQueue("test", handler, QueueConfig{Workers: 1, BufferSize: 1})
	// workers not started, so the buffer never drains

	require.NoError(t, queue.TryEnqueue(Job{ID: "a"}))
	err := queue.TryEnqueue(Job{ID: "b"})
	assert.Error(t, err)
}

func TestQueueEnqueueStampsTime(t *testing.T) {
	handler := func(context.Context, Job) error { return nil }
	queue := NewQueue("test", handler, QueueConfig{BufferSize: 1})

	require.NoError(t, queue.TryEnqueue(Job{ID: "a"}))
	job := <-queue.jobs
	assert.False(t, job.Enqueued.IsZero())
}
