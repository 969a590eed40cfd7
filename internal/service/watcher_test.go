package service

import (
	"context"
	"io"
	"testing"
	"time"

	"curbly/internal/models"
	"curbly/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueWatcherRepairsGaps(t *testing.T) {
	logger := zerolog.New(io.Discard)
	mem := store.NewMemory()
	queue := NewQueueService(mem, &logger)
	watcher := NewQueueWatcher(mem, queue, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watcher.Run(ctx)
	}()

	// A gapped sequence, as left by a crash mid-renumber.
	seedQueuedJob(t, mem, "worker-1", models.StatusAccepted, 1)
	gapped := seedQueuedJob(t, mem, "worker-1", models.StatusAccepted, 4)

	require.Eventually(t, func() bool {
		jobs, err := queue.WorkerQueue(context.Background(), "worker-1")
		if err != nil || len(jobs) != 2 {
			return false
		}
		return jobs[0].WorkerPriority == 1 && jobs[1].WorkerPriority == 2 && jobs[1].ID == gapped.ID
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on context cancellation")
	}
}

func TestContiguous(t *testing.T) {
	mk := func(priorities ...int) []*models.Job {
		jobs := make([]*models.Job, len(priorities))
		for i, p := range priorities {
			jobs[i] = &models.Job{WorkerPriority: p}
		}
		return jobs
	}

	assert.True(t, contiguous(nil))
	assert.True(t, contiguous(mk(1)))
	assert.True(t, contiguous(mk(2, 1, 3)))
	assert.False(t, contiguous(mk(1, 3)))
	assert.False(t, contiguous(mk(1, 1)))
	assert.False(t, contiguous(mk(0, 1)))
}
