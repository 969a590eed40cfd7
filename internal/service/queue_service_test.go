package service

import (
	"context"
	"io"
	"testing"
	"time"

	"curbly/internal/domain"
	"curbly/internal/models"
	"curbly/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*QueueService, *store.Memory) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	mem := store.NewMemory()
	return NewQueueService(mem, &logger), mem
}

func seedQueuedJob(t *testing.T, mem *store.Memory, workerID, status string, priority int) *models.Job {
	t.Helper()
	accepted := time.Now().Add(-time.Duration(priority) * time.Minute)
	job := &models.Job{
		ID:             uuid.NewString(),
		Status:         status,
		HostID:         "host-1",
		WorkerID:       workerID,
		Address:        "somewhere",
		CreatedAt:      time.Now(),
		AcceptedAt:     &accepted,
		WorkerPriority: priority,
	}
	fields, err := store.Encode(job)
	require.NoError(t, err)
	require.NoError(t, mem.Write(context.Background(), models.CollectionJobs, job.ID, fields))
	return job
}

func TestQueueServiceAssignPriority(t *testing.T) {
	queue, mem := newTestQueue(t)
	ctx := context.Background()

	seedQueuedJob(t, mem, "worker-1", models.StatusAccepted, 1)
	seedQueuedJob(t, mem, "worker-1", models.StatusInProgress, 2)
	seedQueuedJob(t, mem, "worker-2", models.StatusAccepted, 1)

	// The new job lands after the worker's existing two, not after
	// worker-2's jobs.
	next := seedQueuedJob(t, mem, "worker-1", models.StatusAccepted, 0)
	priority, err := queue.AssignPriority(ctx, "worker-1", next.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, priority)

	got, err := queue.WorkerQueue(ctx, "worker-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, next.ID, got[2].ID)
	require.NotNil(t, got[2].EstimatedStartTime)
}

func TestQueueServiceCurrentJob(t *testing.T) {
	queue, mem := newTestQueue(t)
	ctx := context.Background()

	t.Run("EmptyQueue", func(t *testing.T) {
		current, err := queue.CurrentJob(ctx, "worker-1")
		require.NoError(t, err)
		assert.Nil(t, current)
	})

	first := seedQueuedJob(t, mem, "worker-1", models.StatusAccepted, 1)
	inProgress := seedQueuedJob(t, mem, "worker-1", models.StatusInProgress, 3)

	t.Run("InProgressWinsOverPriorityOne", func(t *testing.T) {
		current, err := queue.CurrentJob(ctx, "worker-1")
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Equal(t, inProgress.ID, current.ID)
	})

	t.Run("FallsBackToHeadOfQueue", func(t *testing.T) {
		require.NoError(t, mem.Write(ctx, models.CollectionJobs, inProgress.ID, map[string]any{
			"status": models.StatusCompleted,
		}))
		current, err := queue.CurrentJob(ctx, "worker-1")
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Equal(t, first.ID, current.ID)
	})
}

func TestQueueServiceRemoveFromQueue(t *testing.T) {
	queue, mem := newTestQueue(t)
	ctx := context.Background()

	job := seedQueuedJob(t, mem, "worker-1", models.StatusAccepted, 1)

	t.Run("WrongWorker", func(t *testing.T) {
		assert.ErrorIs(t, queue.RemoveFromQueue(ctx, "worker-2", job.ID), domain.ErrConflict)
	})

	t.Run("UnknownJob", func(t *testing.T) {
		assert.ErrorIs(t, queue.RemoveFromQueue(ctx, "worker-1", "missing"), domain.ErrNotFound)
	})

	t.Run("ResetsToOpenPool", func(t *testing.T) {
		require.NoError(t, queue.RemoveFromQueue(ctx, "worker-1", job.ID))

		docs, err := mem.Query(ctx, models.CollectionJobs, domain.Filter{"id": job.ID})
		require.NoError(t, err)
		require.Len(t, docs, 1)

		var got models.Job
		require.NoError(t, store.Decode(docs[0], &got))
		assert.Equal(t, models.StatusOpen, got.Status)
		assert.Empty(t, got.WorkerID)
		assert.Nil(t, got.AcceptedAt)
		assert.Zero(t, got.WorkerPriority)
	})
}

func TestQueueServiceRenumber(t *testing.T) {
	queue, mem := newTestQueue(t)
	ctx := context.Background()

	// Gapped sequence left behind by a partial multi-write.
	a := seedQueuedJob(t, mem, "worker-1", models.StatusAccepted, 2)
	b := seedQueuedJob(t, mem, "worker-1", models.StatusAccepted, 5)

	require.NoError(t, queue.RenumberQueue(ctx, "worker-1"))

	got, err := queue.WorkerQueue(ctx, "worker-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, 1, got[0].WorkerPriority)
	assert.Equal(t, b.ID, got[1].ID)
	assert.Equal(t, 2, got[1].WorkerPriority)
}
