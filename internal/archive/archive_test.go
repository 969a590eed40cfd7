package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curbly/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "archive", "curbly.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func terminalJob(id, status string) *models.Job {
	now := time.Now().UTC()
	accepted := now.Add(-2 * time.Hour)
	completed := now.Add(-time.Hour)

	job := &models.Job{
		ID:        id,
		Status:    status,
		HostID:    "host-1",
		WorkerID:  "worker-1",
		Address:   "12 Oak St",
		Notes:     "bins by the gate",
		CreatedAt: now.Add(-3 * time.Hour),
	}
	if status == models.StatusCompleted {
		job.AcceptedAt = &accepted
		job.CompletedAt = &completed
	}
	if status == models.StatusCancelled {
		job.CancelledAt = &completed
		job.CancelledBy = "host-1"
		job.CancellationReason = "moved out"
	}
	return job
}

func TestArchiveJob(t *testing.T) {
	ctx := context.Background()

	t.Run("RequiresJobID", func(t *testing.T) {
		db := newTestDB(t)

		assert.Error(t, db.ArchiveJob(ctx, nil))
		assert.Error(t, db.ArchiveJob(ctx, &models.Job{}))
	})

	t.Run("PersistsTerminalFields", func(t *testing.T) {
		db := newTestDB(t)

		require.NoError(t, db.ArchiveJob(ctx, terminalJob("job-1", models.StatusCompleted)))

		jobs, err := db.ListArchived(ctx, "", time.Time{})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "job-1", jobs[0].ID)
		assert.Equal(t, models.StatusCompleted, jobs[0].Status)
		assert.Equal(t, "worker-1", jobs[0].WorkerID)
		assert.Equal(t, "bins by the gate", jobs[0].Notes)
		require.NotNil(t, jobs[0].CompletedAt)
		assert.Nil(t, jobs[0].CancelledAt)
	})

	t.Run("ReplayUpserts", func(t *testing.T) {
		db := newTestDB(t)

		job := terminalJob("job-1", models.StatusCompleted)
		require.NoError(t, db.ArchiveJob(ctx, job))

		job.Status = models.StatusCancelled
		cancelled := time.Now().UTC()
		job.CancelledAt = &cancelled
		job.CancelledBy = "admin-1"
		job.CancellationReason = "duplicate entry"
		require.NoError(t, db.ArchiveJob(ctx, job))

		jobs, err := db.ListArchived(ctx, "", time.Time{})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, models.StatusCancelled, jobs[0].Status)
		assert.Equal(t, "admin-1", jobs[0].CancelledBy)
		assert.Equal(t, "duplicate entry", jobs[0].CancellationReason)
	})
}

func TestListArchived(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.ArchiveJob(ctx, terminalJob("job-1", models.StatusCompleted)))
	require.NoError(t, db.ArchiveJob(ctx, terminalJob("job-2", models.StatusCompleted)))
	require.NoError(t, db.ArchiveJob(ctx, terminalJob("job-3", models.StatusCancelled)))

	t.Run("FiltersByStatus", func(t *testing.T) {
		jobs, err := db.ListArchived(ctx, models.StatusCancelled, time.Time{})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "job-3", jobs[0].ID)
	})

	t.Run("NoStatusReturnsAll", func(t *testing.T) {
		jobs, err := db.ListArchived(ctx, "", time.Time{})
		require.NoError(t, err)
		assert.Len(t, jobs, 3)
	})

	t.Run("SinceCutsOffOldRows", func(t *testing.T) {
		jobs, err := db.ListArchived(ctx, "", time.Now().UTC().Add(24*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})
}

func TestCountByStatus(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	counts, err := db.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)

	require.NoError(t, db.ArchiveJob(ctx, terminalJob("job-1", models.StatusCompleted)))
	require.NoError(t, db.ArchiveJob(ctx, terminalJob("job-2", models.StatusCompleted)))
	require.NoError(t, db.ArchiveJob(ctx, terminalJob("job-3", models.StatusCancelled)))

	counts, err = db.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		models.StatusCompleted: 2,
		models.StatusCancelled: 1,
	}, counts)
}
