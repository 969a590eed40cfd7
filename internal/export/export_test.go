package export

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"curbly/internal/models"
)

type fakeArchive struct {
	jobs []*models.Job
	err  error
}

func (f *fakeArchive) ArchiveJob(ctx context.Context, job *models.Job) error { return nil }

func (f *fakeArchive) ListArchived(ctx context.Context, status string, since time.Time) ([]*models.Job, error) {
	return f.jobs, f.err
}

func (f *fakeArchive) CountByStatus(ctx context.Context) (map[string]int, error) {
	return nil, nil
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	completed := time.Date(2026, 8, 14, 9, 30, 0, 0, time.UTC)

	archive := &fakeArchive{jobs: []*models.Job{
		{
			ID:          "job-1",
			Status:      models.StatusCompleted,
			HostID:      "host-1",
			WorkerID:    "worker-1",
			Address:     "12 Oak St",
			CreatedAt:   completed.Add(-2 * time.Hour),
			CompletedAt: &completed,
		},
		{
			ID:        "job-2",
			Status:    models.StatusCancelled,
			HostID:    "host-2",
			Address:   "77 Elm Ave",
			CreatedAt: completed,
		},
	}}

	exporter := New(archive, t.TempDir())
	path, err := exporter.Export(ctx, time.Time{})
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "job-1", rows[1][0])
	assert.Equal(t, "2026-08-14 09:30", rows[1][7])
	assert.Equal(t, "job-2", rows[2][0])
}

func TestExportArchiveError(t *testing.T) {
	exporter := New(&fakeArchive{err: errors.New("database locked")}, t.TempDir())

	path, err := exporter.Export(context.Background(), time.Time{})
	assert.Error(t, err)
	assert.Empty(t, path)
}

func TestExportEmptyArchive(t *testing.T) {
	exporter := New(&fakeArchive{}, t.TempDir())

	path, err := exporter.Export(context.Background(), time.Time{})
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
