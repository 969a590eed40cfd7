package service

import (
	"context"
	"sort"
	"time"

	"curbly/internal/domain"
	"curbly/internal/metrics"
	"curbly/internal/models"
	"curbly/internal/store"

	"github.com/rs/zerolog"
)

// QueueService maintains, per worker, a gapless 1-based priority ordering
// over that worker's accepted and in-progress jobs. Renumbering is a
// best-effort multi-write sequence, not a transaction; the watcher repairs
// gaps left by partial failures on the next snapshot.
type QueueService struct {
	store  domain.DocumentStore
	unit   time.Duration
	logger *zerolog.Logger
}

func NewQueueService(docs domain.DocumentStore, logger *zerolog.Logger) *QueueService {
	return &QueueService{store: docs, unit: models.TrashQueueUnit, logger: logger}
}

// AssignPriority appends the job at the end of the worker's queue and
// stamps its estimated start time.
func (q *QueueService) AssignPriority(ctx context.Context, workerID, jobID string) (int, error) {
	active, err := q.activeJobs(ctx, workerID)
	if err != nil {
		return 0, err
	}

	priority := 1
	for _, job := range active {
		if job.ID == jobID {
			continue
		}
		priority++
	}

	est := time.Now().Add(time.Duration(priority-1) * q.unit)
	err = q.store.Write(ctx, models.CollectionJobs, jobID, map[string]any{
		"worker_priority":      priority,
		"estimated_start_time": est.Format(time.RFC3339Nano),
	})
	if err != nil {
		return 0, err
	}

	metrics.SetQueueDepth(workerID, priority)
	return priority, nil
}

// RemoveFromQueue resets the job to the open pool, clearing every worker
// field, then closes the gap in the remaining queue.
func (q *QueueService) RemoveFromQueue(ctx context.Context, workerID, jobID string) error {
	job, err := q.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.WorkerID != workerID {
		return domain.Conflictf("job %s is not assigned to worker %s", jobID, workerID)
	}

	err = q.store.Write(ctx, models.CollectionJobs, jobID, map[string]any{
		"status":               models.StatusOpen,
		"worker_id":            nil,
		"worker_location":      nil,
		"start_location":       nil,
		"accepted_at":          nil,
		"worker_priority":      nil,
		"estimated_start_time": nil,
		"progress":             0,
	})
	if err != nil {
		return err
	}

	return q.RenumberQueue(ctx, workerID)
}

// RenumberQueue re-derives the gapless 1..N sequence from the current
// snapshot, ordered by existing priority, and rewrites only the jobs whose
// priority or estimate actually moved.
func (q *QueueService) RenumberQueue(ctx context.Context, workerID string) error {
	active, err := q.activeJobs(ctx, workerID)
	if err != nil {
		return err
	}

	now := time.Now()
	for i, job := range active {
		want := i + 1
		if job.WorkerPriority == want {
			continue
		}
		est := now.Add(time.Duration(want-1) * q.unit)
		err := q.store.Write(ctx, models.CollectionJobs, job.ID, map[string]any{
			"worker_priority":      want,
			"estimated_start_time": est.Format(time.RFC3339Nano),
		})
		if err != nil {
			// Leave the rest as-is; the subscription-driven recompute
			// picks the repair up on the next snapshot.
			q.logger.Error().Err(err).Str("job_id", job.ID).Int("priority", want).Msg("renumber write failed")
			return err
		}
	}

	metrics.SetQueueDepth(workerID, len(active))
	return nil
}

// CurrentJob returns the worker's in-progress job if one exists, else the
// job at priority 1, else nil.
func (q *QueueService) CurrentJob(ctx context.Context, workerID string) (*models.Job, error) {
	active, err := q.activeJobs(ctx, workerID)
	if err != nil {
		return nil, err
	}
	for _, job := range active {
		if job.Status == models.StatusInProgress {
			return job, nil
		}
	}
	if len(active) == 0 {
		return nil, nil
	}
	return active[0], nil
}

// WorkerQueue returns the worker's active jobs in priority order.
func (q *QueueService) WorkerQueue(ctx context.Context, workerID string) ([]*models.Job, error) {
	return q.activeJobs(ctx, workerID)
}

// activeJobs loads and sorts the worker's queued jobs. Jobs that somehow
// share a priority tie-break on acceptance time, oldest first.
func (q *QueueService) activeJobs(ctx context.Context, workerID string) ([]*models.Job, error) {
	docs, err := q.store.Query(ctx, models.CollectionJobs, domain.Filter{"worker_id": workerID})
	if err != nil {
		return nil, err
	}

	active := make([]*models.Job, 0, len(docs))
	for _, doc := range docs {
		var job models.Job
		if err := store.Decode(doc, &job); err != nil {
			return nil, err
		}
		if job.Active() {
			active = append(active, &job)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		if active[i].WorkerPriority != active[j].WorkerPriority {
			return active[i].WorkerPriority < active[j].WorkerPriority
		}
		ti, tj := active[i].AcceptedAt, active[j].AcceptedAt
		if ti != nil && tj != nil {
			return ti.Before(*tj)
		}
		return tj == nil && ti != nil
	})

	return active, nil
}

func (q *QueueService) loadJob(ctx context.Context, jobID string) (*models.Job, error) {
	docs, err := q.store.Query(ctx, models.CollectionJobs, domain.Filter{"id": jobID})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, domain.NotFoundf("job %s", jobID)
	}
	var job models.Job
	if err := store.Decode(docs[0], &job); err != nil {
		return nil, err
	}
	return &job, nil
}
