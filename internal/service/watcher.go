package service

import (
	"context"

	"curbly/internal/domain"
	"curbly/internal/metrics"
	"curbly/internal/models"
	"curbly/internal/store"

	"github.com/rs/zerolog"
)

// QueueWatcher consumes full job-collection snapshots from the store's
// subscription and re-derives per-worker state on every push: queue depth
// gauges, and a renumber pass whenever a snapshot shows a gapped or
// duplicated priority sequence (the residue of a partial multi-write).
// There is no incremental diffing; recomputing from the latest snapshot is
// the expected strategy.
type QueueWatcher struct {
	store  domain.DocumentStore
	queue  domain.QueueManager
	logger *zerolog.Logger
}

func NewQueueWatcher(docs domain.DocumentStore, queue domain.QueueManager, logger *zerolog.Logger) *QueueWatcher {
	return &QueueWatcher{store: docs, queue: queue, logger: logger}
}

// Run blocks until the context is cancelled.
func (w *QueueWatcher) Run(ctx context.Context) error {
	snapshots, err := w.store.Subscribe(ctx, models.CollectionJobs, nil)
	if err != nil {
		return err
	}

	for snapshot := range snapshots {
		w.recompute(ctx, snapshot)
	}
	return ctx.Err()
}

func (w *QueueWatcher) recompute(ctx context.Context, snapshot []domain.Document) {
	byWorker := make(map[string][]*models.Job)
	for _, doc := range snapshot {
		var job models.Job
		if err := store.Decode(doc, &job); err != nil {
			w.logger.Warn().Err(err).Str("doc_id", doc.ID).Msg("skipping undecodable job document")
			continue
		}
		if job.Active() {
			byWorker[job.WorkerID] = append(byWorker[job.WorkerID], &job)
		}
	}

	for workerID, jobs := range byWorker {
		metrics.SetQueueDepth(workerID, len(jobs))

		if contiguous(jobs) {
			continue
		}
		w.logger.Warn().Str("worker_id", workerID).Int("jobs", len(jobs)).Msg("gapped priority sequence observed, renumbering")
		if err := w.queue.RenumberQueue(ctx, workerID); err != nil {
			w.logger.Error().Err(err).Str("worker_id", workerID).Msg("snapshot-driven renumber failed")
		}
	}
}

// contiguous checks that priorities are exactly {1..N}.
func contiguous(jobs []*models.Job) bool {
	seen := make(map[int]bool, len(jobs))
	for _, job := range jobs {
		if job.WorkerPriority < 1 || job.WorkerPriority > len(jobs) || seen[job.WorkerPriority] {
			return false
		}
		seen[job.WorkerPriority] = true
	}
	return true
}
