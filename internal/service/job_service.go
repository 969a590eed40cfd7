package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"curbly/internal/domain"
	"curbly/internal/events"
	"curbly/internal/geo"
	"curbly/internal/metrics"
	"curbly/internal/models"
	"curbly/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// JobService owns the trash-pickup lifecycle: creation, approval,
// acceptance, start/complete, and the two cancellation flavors. Priority
// bookkeeping is delegated to the queue manager.
type JobService struct {
	store      domain.DocumentStore
	queue      domain.QueueManager
	bus        domain.EventPublisher
	notifier   domain.Notifier
	geocoder   domain.Geocoder
	syncWorker domain.SyncWorker
	fallback   models.LatLng
	jitter     float64
	logger     *zerolog.Logger
}

func NewJobService(
	docs domain.DocumentStore,
	queue domain.QueueManager,
	bus domain.EventPublisher,
	notifier domain.Notifier,
	geocoder domain.Geocoder,
	syncWorker domain.SyncWorker,
	fallback models.LatLng,
	jitter float64,
	logger *zerolog.Logger,
) *JobService {
	if jitter <= 0 {
		jitter = 0.01
	}
	return &JobService{
		store:      docs,
		queue:      queue,
		bus:        bus,
		notifier:   notifier,
		geocoder:   geocoder,
		syncWorker: syncWorker,
		fallback:   fallback,
		jitter:     jitter,
		logger:     logger,
	}
}

func (s *JobService) CreateJob(ctx context.Context, input domain.CreateJobInput) (*models.Job, error) {
	if input.Address == "" {
		return nil, domain.Validationf("job address is required")
	}
	if input.HostID == "" {
		return nil, domain.Validationf("job host is required")
	}

	destination, err := s.resolveDestination(ctx, input)
	if err != nil {
		return nil, err
	}

	status := models.StatusOpen
	if input.NeedsApproval {
		status = models.StatusPendingApproval
	}

	job := &models.Job{
		ID:                uuid.NewString(),
		Status:            status,
		HostID:            input.HostID,
		Address:           input.Address,
		Destination:       destination,
		Notes:             input.Notes,
		CreatedAt:         time.Now(),
		IsRecurring:       input.IsRecurring,
		RecurringSchedule: input.Schedule,
		NeedsApproval:     input.NeedsApproval,
	}

	fields, err := store.Encode(job)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(ctx, models.CollectionJobs, job.ID, fields); err != nil {
		return nil, err
	}

	metrics.IncTransition(job.Status)
	s.publish(events.EventJobCreated, job)
	return job, nil
}

// resolveDestination prefers host-supplied coordinates, then the geocoder,
// then jittered synthetic coordinates near the configured anchor. Creation
// must not fail just because the geocoder is down.
func (s *JobService) resolveDestination(ctx context.Context, input domain.CreateJobInput) (models.LatLng, error) {
	if input.Destination != nil && !input.Destination.IsZero() {
		return *input.Destination, nil
	}
	if s.geocoder == nil {
		return models.LatLng{}, domain.Validationf("job destination is required")
	}

	result, err := s.geocoder.Geocode(ctx, input.Address)
	if err != nil {
		s.logger.Warn().Err(err).Str("address", input.Address).Msg("geocoder unavailable, using synthetic coordinates")
	}
	if err == nil && result != nil {
		return result.Coordinates, nil
	}

	return models.LatLng{
		Lat: s.fallback.Lat + (rand.Float64()-0.5)*2*s.jitter,
		Lng: s.fallback.Lng + (rand.Float64()-0.5)*2*s.jitter,
	}, nil
}

func (s *JobService) ApproveJob(ctx context.Context, jobID string) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.StatusPendingApproval {
		return domain.Conflictf("job %s is %s, not pending approval", jobID, job.Status)
	}

	if err := s.store.Write(ctx, models.CollectionJobs, jobID, map[string]any{
		"status": models.StatusOpen,
	}); err != nil {
		return err
	}

	metrics.IncTransition(models.StatusOpen)
	job.Status = models.StatusOpen
	s.publish(events.EventJobApproved, job)
	return nil
}

func (s *JobService) AcceptJob(ctx context.Context, jobID, workerID string, startLocation models.LatLng) error {
	if workerID == "" {
		return domain.Validationf("worker id is required")
	}

	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.WorkerID != "" {
		return domain.Conflictf("job %s already accepted by worker %s", jobID, job.WorkerID)
	}
	if job.Status != models.StatusOpen {
		return domain.Conflictf("job %s is %s, not open", jobID, job.Status)
	}

	// Two workers racing past the read above both land their writes and
	// the store's last writer wins. There is no optimistic lock here; the
	// production system has the same hole.
	now := time.Now()
	if err := s.store.Write(ctx, models.CollectionJobs, jobID, map[string]any{
		"status":         models.StatusAccepted,
		"worker_id":      workerID,
		"start_location": map[string]any{"lat": startLocation.Lat, "lng": startLocation.Lng},
		"accepted_at":    now.Format(time.RFC3339Nano),
	}); err != nil {
		return err
	}

	priority, err := s.queue.AssignPriority(ctx, workerID, jobID)
	if err != nil {
		return err
	}

	metrics.IncTransition(models.StatusAccepted)
	job.Status = models.StatusAccepted
	job.WorkerID = workerID
	job.WorkerPriority = priority
	s.publish(events.EventJobAccepted, job)
	s.notify(job.HostID, fmt.Sprintf("Your pickup at %s was accepted", job.Address))
	return nil
}

func (s *JobService) StartJob(ctx context.Context, jobID string) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.StatusAccepted {
		return domain.Conflictf("job %s is %s, not accepted", jobID, job.Status)
	}

	// Any accepted job may be started regardless of its queue position,
	// but a worker can only run one job at a time.
	current, err := s.queue.CurrentJob(ctx, job.WorkerID)
	if err != nil {
		return err
	}
	if current != nil && current.Status == models.StatusInProgress {
		return domain.Conflictf("worker %s already has job %s in progress", job.WorkerID, current.ID)
	}

	if err := s.store.Write(ctx, models.CollectionJobs, jobID, map[string]any{
		"status": models.StatusInProgress,
	}); err != nil {
		return err
	}

	metrics.IncTransition(models.StatusInProgress)
	job.Status = models.StatusInProgress
	s.publish(events.EventJobStarted, job)
	s.notify(job.HostID, fmt.Sprintf("Pickup at %s is underway", job.Address))
	return nil
}

func (s *JobService) CompleteJob(ctx context.Context, jobID string) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.StatusInProgress {
		return domain.Conflictf("job %s is %s, not in progress", jobID, job.Status)
	}

	now := time.Now()
	if err := s.store.Write(ctx, models.CollectionJobs, jobID, map[string]any{
		"status":               models.StatusCompleted,
		"completed_at":         now.Format(time.RFC3339Nano),
		"worker_location":      nil,
		"worker_priority":      nil,
		"estimated_start_time": nil,
		"progress":             100,
	}); err != nil {
		return err
	}

	if err := s.queue.RenumberQueue(ctx, job.WorkerID); err != nil {
		s.logger.Error().Err(err).Str("worker_id", job.WorkerID).Msg("queue renumber after completion failed")
	}

	metrics.IncTransition(models.StatusCompleted)
	job.Status = models.StatusCompleted
	job.CompletedAt = &now
	s.publish(events.EventJobCompleted, job)
	s.notify(job.HostID, fmt.Sprintf("Pickup at %s is complete", job.Address))
	s.enqueueSync(ctx, job)
	s.scheduleNextOccurrence(ctx, job, now)
	return nil
}

// scheduleNextOccurrence opens a fresh job for the next run of a recurring
// pickup once the current one completes.
func (s *JobService) scheduleNextOccurrence(ctx context.Context, job *models.Job, completedAt time.Time) {
	if !job.IsRecurring || job.RecurringSchedule == nil {
		return
	}
	next := job.RecurringSchedule.NextOccurrence(completedAt)
	if next.IsZero() {
		return
	}

	clone := &models.Job{
		ID:                uuid.NewString(),
		Status:            models.StatusOpen,
		HostID:            job.HostID,
		Address:           job.Address,
		Destination:       job.Destination,
		Notes:             job.Notes,
		CreatedAt:         time.Now(),
		IsRecurring:       true,
		RecurringSchedule: job.RecurringSchedule,
		EstimatedStartTime: &next,
	}

	fields, err := store.Encode(clone)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("encode recurring clone failed")
		return
	}
	if err := s.store.Write(ctx, models.CollectionJobs, clone.ID, fields); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("schedule next occurrence failed")
		return
	}
	s.publish(events.EventJobCreated, clone)
}

func (s *JobService) CancelJob(ctx context.Context, jobID, actorID, reason string) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Terminal() {
		return domain.Conflictf("job %s is already %s", jobID, job.Status)
	}
	// Hard cancel applies to the dispatched lifecycle only; a job still
	// waiting for approval is rejected through the approval flow instead.
	if job.Status == models.StatusPendingApproval {
		return domain.Conflictf("job %s is pending approval, not cancellable", jobID)
	}

	now := time.Now()
	if err := s.store.Write(ctx, models.CollectionJobs, jobID, map[string]any{
		"status":               models.StatusCancelled,
		"cancelled_at":         now.Format(time.RFC3339Nano),
		"cancelled_by":         actorID,
		"cancellation_reason":  reason,
		"worker_priority":      nil,
		"estimated_start_time": nil,
	}); err != nil {
		return err
	}

	if job.WorkerID != "" {
		if err := s.queue.RenumberQueue(ctx, job.WorkerID); err != nil {
			s.logger.Error().Err(err).Str("worker_id", job.WorkerID).Msg("queue renumber after cancel failed")
		}
	}

	metrics.IncTransition(models.StatusCancelled)
	job.Status = models.StatusCancelled
	s.publish(events.EventJobCancelled, job)
	if job.WorkerID != "" {
		s.notify(job.WorkerID, fmt.Sprintf("Pickup at %s was cancelled", job.Address))
	}
	s.enqueueSync(ctx, job)
	return nil
}

// ReturnJobToQueue is the worker-initiated soft cancel: the job goes back
// to the open pool with every worker field cleared, and the rest of the
// worker's queue closes the gap.
func (s *JobService) ReturnJobToQueue(ctx context.Context, jobID string) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Active() {
		return domain.Conflictf("job %s is not in a worker queue", jobID)
	}

	if err := s.queue.RemoveFromQueue(ctx, job.WorkerID, jobID); err != nil {
		return err
	}

	metrics.IncTransition(models.StatusOpen)
	job.Status = models.StatusOpen
	s.publish(events.EventJobReturned, job)
	s.notify(job.HostID, fmt.Sprintf("Pickup at %s is back in the open pool", job.Address))
	return nil
}

func (s *JobService) UpdateWorkerLocation(ctx context.Context, jobID string, location models.LatLng) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.StatusAccepted && job.Status != models.StatusInProgress {
		return domain.Conflictf("job %s is %s, location updates not accepted", jobID, job.Status)
	}

	progress := geo.ProgressPercent(location, job.Destination)
	if err := s.store.Write(ctx, models.CollectionJobs, jobID, map[string]any{
		"worker_location": map[string]any{"lat": location.Lat, "lng": location.Lng},
		"progress":        progress,
	}); err != nil {
		return err
	}

	// Tell the host once, on the update that first brings the worker within
	// the arrival window.
	if job.Status == models.StatusInProgress && job.Progress < 90 {
		if _, arriving := geo.ETAMinutes(geo.DistanceMeters(location, job.Destination)); arriving {
			s.notify(job.HostID, fmt.Sprintf("Worker arriving shortly at %s", job.Address))
		}
	}
	return nil
}

func (s *JobService) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return s.loadJob(ctx, jobID)
}

func (s *JobService) OpenJobs(ctx context.Context) ([]*models.Job, error) {
	docs, err := s.store.Query(ctx, models.CollectionJobs, domain.Filter{"status": models.StatusOpen})
	if err != nil {
		return nil, err
	}
	jobs := make([]*models.Job, 0, len(docs))
	for _, doc := range docs {
		var job models.Job
		if err := store.Decode(doc, &job); err != nil {
			return nil, err
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

func (s *JobService) loadJob(ctx context.Context, jobID string) (*models.Job, error) {
	docs, err := s.store.Query(ctx, models.CollectionJobs, domain.Filter{"id": jobID})
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

func (s *JobService) publish(eventType string, job *models.Job) {
	if s.bus == nil {
		return
	}
	payload := events.JobEventPayload{
		JobID:    job.ID,
		HostID:   job.HostID,
		WorkerID: job.WorkerID,
		Status:   job.Status,
		Address:  job.Address,
		Priority: job.WorkerPriority,
		At:       time.Now(),
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("job_id", job.ID).Msg("publish event error")
	}
}

func (s *JobService) notify(userID, message string) {
	if s.notifier == nil || userID == "" {
		return
	}
	s.notifier.Notify(userID, message)
}

func (s *JobService) enqueueSync(ctx context.Context, job *models.Job) {
	if s.syncWorker == nil {
		return
	}
	if err := s.syncWorker.EnqueueJobSync(ctx, "archive", job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("archive enqueue error")
	}
	if err := s.syncWorker.EnqueueJobSync(ctx, "sheets", job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("sheets enqueue error")
	}
}
