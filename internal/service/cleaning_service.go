package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"curbly/internal/domain"
	"curbly/internal/events"
	"curbly/internal/metrics"
	"curbly/internal/models"
	"curbly/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CleaningService owns the cleaning-job state machine and the bid
// protocol: open -> bidding on the first bid, single-winner acceptance,
// and auto-enrollment of the winning cleaner into the host's roster.
type CleaningService struct {
	store    domain.DocumentStore
	bus      domain.EventPublisher
	notifier domain.Notifier
	unit     time.Duration
	logger   *zerolog.Logger
}

func NewCleaningService(docs domain.DocumentStore, bus domain.EventPublisher, notifier domain.Notifier, logger *zerolog.Logger) *CleaningService {
	return &CleaningService{
		store:    docs,
		bus:      bus,
		notifier: notifier,
		unit:     models.CleaningQueueUnit,
		logger:   logger,
	}
}

func (s *CleaningService) CreateCleaningJob(ctx context.Context, job *models.CleaningJob) (*models.CleaningJob, error) {
	if job.Address == "" {
		return nil, domain.Validationf("cleaning job address is required")
	}
	if job.HostID == "" {
		return nil, domain.Validationf("cleaning job host is required")
	}

	created := *job
	created.ID = uuid.NewString()
	created.Status = models.StatusOpen
	created.CreatedAt = time.Now()
	created.Bids = nil

	fields, err := store.Encode(&created)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(ctx, models.CollectionCleaningJobs, created.ID, fields); err != nil {
		return nil, err
	}
	return &created, nil
}

// PlaceBid appends a bid. The same cleaner may bid more than once on one
// job; the production data contains such rows and nothing deduplicates
// them. The first bid moves an open job into bidding.
func (s *CleaningService) PlaceBid(ctx context.Context, jobID string, bid models.CleaningBid) (*models.CleaningBid, error) {
	if bid.CleanerID == "" {
		return nil, domain.Validationf("bid cleaner id is required")
	}
	if bid.Amount <= 0 {
		return nil, domain.Validationf("bid amount must be positive")
	}

	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.StatusOpen && job.Status != models.StatusBidding {
		return nil, domain.Conflictf("cleaning job %s is %s, not accepting bids", jobID, job.Status)
	}

	bid.ID = uuid.NewString()
	bid.Status = ""
	job.Bids = append(job.Bids, bid)

	fields := map[string]any{"bids": encodeBids(job.Bids)}
	if job.Status == models.StatusOpen {
		fields["status"] = models.StatusBidding
	}
	if err := s.store.Write(ctx, models.CollectionCleaningJobs, jobID, fields); err != nil {
		return nil, err
	}

	metrics.IncBid("placed")
	s.publishBid(events.EventBidPlaced, job, &bid)
	s.notify(job.HostID, fmt.Sprintf("New bid of $%.2f on your cleaning at %s", bid.Amount, job.Address))
	return &bid, nil
}

// AcceptBid is the winner-take-all step: the chosen bid becomes accepted
// and every other bid rejected in the same document write as the job's own
// status change. The roster enrollment and queue stamp that follow are
// separate writes; a failure in between leaves the job accepted without a
// roster entry, which the next acceptance repairs.
func (s *CleaningService) AcceptBid(ctx context.Context, jobID, bidID string) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.StatusOpen && job.Status != models.StatusBidding {
		return domain.Conflictf("cleaning job %s is %s, bids can no longer be accepted", jobID, job.Status)
	}

	var winner *models.CleaningBid
	for i := range job.Bids {
		if job.Bids[i].ID == bidID {
			job.Bids[i].Status = models.BidAccepted
			winner = &job.Bids[i]
		} else {
			job.Bids[i].Status = models.BidRejected
		}
	}
	if winner == nil {
		return domain.NotFoundf("bid %s on cleaning job %s", bidID, jobID)
	}

	now := time.Now()
	priority, err := s.nextCleanerPriority(ctx, winner.CleanerID)
	if err != nil {
		return err
	}
	est := now.Add(time.Duration(priority-1) * s.unit)

	err = s.store.Write(ctx, models.CollectionCleaningJobs, jobID, map[string]any{
		"bids":                  encodeBids(job.Bids),
		"status":                models.StatusAccepted,
		"assigned_cleaner_id":   winner.CleanerID,
		"assigned_cleaner_name": winner.CleanerName,
		"accepted_bid_id":       winner.ID,
		"accepted_bid_amount":   winner.Amount,
		"accepted_at":           now.Format(time.RFC3339Nano),
		"cleaner_priority":      priority,
		"estimated_start_time":  est.Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}

	if err := s.enrollCleaner(ctx, job.HostID, winner); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Str("cleaner_id", winner.CleanerID).Msg("cleaner enrollment failed")
	}

	metrics.IncBid("accepted")
	s.publishBid(events.EventBidAccepted, job, winner)
	s.notify(winner.CleanerID, fmt.Sprintf("Your bid of $%.2f for %s was accepted", winner.Amount, job.Address))
	return nil
}

// enrollCleaner adds the winning cleaner to the host's roster as an active
// primary cleaner unless a member already matches by user ID or exact name.
func (s *CleaningService) enrollCleaner(ctx context.Context, hostID string, winner *models.CleaningBid) error {
	docs, err := s.store.Query(ctx, models.CollectionTeamMembers, domain.Filter{"host_id": hostID})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		var member models.TeamMember
		if err := store.Decode(doc, &member); err != nil {
			return err
		}
		if member.UserID == winner.CleanerID || member.Name == winner.CleanerName {
			return nil
		}
	}

	member := &models.TeamMember{
		ID:            uuid.NewString(),
		HostID:        hostID,
		UserID:        winner.CleanerID,
		Name:          winner.CleanerName,
		Role:          models.RolePrimaryCleaner,
		Status:        models.MemberActive,
		Rating:        winner.Rating,
		CompletedJobs: winner.CompletedJobs,
		CreatedAt:     time.Now(),
	}
	fields, err := store.Encode(member)
	if err != nil {
		return err
	}
	return s.store.Write(ctx, models.CollectionTeamMembers, member.ID, fields)
}

func (s *CleaningService) StartCleaningJob(ctx context.Context, jobID string) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.StatusAccepted {
		return domain.Conflictf("cleaning job %s is %s, not accepted", jobID, job.Status)
	}

	if err := s.store.Write(ctx, models.CollectionCleaningJobs, jobID, map[string]any{
		"status": models.StatusInProgress,
	}); err != nil {
		return err
	}
	s.publishJob(events.EventCleaningStarted, job, models.StatusInProgress)
	return nil
}

func (s *CleaningService) CompleteCleaningJob(ctx context.Context, jobID string) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.StatusInProgress {
		return domain.Conflictf("cleaning job %s is %s, not in progress", jobID, job.Status)
	}

	now := time.Now()
	err = s.store.Write(ctx, models.CollectionCleaningJobs, jobID, map[string]any{
		"status":               models.StatusCompleted,
		"completed_at":         now.Format(time.RFC3339Nano),
		"cleaner_priority":     nil,
		"estimated_start_time": nil,
	})
	if err != nil {
		return err
	}

	if job.AssignedCleanerID != "" {
		if err := s.renumberCleanerQueue(ctx, job.AssignedCleanerID); err != nil {
			s.logger.Error().Err(err).Str("cleaner_id", job.AssignedCleanerID).Msg("cleaner queue renumber failed")
		}
	}
	s.publishJob(events.EventCleaningDone, job, models.StatusCompleted)
	s.notify(job.HostID, fmt.Sprintf("Cleaning at %s is complete", job.Address))
	return nil
}

func (s *CleaningService) CancelCleaningJob(ctx context.Context, jobID, actorID, reason string) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Terminal() {
		return domain.Conflictf("cleaning job %s is already %s", jobID, job.Status)
	}

	now := time.Now()
	err = s.store.Write(ctx, models.CollectionCleaningJobs, jobID, map[string]any{
		"status":               models.StatusCancelled,
		"cancelled_at":         now.Format(time.RFC3339Nano),
		"cancelled_by":         actorID,
		"cancellation_reason":  reason,
		"cleaner_priority":     nil,
		"estimated_start_time": nil,
	})
	if err != nil {
		return err
	}

	if job.AssignedCleanerID != "" {
		if err := s.renumberCleanerQueue(ctx, job.AssignedCleanerID); err != nil {
			s.logger.Error().Err(err).Str("cleaner_id", job.AssignedCleanerID).Msg("cleaner queue renumber failed")
		}
		s.notify(job.AssignedCleanerID, fmt.Sprintf("Cleaning at %s was cancelled", job.Address))
	}
	return nil
}

func (s *CleaningService) GetCleaningJob(ctx context.Context, jobID string) (*models.CleaningJob, error) {
	return s.loadJob(ctx, jobID)
}

// nextCleanerPriority counts the cleaner's current accepted and
// in-progress jobs and appends after them.
func (s *CleaningService) nextCleanerPriority(ctx context.Context, cleanerID string) (int, error) {
	active, err := s.cleanerQueue(ctx, cleanerID)
	if err != nil {
		return 0, err
	}
	return len(active) + 1, nil
}

// renumberCleanerQueue closes gaps in the cleaner's queue with the
// cleaning-domain one-hour slot estimate.
func (s *CleaningService) renumberCleanerQueue(ctx context.Context, cleanerID string) error {
	active, err := s.cleanerQueue(ctx, cleanerID)
	if err != nil {
		return err
	}

	now := time.Now()
	for i, job := range active {
		want := i + 1
		if job.CleanerPriority == want {
			continue
		}
		est := now.Add(time.Duration(want-1) * s.unit)
		err := s.store.Write(ctx, models.CollectionCleaningJobs, job.ID, map[string]any{
			"cleaner_priority":     want,
			"estimated_start_time": est.Format(time.RFC3339Nano),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *CleaningService) cleanerQueue(ctx context.Context, cleanerID string) ([]*models.CleaningJob, error) {
	docs, err := s.store.Query(ctx, models.CollectionCleaningJobs, domain.Filter{"assigned_cleaner_id": cleanerID})
	if err != nil {
		return nil, err
	}

	active := make([]*models.CleaningJob, 0, len(docs))
	for _, doc := range docs {
		var job models.CleaningJob
		if err := store.Decode(doc, &job); err != nil {
			return nil, err
		}
		if job.ActiveForCleaner() {
			active = append(active, &job)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].CleanerPriority < active[j].CleanerPriority
	})
	return active, nil
}

func (s *CleaningService) loadJob(ctx context.Context, jobID string) (*models.CleaningJob, error) {
	docs, err := s.store.Query(ctx, models.CollectionCleaningJobs, domain.Filter{"id": jobID})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, domain.NotFoundf("cleaning job %s", jobID)
	}
	var job models.CleaningJob
	if err := store.Decode(docs[0], &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *CleaningService) notify(userID, message string) {
	if s.notifier == nil || userID == "" {
		return
	}
	s.notifier.Notify(userID, message)
}

func (s *CleaningService) publishBid(eventType string, job *models.CleaningJob, bid *models.CleaningBid) {
	if s.bus == nil {
		return
	}
	payload := events.BidEventPayload{
		JobID:     job.ID,
		BidID:     bid.ID,
		CleanerID: bid.CleanerID,
		HostID:    job.HostID,
		Amount:    bid.Amount,
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("job_id", job.ID).Msg("publish event error")
	}
}

func (s *CleaningService) publishJob(eventType string, job *models.CleaningJob, status string) {
	if s.bus == nil {
		return
	}
	payload := events.JobEventPayload{
		JobID:   job.ID,
		HostID:  job.HostID,
		Status:  status,
		Address: job.Address,
		At:      time.Now(),
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("job_id", job.ID).Msg("publish event error")
	}
}

// encodeBids flattens the bid list for a document write.
func encodeBids(bids []models.CleaningBid) []any {
	out := make([]any, 0, len(bids))
	for i := range bids {
		fields, err := store.Encode(&bids[i])
		if err != nil {
			continue
		}
		out = append(out, fields)
	}
	return out
}
