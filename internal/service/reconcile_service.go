package service

import (
	"context"
	"strings"

	"curbly/internal/domain"
	"curbly/internal/events"
	"curbly/internal/metrics"
	"curbly/internal/models"
	"curbly/internal/store"

	"github.com/rs/zerolog"
)

// SpaceMatcher is the default address matcher: lowercase, inner whitespace
// collapsed. Two different spellings of the same physical address will not
// match; that is string matching's known limit, swapped out by providing a
// different AddressMatcher.
type SpaceMatcher struct{}

func (SpaceMatcher) Normalize(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

// ReconcileService walks cleaning jobs after a host edits a roster
// member's assigned-property set, unassigning jobs for removed properties
// and assigning open jobs at added ones. Only primary cleaners take part
// in auto-assignment; secondary cleaners and trash services are managed by
// hand.
type ReconcileService struct {
	store   domain.DocumentStore
	matcher domain.AddressMatcher
	bus     domain.EventPublisher
	logger  *zerolog.Logger
}

func NewReconcileService(docs domain.DocumentStore, matcher domain.AddressMatcher, bus domain.EventPublisher, logger *zerolog.Logger) *ReconcileService {
	if matcher == nil {
		matcher = SpaceMatcher{}
	}
	return &ReconcileService{store: docs, matcher: matcher, bus: bus, logger: logger}
}

func (s *ReconcileService) ReconcileAssignments(ctx context.Context, memberID string, previous, next []string) error {
	member, err := s.loadMember(ctx, memberID)
	if err != nil {
		return err
	}

	member, err = s.backfillUserID(ctx, member)
	if err != nil {
		s.logger.Warn().Err(err).Str("member_id", memberID).Msg("user id backfill failed")
	}

	removed := difference(previous, next)
	added := difference(next, previous)

	if member.Role == models.RolePrimaryCleaner {
		if len(removed) > 0 {
			if err := s.unassignSweep(ctx, member, removed); err != nil {
				return err
			}
		}
		if len(added) > 0 {
			if err := s.assignSweep(ctx, member, added); err != nil {
				return err
			}
		}
	}

	if err := s.store.Write(ctx, models.CollectionTeamMembers, memberID, map[string]any{
		"assigned_properties": toAny(next),
	}); err != nil {
		return err
	}

	if s.bus != nil {
		_ = s.bus.PublishJSON(events.EventTeamReconciled, map[string]any{
			"member_id": memberID,
			"added":     added,
			"removed":   removed,
		})
	}
	return nil
}

// RemoveTeamMember runs the unassignment sweep over every non-terminal
// cleaning job still pointing at the member, then deletes the roster entry.
func (s *ReconcileService) RemoveTeamMember(ctx context.Context, memberID string) error {
	member, err := s.loadMember(ctx, memberID)
	if err != nil {
		return err
	}

	jobs, err := s.nonTerminalCleaningJobs(ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if !s.assignedTo(job, member) {
			continue
		}
		if err := s.clearAssignment(ctx, job); err != nil {
			return err
		}
	}

	return s.store.Delete(ctx, models.CollectionTeamMembers, memberID)
}

// backfillUserID links an unregistered member to a real account by email,
// once. The roster keeps working without the link; assignment just can't
// populate AssignedCleanerID until it exists.
func (s *ReconcileService) backfillUserID(ctx context.Context, member *models.TeamMember) (*models.TeamMember, error) {
	if member.UserID != "" || member.Email == "" {
		return member, nil
	}

	docs, err := s.store.Query(ctx, models.CollectionUsers, domain.Filter{"email": member.Email})
	if err != nil {
		return member, err
	}
	if len(docs) == 0 {
		return member, nil
	}

	var user models.User
	if err := store.Decode(docs[0], &user); err != nil {
		return member, err
	}

	if err := s.store.Write(ctx, models.CollectionTeamMembers, member.ID, map[string]any{
		"user_id": user.UID,
	}); err != nil {
		return member, err
	}
	member.UserID = user.UID
	return member, nil
}

func (s *ReconcileService) unassignSweep(ctx context.Context, member *models.TeamMember, removedProperties []string) error {
	addresses, err := s.propertyAddresses(ctx, removedProperties)
	if err != nil {
		return err
	}

	jobs, err := s.nonTerminalCleaningJobs(ctx)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if !addresses[s.matcher.Normalize(job.Address)] {
			continue
		}
		if !s.assignedTo(job, member) {
			continue
		}
		if err := s.clearAssignment(ctx, job); err != nil {
			return err
		}
		metrics.IncReconcile("unassign")
	}
	return nil
}

func (s *ReconcileService) assignSweep(ctx context.Context, member *models.TeamMember, addedProperties []string) error {
	addresses, err := s.propertyAddresses(ctx, addedProperties)
	if err != nil {
		return err
	}

	// Resolve the display name from the linked account when one exists so
	// a stale roster spelling doesn't propagate into jobs.
	name := member.Name
	if member.UserID != "" {
		if docs, err := s.store.Query(ctx, models.CollectionUsers, domain.Filter{"uid": member.UserID}); err == nil && len(docs) > 0 {
			var user models.User
			if err := store.Decode(docs[0], &user); err == nil && user.FullName() != "" {
				name = user.FullName()
			}
		}
	}

	jobs, err := s.nonTerminalCleaningJobs(ctx)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if !addresses[s.matcher.Normalize(job.Address)] {
			continue
		}
		if job.AssignedTeamMemberID == member.ID && job.AssignedCleanerName == name {
			continue // already ours, keep the sweep idempotent
		}

		fields := map[string]any{
			"assigned_team_member_id": member.ID,
			"assigned_cleaner_name":   name,
		}
		// AssignedCleanerID is reserved for real accounts; a roster-row ID
		// in that field would orphan the reference on the next rename.
		if member.UserID != "" {
			fields["assigned_cleaner_id"] = member.UserID
		}
		if job.Status == models.StatusOpen {
			fields["status"] = models.StatusAccepted
		}
		if err := s.store.Write(ctx, models.CollectionCleaningJobs, job.ID, fields); err != nil {
			return err
		}
		metrics.IncReconcile("assign")
	}
	return nil
}

func (s *ReconcileService) clearAssignment(ctx context.Context, job *models.CleaningJob) error {
	return s.store.Write(ctx, models.CollectionCleaningJobs, job.ID, map[string]any{
		"assigned_cleaner_id":     nil,
		"assigned_cleaner_name":   nil,
		"assigned_team_member_id": nil,
		"status":                  models.StatusOpen,
	})
}

// assignedTo matches any of the three assignment fields, covering both
// registered and unregistered members.
func (s *ReconcileService) assignedTo(job *models.CleaningJob, member *models.TeamMember) bool {
	if job.AssignedTeamMemberID != "" && job.AssignedTeamMemberID == member.ID {
		return true
	}
	if member.UserID != "" && job.AssignedCleanerID == member.UserID {
		return true
	}
	return job.AssignedCleanerName != "" && job.AssignedCleanerName == member.Name
}

func (s *ReconcileService) propertyAddresses(ctx context.Context, propertyIDs []string) (map[string]bool, error) {
	addresses := make(map[string]bool, len(propertyIDs))
	for _, id := range propertyIDs {
		docs, err := s.store.Query(ctx, models.CollectionProperties, domain.Filter{"id": id})
		if err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			continue
		}
		var prop models.Property
		if err := store.Decode(docs[0], &prop); err != nil {
			return nil, err
		}
		addresses[s.matcher.Normalize(prop.Address)] = true
	}
	return addresses, nil
}

func (s *ReconcileService) nonTerminalCleaningJobs(ctx context.Context) ([]*models.CleaningJob, error) {
	docs, err := s.store.Query(ctx, models.CollectionCleaningJobs, nil)
	if err != nil {
		return nil, err
	}
	jobs := make([]*models.CleaningJob, 0, len(docs))
	for _, doc := range docs {
		var job models.CleaningJob
		if err := store.Decode(doc, &job); err != nil {
			return nil, err
		}
		if job.Terminal() {
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

func (s *ReconcileService) loadMember(ctx context.Context, memberID string) (*models.TeamMember, error) {
	docs, err := s.store.Query(ctx, models.CollectionTeamMembers, domain.Filter{"id": memberID})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, domain.NotFoundf("team member %s", memberID)
	}
	var member models.TeamMember
	if err := store.Decode(docs[0], &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func difference(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, v := range b {
		inB[v] = true
	}
	out := make([]string, 0)
	for _, v := range a {
		if !inB[v] {
			out = append(out, v)
		}
	}
	return out
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
