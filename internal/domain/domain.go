// Package domain declares the interfaces every component is wired through.
// Concrete stores, services and collaborators are injected; nothing in the
// core reaches for a global.
package domain

import (
	"context"
	"time"

	"curbly/internal/models"
)

// Document is a loosely-typed persisted record: an ID plus a field bag.
// New optional fields may appear without migration; absence means null.
type Document struct {
	ID     string
	Fields map[string]any
}

// Filter matches documents whose fields equal every listed value.
type Filter map[string]any

// DocumentStore is the external synchronization backend. Write has upsert
// semantics and applies a partial field set; there is no multi-document
// transaction. Subscribe pushes full collection snapshots, at least once,
// with no cross-document ordering guarantee; the channel closes when the
// context is cancelled.
type DocumentStore interface {
	Query(ctx context.Context, collection string, filter Filter) ([]Document, error)
	Write(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Subscribe(ctx context.Context, collection string, filter Filter) (<-chan []Document, error)
}

// GeocodeResult is a resolved address.
type GeocodeResult struct {
	FullAddress string
	Coordinates models.LatLng
}

// Geocoder resolves a free-form address string. A nil result with nil error
// means the address could not be resolved; callers substitute jittered
// synthetic coordinates near a configured default instead of failing.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*GeocodeResult, error)
}

// Notifier is a fire-and-forget notification sink. No delivery guarantee.
type Notifier interface {
	Notify(userID, message string)
}

// EventPublisher fans domain events out to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// SyncWorker accepts background sync tasks (archive, sheets mirror) for
// jobs that reached a terminal state.
type SyncWorker interface {
	EnqueueJobSync(ctx context.Context, taskType string, job *models.Job) error
}

// AddressMatcher normalizes address strings before equality comparison.
// The default lowercases and collapses whitespace; a geocode-canonicalizing
// matcher can be swapped in without touching the reconciler.
type AddressMatcher interface {
	Normalize(address string) string
}

// JobService owns the trash-pickup lifecycle.
type JobService interface {
	CreateJob(ctx context.Context, input CreateJobInput) (*models.Job, error)
	ApproveJob(ctx context.Context, jobID string) error
	AcceptJob(ctx context.Context, jobID, workerID string, startLocation models.LatLng) error
	StartJob(ctx context.Context, jobID string) error
	CompleteJob(ctx context.Context, jobID string) error
	CancelJob(ctx context.Context, jobID, actorID, reason string) error
	ReturnJobToQueue(ctx context.Context, jobID string) error
	UpdateWorkerLocation(ctx context.Context, jobID string, location models.LatLng) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	OpenJobs(ctx context.Context) ([]*models.Job, error)
}

// CreateJobInput carries the host-provided fields for a new pickup.
type CreateJobInput struct {
	HostID        string
	Address       string
	Destination   *models.LatLng
	Notes         string
	NeedsApproval bool
	IsRecurring   bool
	Schedule      *models.RecurringSchedule
}

// QueueManager keeps each worker's priority sequence gapless.
type QueueManager interface {
	AssignPriority(ctx context.Context, workerID, jobID string) (int, error)
	RemoveFromQueue(ctx context.Context, workerID, jobID string) error
	RenumberQueue(ctx context.Context, workerID string) error
	CurrentJob(ctx context.Context, workerID string) (*models.Job, error)
	WorkerQueue(ctx context.Context, workerID string) ([]*models.Job, error)
}

// CleaningService owns the cleaning-job bid protocol.
type CleaningService interface {
	CreateCleaningJob(ctx context.Context, job *models.CleaningJob) (*models.CleaningJob, error)
	PlaceBid(ctx context.Context, jobID string, bid models.CleaningBid) (*models.CleaningBid, error)
	AcceptBid(ctx context.Context, jobID, bidID string) error
	StartCleaningJob(ctx context.Context, jobID string) error
	CompleteCleaningJob(ctx context.Context, jobID string) error
	CancelCleaningJob(ctx context.Context, jobID, actorID, reason string) error
	GetCleaningJob(ctx context.Context, jobID string) (*models.CleaningJob, error)
}

// Reconciler keeps cleaning-job assignment fields consistent with the
// host's roster.
type Reconciler interface {
	ReconcileAssignments(ctx context.Context, memberID string, previous, next []string) error
	RemoveTeamMember(ctx context.Context, memberID string) error
}

// Archiver records terminal jobs for reporting.
type Archiver interface {
	ArchiveJob(ctx context.Context, job *models.Job) error
	ListArchived(ctx context.Context, status string, since time.Time) ([]*models.Job, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}
