package models

import "time"

// Trash-pickup job statuses.
const (
	StatusOpen            = "open"
	StatusPendingApproval = "pending_approval"
	StatusAccepted        = "accepted"
	StatusInProgress      = "in_progress"
	StatusCompleted       = "completed"
	StatusCancelled       = "cancelled"
)

// Cleaning-job extra status: a job enters bidding on the first bid.
const StatusBidding = "bidding"

// Bid statuses. A bid without a status is pending.
const (
	BidAccepted = "accepted"
	BidRejected = "rejected"
)

// Team member roles.
const (
	RolePrimaryCleaner   = "primary_cleaner"
	RoleSecondaryCleaner = "secondary_cleaner"
	RoleTrashService     = "trash_service"
)

// Team member statuses.
const (
	MemberActive   = "active"
	MemberInactive = "inactive"
)

// Actor roles from the identity provider.
const (
	ActorHost    = "host"
	ActorWorker  = "worker"
	ActorCleaner = "cleaner"
	ActorAdmin   = "admin"
)

// Document store collections.
const (
	CollectionJobs         = "jobs"
	CollectionCleaningJobs = "cleaning_jobs"
	CollectionTeamMembers  = "team_members"
	CollectionProperties   = "properties"
	CollectionUsers        = "users"
)

const (
	// TrashQueueUnit is the per-slot estimate used when renumbering a
	// worker's pickup queue.
	TrashQueueUnit = 15 * time.Minute

	// CleaningQueueUnit is the per-slot estimate for cleaner queues.
	// The trash and cleaning units differ on purpose: both values are
	// carried over from the production system unchanged.
	CleaningQueueUnit = time.Hour

	// MetersPerMile converts haversine output for radius checks.
	MetersPerMile = 1609.34

	// DefaultRadiusMiles bounds the open-job pool shown to a worker.
	DefaultRadiusMiles = 10.0

	// ProgressCeilingMeters is the distance at which trip progress reads 0%.
	ProgressCeilingMeters = 5000.0

	// AverageSpeedKmh feeds the ETA estimate.
	AverageSpeedKmh = 30.0

	// SyncQueueSize bounds the in-memory sync task queue.
	SyncQueueSize = 256

	// RateLimitRPS / RateLimitBurst are API rate limit defaults.
	RateLimitRPS   = 10.0
	RateLimitBurst = 20
)
