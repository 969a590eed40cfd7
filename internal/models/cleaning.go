package models

import "time"

// CleaningBid is one cleaner's offer on a cleaning job. Status is empty
// while the bid is pending; the same cleaner may hold several bids on one
// job, the production data allows it.
type CleaningBid struct {
	ID            string  `json:"id"`
	CleanerID     string  `json:"cleaner_id"`
	CleanerName   string  `json:"cleaner_name"`
	Amount        float64 `json:"amount"`
	EstimatedTime string  `json:"estimated_time,omitempty"`
	Message       string  `json:"message,omitempty"`
	Rating        float64 `json:"rating,omitempty"`
	CompletedJobs int     `json:"completed_jobs,omitempty"`
	Status        string  `json:"status,omitempty"`
}

// CleaningJob is a cleaning job document with its embedded bid list.
//
// AssignedTeamMemberID is set even for roster members without a registered
// account; AssignedCleanerID only ever holds a real user ID.
type CleaningJob struct {
	ID                   string        `json:"id"`
	HostID               string        `json:"host_id"`
	Address              string        `json:"address"`
	Destination          LatLng        `json:"destination"`
	Status               string        `json:"status"`
	Bids                 []CleaningBid `json:"bids,omitempty"`
	AssignedCleanerID    string        `json:"assigned_cleaner_id,omitempty"`
	AssignedCleanerName  string        `json:"assigned_cleaner_name,omitempty"`
	AssignedTeamMemberID string        `json:"assigned_team_member_id,omitempty"`
	AcceptedBidID        string        `json:"accepted_bid_id,omitempty"`
	AcceptedBidAmount    float64       `json:"accepted_bid_amount,omitempty"`
	AcceptedAt           *time.Time    `json:"accepted_at,omitempty"`
	CleanerPriority      int           `json:"cleaner_priority,omitempty"`
	EstimatedStartTime   *time.Time    `json:"estimated_start_time,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
	CancelledAt          *time.Time    `json:"cancelled_at,omitempty"`

	// Calendar-feed fields. Presence means the job was sourced from an
	// external reservation feed rather than created by hand.
	PreferredDate *time.Time `json:"preferred_date,omitempty"`
	CheckInDate   *time.Time `json:"check_in_date,omitempty"`
	CheckOutDate  *time.Time `json:"check_out_date,omitempty"`
	GuestName     string     `json:"guest_name,omitempty"`
}

// Terminal reports whether the cleaning job can never transition again.
func (c *CleaningJob) Terminal() bool {
	return c.Status == StatusCompleted || c.Status == StatusCancelled
}

// ActiveForCleaner reports whether the job occupies a slot in the assigned
// cleaner's queue.
func (c *CleaningJob) ActiveForCleaner() bool {
	return c.AssignedCleanerID != "" && (c.Status == StatusAccepted || c.Status == StatusInProgress)
}

// AcceptedBid returns the winning bid, or nil before acceptance.
func (c *CleaningJob) AcceptedBid() *CleaningBid {
	for i := range c.Bids {
		if c.Bids[i].Status == BidAccepted {
			return &c.Bids[i]
		}
	}
	return nil
}
