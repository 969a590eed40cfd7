package models

import "time"

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether the coordinate was never set. The null island
// origin is not a valid pickup location in this system.
func (p LatLng) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

// RecurringSchedule describes how a recurring pickup repeats.
// DaysOfWeek uses time.Weekday values and applies to weekly frequency only.
type RecurringSchedule struct {
	Frequency  string `json:"frequency"` // daily, weekly
	DaysOfWeek []int  `json:"days_of_week,omitempty"`
	Active     bool   `json:"active"`
}

// NextOccurrence returns the first occurrence strictly after the given time,
// or the zero time when the schedule is inactive or malformed.
func (s RecurringSchedule) NextOccurrence(after time.Time) time.Time {
	if !s.Active {
		return time.Time{}
	}
	switch s.Frequency {
	case "daily":
		return after.AddDate(0, 0, 1)
	case "weekly":
		if len(s.DaysOfWeek) == 0 {
			return after.AddDate(0, 0, 7)
		}
		wanted := make(map[int]bool, len(s.DaysOfWeek))
		for _, d := range s.DaysOfWeek {
			wanted[d] = true
		}
		for i := 1; i <= 7; i++ {
			candidate := after.AddDate(0, 0, i)
			if wanted[int(candidate.Weekday())] {
				return candidate
			}
		}
	}
	return time.Time{}
}

// Job is a trash-pickup job document.
//
// WorkerPriority is defined only while WorkerID is set and the status is
// accepted or in_progress; a worker's priorities always form a contiguous
// 1-based sequence.
type Job struct {
	ID                 string             `json:"id"`
	Status             string             `json:"status"`
	HostID             string             `json:"host_id"`
	WorkerID           string             `json:"worker_id,omitempty"`
	Address            string             `json:"address"`
	Destination        LatLng             `json:"destination"`
	Notes              string             `json:"notes,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	AcceptedAt         *time.Time         `json:"accepted_at,omitempty"`
	CompletedAt        *time.Time         `json:"completed_at,omitempty"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty"`
	CancelledBy        string             `json:"cancelled_by,omitempty"`
	CancellationReason string             `json:"cancellation_reason,omitempty"`
	StartLocation      *LatLng            `json:"start_location,omitempty"`
	WorkerLocation     *LatLng            `json:"worker_location,omitempty"`
	Progress           int                `json:"progress"`
	WorkerPriority     int                `json:"worker_priority,omitempty"`
	EstimatedStartTime *time.Time         `json:"estimated_start_time,omitempty"`
	IsRecurring        bool               `json:"is_recurring,omitempty"`
	RecurringSchedule  *RecurringSchedule `json:"recurring_schedule,omitempty"`
	NeedsApproval      bool               `json:"needs_approval,omitempty"`
}

// Active reports whether the job occupies a slot in its worker's queue.
func (j *Job) Active() bool {
	return j.WorkerID != "" && (j.Status == StatusAccepted || j.Status == StatusInProgress)
}

// Terminal reports whether the job can never transition again.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusCancelled
}
