package models

import "time"

// TeamMember is an entry in a host's service roster. UserID stays empty
// until the member is linked to a registered account; Email is kept so the
// reconciler can backfill the link later.
type TeamMember struct {
	ID                 string    `json:"id"`
	HostID             string    `json:"host_id"`
	UserID             string    `json:"user_id,omitempty"`
	Name               string    `json:"name"`
	Email              string    `json:"email,omitempty"`
	Role               string    `json:"role"`
	Status             string    `json:"status"`
	AssignedProperties []string  `json:"assigned_properties,omitempty"`
	Rating             float64   `json:"rating,omitempty"`
	CompletedJobs      int       `json:"completed_jobs,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Registered reports whether the member is linked to a real account.
func (m *TeamMember) Registered() bool {
	return m.UserID != ""
}

// HasProperty reports membership of a property ID in the assigned set.
func (m *TeamMember) HasProperty(propertyID string) bool {
	for _, id := range m.AssignedProperties {
		if id == propertyID {
			return true
		}
	}
	return false
}
