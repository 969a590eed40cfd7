package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventJobCreated      = "job_created"
	EventJobApproved     = "job_approved"
	EventJobAccepted     = "job_accepted"
	EventJobStarted      = "job_started"
	EventJobCompleted    = "job_completed"
	EventJobCancelled    = "job_cancelled"
	EventJobReturned     = "job_returned"
	EventBidPlaced       = "bid_placed"
	EventBidAccepted     = "bid_accepted"
	EventCleaningStarted = "cleaning_started"
	EventCleaningDone    = "cleaning_completed"
	EventTeamReconciled  = "team_reconciled"
)

// JobEventPayload is the minimal job snapshot handed to event consumers.
type JobEventPayload struct {
	JobID    string    `json:"job_id"`
	HostID   string    `json:"host_id"`
	WorkerID string    `json:"worker_id,omitempty"`
	Status   string    `json:"status"`
	Address  string    `json:"address,omitempty"`
	Priority int       `json:"priority,omitempty"`
	At       time.Time `json:"at"`
}

// BidEventPayload describes a bid placed or accepted on a cleaning job.
type BidEventPayload struct {
	JobID     string  `json:"job_id"`
	BidID     string  `json:"bid_id"`
	CleanerID string  `json:"cleaner_id"`
	HostID    string  `json:"host_id"`
	Amount    float64 `json:"amount"`
}

// Event is a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub. Handlers run synchronously on the
// publisher's goroutine; the caller decides the concurrency model.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
