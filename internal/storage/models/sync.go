package models

import (
	"encoding/json"
	"time"
)

// Entity type constants for recorded changes.
const (
	EntityReservation = "reservation"
	EntityTask        = "task"
)

// Change action constants.
const (
	ActionAdd    = "add"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Change describes one local mutation to be mirrored to the remote endpoint.
type Change struct {
	EntityType string          `json:"entity_type"`
	Action     string          `json:"action"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewChange encodes v as the change payload.
func NewChange(entityType, action, entityID string, v any, at time.Time) (Change, error) {
	c := Change{EntityType: entityType, Action: action, EntityID: entityID, Timestamp: at}
	if v != nil {
		payload, err := json.Marshal(v)
		if err != nil {
			return Change{}, err
		}
		c.Payload = payload
	}
	return c, nil
}

// QueueEntry is a Change waiting in the sync queue. Seq is the insertion
// order and therefore the replay order. Version changes each time a newer
// change is coalesced into the entry.
type QueueEntry struct {
	Seq int64 `json:"seq"`
	Change
	Attempts  int     `json:"attempts"`
	LastError *string `json:"last_error,omitempty"`
	Version   int64   `json:"version"`
}

// Connectivity states.
const (
	StateOnline  = "online"
	StateOffline = "offline"
)

// Transition is a connectivity state change.
type Transition struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// FeedResult is the outcome of syncing one property's feed. Stale holds
// the fetch failure when the cached body was used instead.
type FeedResult struct {
	Property     string `json:"property"`
	EventsFound  int    `json:"events_found"`
	Upserted     int    `json:"upserted"`
	FromCache    bool   `json:"from_cache"`
	Error        error  `json:"-"`
	ErrorMessage string `json:"error,omitempty"`
	Stale        error  `json:"-"`
	StaleMessage string `json:"stale,omitempty"`
}

// SyncResult contains the results of a full sync cycle.
type SyncResult struct {
	Feeds            []FeedResult `json:"feeds"`
	TasksCreated     int          `json:"tasks_created"`
	TasksSkipped     int          `json:"tasks_skipped"`
	RecurringCreated int          `json:"recurring_created"`
	DoubleBookings   int          `json:"double_bookings"`
	StartedAt        time.Time    `json:"started_at"`
	SyncedAt         time.Time    `json:"synced_at"`
}

// FailedFeeds counts feeds that could not be fetched.
func (r SyncResult) FailedFeeds() int {
	n := 0
	for _, f := range r.Feeds {
		if f.Error != nil {
			n++
		}
	}
	return n
}

// DrainResult contains the results of replaying the sync queue.
type DrainResult struct {
	Attempted   int  `json:"attempted"`
	Submitted   int  `json:"submitted"`
	Failed      int  `json:"failed"`
	Remaining   int  `json:"remaining"`
	Interrupted bool `json:"interrupted"`
}
