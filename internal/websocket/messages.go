package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeSyncCompleted       MessageType = "sync.completed"
	TypeSyncFeedError       MessageType = "sync.feed_error"
	TypeConnectivityChanged MessageType = "connectivity.changed"
	TypeQueueDrained        MessageType = "queue.drained"
	TypeTaskChanged         MessageType = "task.changed"
	TypeReservationChanged  MessageType = "reservation.changed"
	TypeNotification        MessageType = "notification"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// FeedSummary is one feed's line in a sync.completed payload.
type FeedSummary struct {
	Property    string `json:"property"`
	Status      string `json:"status"` // "success", "stale" or "error"
	EventsFound int    `json:"events_found"`
	FromCache   bool   `json:"from_cache"`
	Error       string `json:"error,omitempty"`
}

// SyncCompletedPayload is the payload for sync.completed events.
type SyncCompletedPayload struct {
	Feeds            []FeedSummary `json:"feeds"`
	TasksCreated     int           `json:"tasks_created"`
	RecurringCreated int           `json:"recurring_created"`
	DoubleBookings   int           `json:"double_bookings"`
	SyncedAt         time.Time     `json:"synced_at"`
}

// FeedErrorPayload is the payload for sync.feed_error events.
type FeedErrorPayload struct {
	Property string `json:"property"`
	Error    string `json:"error"`
	Message  string `json:"message"`
}

// ConnectivityPayload is the payload for connectivity.changed events.
type ConnectivityPayload struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// QueueDrainedPayload is the payload for queue.drained events.
type QueueDrainedPayload struct {
	Submitted int `json:"submitted"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// ChangePayload is the payload for task.changed and reservation.changed events.
type ChangePayload struct {
	Action   string          `json:"action"`
	EntityID string          `json:"entity_id"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level       string `json:"level"` // info, warning, error, success
	Title       string `json:"title"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
