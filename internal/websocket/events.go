package websocket

import (
	"context"
	"fmt"

	"github.com/Martyparty1988/Martyai/internal/logging"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// EventBroadcaster turns sync events into WebSocket messages.
type EventBroadcaster struct {
	hub *Hub
	log logging.Logger
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub, log logging.Logger) *EventBroadcaster {
	return &EventBroadcaster{hub: hub, log: log}
}

// SyncCompleted sends a sync.completed event.
func (b *EventBroadcaster) SyncCompleted(result models.SyncResult) {
	payload := SyncCompletedPayload{
		Feeds:            make([]FeedSummary, 0, len(result.Feeds)),
		TasksCreated:     result.TasksCreated,
		RecurringCreated: result.RecurringCreated,
		DoubleBookings:   result.DoubleBookings,
		SyncedAt:         result.SyncedAt,
	}
	for _, f := range result.Feeds {
		s := FeedSummary{
			Property:    f.Property,
			Status:      "success",
			EventsFound: f.EventsFound,
			FromCache:   f.FromCache,
		}
		switch {
		case f.Error != nil:
			s.Status = "error"
			s.Error = f.ErrorMessage
		case f.Stale != nil:
			s.Status = "stale"
			s.Error = f.StaleMessage
		}
		payload.Feeds = append(payload.Feeds, s)
	}

	b.broadcast(NewMessage(TypeSyncCompleted, payload))
	if result.DoubleBookings > 0 {
		b.Notify("warning", "Double booking", fmt.Sprintf("%d overlapping reservations found. Check the calendars.", result.DoubleBookings))
	}
}

// FeedError sends a sync.feed_error event and a user-visible notification.
func (b *EventBroadcaster) FeedError(property string, err error) {
	b.broadcast(NewMessage(TypeSyncFeedError, FeedErrorPayload{
		Property: property,
		Error:    "feed_error",
		Message:  err.Error(),
	}))
	b.Notify("warning", "Calendar sync failed", fmt.Sprintf("Could not refresh the calendar of %s. Showing last known bookings.", property))
}

// ConnectivityChanged sends a connectivity.changed event.
func (b *EventBroadcaster) ConnectivityChanged(t models.Transition) {
	b.broadcast(NewMessage(TypeConnectivityChanged, ConnectivityPayload{From: t.From, To: t.To, At: t.At}))
	if t.To == models.StateOffline {
		b.Notify("info", "Working offline", "Changes are saved locally and sent when the connection returns.")
	}
}

// QueueDrained sends a queue.drained event.
func (b *EventBroadcaster) QueueDrained(result models.DrainResult) {
	b.broadcast(NewMessage(TypeQueueDrained, QueueDrainedPayload{
		Submitted: result.Submitted,
		Failed:    result.Failed,
		Remaining: result.Remaining,
	}))
	if result.Failed > 0 {
		b.Notify("warning", "Some changes were not synced", fmt.Sprintf("%d changes are still waiting to be sent.", result.Remaining))
	}
}

// ChangeRecorded sends a task.changed or reservation.changed event.
func (b *EventBroadcaster) ChangeRecorded(c models.Change) {
	msgType := TypeTaskChanged
	if c.EntityType == models.EntityReservation {
		msgType = TypeReservationChanged
	}
	b.broadcast(NewMessage(msgType, ChangePayload{Action: c.Action, EntityID: c.EntityID, Data: c.Payload}))
}

// Notify sends a notification to all connected clients.
func (b *EventBroadcaster) Notify(level, title, message string) {
	b.broadcast(NewMessage(TypeNotification, NotificationPayload{
		Level:       level,
		Title:       title,
		Message:     message,
		Dismissible: true,
	}))
}

// broadcast sends a message to all connected clients.
func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		b.log.Error(context.Background(), "encoding websocket message", "type", msg.Type, "error", err)
		return
	}

	b.hub.Broadcast(data)
}
