package coordinator

import "github.com/Martyparty1988/Martyai/internal/storage/models"

// Notifier receives user-visible sync events.
type Notifier interface {
	SyncCompleted(result models.SyncResult)
	FeedError(property string, err error)
	ConnectivityChanged(t models.Transition)
	QueueDrained(result models.DrainResult)
	ChangeRecorded(c models.Change)
}

type nopNotifier struct{}

func (nopNotifier) SyncCompleted(models.SyncResult)       {}
func (nopNotifier) FeedError(string, error)               {}
func (nopNotifier) ConnectivityChanged(models.Transition) {}
func (nopNotifier) QueueDrained(models.DrainResult)       {}
func (nopNotifier) ChangeRecorded(models.Change)          {}
