// Package coordinator runs the sync cycle and replays queued changes when
// the remote endpoint becomes reachable.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// Pinger checks remote reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor holds the connectivity state and fans transitions out to
// subscribers.
type Monitor struct {
	mu     sync.RWMutex
	online bool
	since  time.Time
	subs   []chan models.Transition
	now    func() time.Time
}

// NewMonitor creates a monitor in the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online, since: time.Now().UTC(), now: time.Now}
}

// Online reports whether the remote endpoint is considered reachable.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// State returns StateOnline or StateOffline and when it was entered.
func (m *Monitor) State() (string, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return stateName(m.online), m.since
}

// Subscribe returns a channel receiving every later transition. When a
// subscriber's buffer is full its oldest pending transition is dropped, so
// the latest one is always delivered.
func (m *Monitor) Subscribe(buffer int) <-chan models.Transition {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.Transition, buffer)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Set changes the state and reports whether it changed.
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return false
	}

	t := models.Transition{
		From: stateName(m.online),
		To:   stateName(online),
		At:   m.now().UTC(),
	}
	m.online = online
	m.since = t.At

	for _, ch := range m.subs {
		deliver(ch, t)
	}
	return true
}

// Probe pings the remote and sets the state from the outcome.
func (m *Monitor) Probe(ctx context.Context, p Pinger) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	online := p.Ping(ctx) == nil
	m.Set(online)
	return online
}

func deliver(ch chan models.Transition, t models.Transition) {
	for {
		select {
		case ch <- t:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func stateName(online bool) string {
	if online {
		return models.StateOnline
	}
	return models.StateOffline
}
