// Package remote delivers recorded changes to the remote sync endpoint.
package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Martyparty1988/Martyai/internal/config"
	"github.com/Martyparty1988/Martyai/internal/logging"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// Remote kinds.
const (
	KindLog   = "log"
	KindHTTP  = "http"
	KindKafka = "kafka"
	KindRedis = "redis"
)

// Submitter replays one change against the remote endpoint.
type Submitter interface {
	Submit(ctx context.Context, entry models.QueueEntry) error
	// Ping reports whether the remote endpoint is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// New builds the submitter selected by cfg.Kind.
func New(cfg config.RemoteConfig, log logging.Logger) (Submitter, error) {
	switch cfg.Kind {
	case "", KindLog:
		return NewLogSubmitter(log), nil
	case KindHTTP:
		return NewHTTPSubmitter(cfg)
	case KindKafka:
		return NewKafkaSubmitter(cfg)
	case KindRedis:
		return NewRedisSubmitter(cfg)
	default:
		return nil, fmt.Errorf("unknown remote kind %q", cfg.Kind)
	}
}

// envelope is the wire form of a replayed change.
type envelope struct {
	Seq        int64           `json:"seq,omitempty"`
	EntityType string          `json:"entity_type"`
	Action     string          `json:"action"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  string          `json:"timestamp"`
	Attempts   int             `json:"attempts"`
}

func encode(entry models.QueueEntry) ([]byte, error) {
	body, err := json.Marshal(envelope{
		Seq:        entry.Seq,
		EntityType: entry.EntityType,
		Action:     entry.Action,
		EntityID:   entry.EntityID,
		Payload:    entry.Payload,
		Timestamp:  entry.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Attempts:   entry.Attempts,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding change: %w", err)
	}
	return body, nil
}

func key(entry models.QueueEntry) string {
	return entry.EntityType + ":" + entry.EntityID
}

// LogSubmitter accepts every change and only logs it. It is used when no
// remote endpoint is configured.
type LogSubmitter struct {
	log logging.Logger
}

// NewLogSubmitter creates a log-only submitter.
func NewLogSubmitter(log logging.Logger) *LogSubmitter {
	return &LogSubmitter{log: log}
}

func (s *LogSubmitter) Submit(ctx context.Context, entry models.QueueEntry) error {
	s.log.Debug(ctx, "change submitted", "entity", key(entry), "action", entry.Action, "seq", entry.Seq)
	return nil
}

func (s *LogSubmitter) Ping(context.Context) error { return nil }

func (s *LogSubmitter) Close() error { return nil }
