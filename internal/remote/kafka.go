package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/Martyparty1988/Martyai/internal/config"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// KafkaSubmitter publishes each change to a Kafka topic, keyed by entity
// so changes to one entity stay on one partition.
type KafkaSubmitter struct {
	brokers []string
	writer  *kafka.Writer
}

// NewKafkaSubmitter creates a synchronous Kafka writer.
func NewKafkaSubmitter(cfg config.RemoteConfig) (*KafkaSubmitter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("remote brokers are required for the kafka backend")
	}
	if cfg.Topic == "" {
		return nil, errors.New("remote topic is required for the kafka backend")
	}

	return &KafkaSubmitter{
		brokers: cfg.Brokers,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}, nil
}

func (s *KafkaSubmitter) Submit(ctx context.Context, entry models.QueueEntry) error {
	msg, err := kafkaMessage(entry)
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing change: %w", err)
	}
	return nil
}

func kafkaMessage(entry models.QueueEntry) (kafka.Message, error) {
	value, err := encode(entry)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(key(entry)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(entry.Action)},
		},
	}, nil
}

// Ping dials the first broker.
func (s *KafkaSubmitter) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", s.brokers[0])
	if err != nil {
		return fmt.Errorf("dialing kafka: %w", err)
	}
	return conn.Close()
}

func (s *KafkaSubmitter) Close() error {
	return s.writer.Close()
}
