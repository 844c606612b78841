package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rickgao/pointfarm/internal/config"
	"github.com/rickgao/pointfarm/internal/model"
)

// Publisher receives point updates from live sessions.
type Publisher interface {
	PublishPoints(ctx context.Context, upd model.PointsUpdate) error
	Close() error
}

// New returns a Kafka publisher when brokers are configured, else a no-op.
func New(cfg config.EventsConfig, logger *slog.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		return Nop{}
	}
	return NewKafka(cfg, logger)
}

// Nop discards every update.
type Nop struct{}

// PublishPoints implements Publisher.
func (Nop) PublishPoints(context.Context, model.PointsUpdate) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// Kafka publishes updates to a Kafka topic. Writes are asynchronous and
// delivery failures are logged from the completion callback.
type Kafka struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafka creates an async Kafka writer for cfg.Topic.
func NewKafka(cfg config.EventsConfig, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("topic", cfg.Topic)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           250 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("point events not delivered", "count", len(messages), "error", err)
			}
		},
	}
	return &Kafka{writer: writer, logger: logger}
}

// PublishPoints enqueues one update.
func (k *Kafka) PublishPoints(ctx context.Context, upd model.PointsUpdate) error {
	msg, err := encode(upd)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

func encode(upd model.PointsUpdate) (kafka.Message, error) {
	value, err := json.Marshal(upd)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal points update: %w", err)
	}
	return kafka.Message{
		Key:   []byte(upd.WalletAddress),
		Value: value,
		Time:  upd.ReceivedAt,
	}, nil
}
