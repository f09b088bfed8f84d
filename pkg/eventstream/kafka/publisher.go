// Package kafka publishes turn events to a Kafka topic. Events are JSON
// encoded and keyed by conversation identifier so a single conversation's
// turns land on one partition in order.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/eventstream"
)

// Config holds the Kafka publisher settings.
type Config struct {
	Brokers []string
	Topic   string
}

// Publisher writes turn events to Kafka.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewPublisher creates a Kafka-backed eventstream publisher.
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}

	return &Publisher{
		writer: writer,
		logger: logger,
	}, nil
}

// PublishTurn encodes the event as JSON and writes it keyed by chat id.
func (p *Publisher) PublishTurn(ctx context.Context, event *eventstream.TurnCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal turn event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.ChatID),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write turn event: %w", err)
	}

	p.logger.Debug("published turn event",
		zap.String("event_id", event.EventID),
		zap.String("chat_id", event.ChatID),
	)

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
