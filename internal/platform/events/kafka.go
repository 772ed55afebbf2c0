// Package events publishes billing lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event kinds emitted by the billing core.
const (
	InvoiceCreated  = "invoice.created"
	InvoiceVerified = "invoice.verified"
)

// Writer is the subset of kafka.Writer used by the publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits keyed events.
type Publisher interface {
	Publish(ctx context.Context, kind string, key string, payload any) error
	Close() error
}

// Envelope wraps every payload written to the topic.
type Envelope struct {
	Kind       string          `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// KafkaPublisher writes JSON envelopes to one topic.
type KafkaPublisher struct {
	writer Writer
	logger *slog.Logger
	now    func() time.Time
}

// NewKafkaPublisher connects a writer to broker/topic.
func NewKafkaPublisher(broker, topic string, logger *slog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return NewKafkaPublisherWithWriter(w, logger)
}

// NewKafkaPublisherWithWriter injects a writer, mainly for tests.
func NewKafkaPublisherWithWriter(w Writer, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{writer: w, logger: logger, now: time.Now}
}

// Publish marshals payload into an envelope keyed by key.
func (p *KafkaPublisher) Publish(ctx context.Context, kind string, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("platform/events: marshal %s: %w", kind, err)
	}
	body, err := json.Marshal(Envelope{Kind: kind, OccurredAt: p.now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("platform/events: marshal envelope: %w", err)
	}
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   body,
		Headers: []kafka.Header{{Key: "kind", Value: []byte(kind)}},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("kafka publish failed", slog.String("kind", kind), slog.String("key", key), slog.Any("error", err))
		return fmt.Errorf("platform/events: write %s: %w", kind, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop discards events when no broker is configured.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, string, string, any) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }
