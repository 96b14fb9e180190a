// Package events publishes review lifecycle events for downstream consumers
// (reporting, CRM sync). Publishing is best-effort: callers log failures and
// carry on, and the database stays the source of truth.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Event types.
const (
	TypeCallIngested     = "call.ingested"
	TypeReviewDispatched = "review.dispatched"
	TypeReviewCompleted  = "review.completed"
)

// Event is one lifecycle record. Messages are keyed by CallID so all events
// of a call land on the same partition.
type Event struct {
	Type       string    `json:"type"`
	CallID     string    `json:"callId"`
	ReviewID   string    `json:"reviewId,omitempty"`
	TemplateID string    `json:"templateId,omitempty"`
	Status     string    `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON to one topic.
type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaPublisher returns a publisher for topic on brokers. Writes are
// asynchronous; delivery errors are logged from the writer's completion hook.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			Async:        true,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					log.Warn().Err(err).Int("messages", len(msgs)).Str("topic", topic).Msg("kafka delivery failed")
				}
			},
		},
	}
}

// Publish encodes ev and hands it to the writer.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.CallID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error { return p.w.Close() }
