package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
)

// MessageWriter is the subset of kafka.Writer used for publishing.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher sends events to a Kafka topic behind a circuit breaker so a
// broker outage does not stall postings.
type KafkaPublisher struct {
	writer  MessageWriter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewKafkaWriter builds a writer for the given brokers and topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,

		// development brokers start without the topic
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaPublisher wraps writer with a breaker that opens after three
// consecutive failures and retries after thirty seconds.
func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	settings := gobreaker.Settings{
		Name:     "kafka-events",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &KafkaPublisher{
		writer:  writer,
		breaker: gobreaker.NewCircuitBreaker(settings),
		timeout: 5 * time.Second,
	}
}

// Publish serialises the event and writes it keyed by owner id.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = p.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return nil, p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(event.OwnerID),
			Value: data,
			Time:  event.OccurredAt,
		})
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", event.Kind, err)
	}
	return nil
}

// State reports the breaker state, used by health checks.
func (p *KafkaPublisher) State() gobreaker.State {
	return p.breaker.State()
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
