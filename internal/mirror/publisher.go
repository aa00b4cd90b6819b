package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/acme/contact-dialer/internal/engine"
)

// EventPublisher mirrors engine events to a Kafka topic for downstream
// dashboards. Delivery is fire-and-forget; the engine's own retention and
// broadcast paths do not depend on it.
type EventPublisher struct {
	writer *kafka.Writer
}

// NewEventPublisher constructs a publisher for the configured event topic.
func NewEventPublisher(k *Kafka, topic string) *EventPublisher {
	return &EventPublisher{writer: k.NewWriter(topic)}
}

// Publish writes one event, keyed by its sequence id so partition consumers
// see publish order per partition.
func (p *EventPublisher) Publish(ctx context.Context, ev engine.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("event mirror: marshal event: %w", err)
	}

	record := kafka.Message{
		Key:   []byte(strconv.FormatUint(ev.SequenceID, 10)),
		Value: value,
		Time:  time.Now().UTC(),
	}

	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("event mirror: write message: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *EventPublisher) Close() error {
	return p.writer.Close()
}
