// Package redpanda publishes gateway usage events to Redpanda/Kafka.
//
// Events are a downstream observability feed (billing dashboards, usage
// analytics); delivery is best-effort and the gateway never fails a
// request over a publish error.
package redpanda

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/careerforge/ai-gateway/internal/domain"
)

// TopicUsageEvents is the Kafka topic carrying usage events.
const TopicUsageEvents = "ai-usage-events"

// Producer wraps a Kafka client and implements domain.UsageEventPublisher.
type Producer struct {
	client *kgo.Client
}

// NewProducer constructs a Producer for the given seed brokers.
func NewProducer(brokers []string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=events.producer: no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("op=events.producer: %w", err)
	}
	slog.Info("usage event producer created", slog.Any("brokers", brokers), slog.String("topic", TopicUsageEvents))
	return &Producer{client: client}, nil
}

// Publish emits one usage event, keyed by user so a consumer sees each
// user's events in order.
func (p *Producer) Publish(ctx domain.Context, ev domain.UsageEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("op=events.publish: %w", err)
	}
	rec := &kgo.Record{
		Topic: TopicUsageEvents,
		Key:   []byte(ev.UserID),
		Value: b,
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("op=events.publish: %w", err)
	}
	return nil
}

// Close flushes and releases the underlying client.
func (p *Producer) Close() {
	p.client.Close()
}
