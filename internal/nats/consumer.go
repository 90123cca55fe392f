package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// ConsumerManager handles durable consumer creation and retrieval.
type ConsumerManager struct {
	js jetstream.JetStream
}

// NewConsumerManager creates a new ConsumerManager.
func NewConsumerManager(js jetstream.JetStream) *ConsumerManager {
	return &ConsumerManager{js: js}
}

// EnsureConsumer creates or updates a durable consumer on the given stream.
func (cm *ConsumerManager) EnsureConsumer(ctx context.Context, stream, name, filterSubject string) (jetstream.Consumer, error) {
	cfg := jetstream.ConsumerConfig{
		Durable:       name,
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}

	consumer, err := cm.js.CreateOrUpdateConsumer(ctx, stream, cfg)
	if err != nil {
		return nil, fmt.Errorf("ensuring consumer %s on %s: %w", name, stream, err)
	}
	return consumer, nil
}

// TailUsageEvents fetches usage events from a durable consumer until ctx is done,
// calling fn for each one. Malformed payloads are logged, acked and skipped.
func (cm *ConsumerManager) TailUsageEvents(ctx context.Context, durable string, fn func(UsageEvent) error) error {
	consumer, err := cm.EnsureConsumer(ctx, StreamEvents, durable, SubjectUsageEvent)
	if err != nil {
		return err
	}

	for {
		batch, err := consumer.Fetch(10, jetstream.FetchMaxWait(FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("usage tail: fetching events", "error", err)
			continue
		}

		for msg := range batch.Messages() {
			var event UsageEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				slog.Warn("usage tail: skipping malformed event", "error", err)
				_ = msg.Ack()
				continue
			}
			if err := fn(event); err != nil {
				_ = msg.Nak()
				return err
			}
			_ = msg.Ack()
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}
