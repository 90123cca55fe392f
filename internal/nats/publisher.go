package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// streamPublisher is the part of jetstream.JetStream the Publisher uses.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher provides typed methods for publishing events to NATS JetStream.
type Publisher struct {
	js streamPublisher
}

// NewPublisher creates a new Publisher.
func NewPublisher(js streamPublisher) *Publisher {
	return &Publisher{js: js}
}

// PublishUsageEvent publishes a quota or analysis event.
func (p *Publisher) PublishUsageEvent(ctx context.Context, event UsageEvent) error {
	return p.publish(ctx, SubjectUsageEvent, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
