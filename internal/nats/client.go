package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/calorieai/calorie-bot/internal/config"
)

// eventRetention bounds how long usage events stay in the stream.
const eventRetention = 30 * 24 * time.Hour

// Client is a NATS connection with the usage event stream in place.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewClient connects to cfg.URL and creates or updates the usage event stream.
func NewClient(ctx context.Context, cfg config.NATSConfig) (*Client, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("calorie-bot"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected, usage events are buffered", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", "url", c.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	stream := EventsStreamConfig()
	if _, err := js.CreateOrUpdateStream(ctx, stream); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensuring stream %s: %w", stream.Name, err)
	}

	slog.Info("connected to NATS", "url", nc.ConnectedUrlRedacted(), "stream", stream.Name)
	return &Client{conn: nc, js: js}, nil
}

// EventsStreamConfig describes the stream holding every calorie.events.* subject.
func EventsStreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        StreamEvents,
		Description: "calorie bot usage events",
		Subjects:    []string{SubjectEventsPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      eventRetention,
		Storage:     jetstream.FileStorage,
	}
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Healthy reports whether the connection is up. Used by the readiness probe.
func (c *Client) Healthy() bool {
	return c.conn.IsConnected()
}

// Close drains and closes the connection, flushing pending publishes.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		slog.Warn("draining NATS connection", "error", err)
	}
}
