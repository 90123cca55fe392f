package nats

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	subject string
	payload []byte
	err     error
}

func (f *fakeStream) Publish(_ context.Context, subject string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subject = subject
	f.payload = payload
	return &jetstream.PubAck{Stream: StreamEvents, Sequence: 1}, nil
}

func TestPublishUsageEvent(t *testing.T) {
	js := &fakeStream{}
	pub := NewPublisher(js)

	event := NewUsageEvent(EventAnalysisCompleted, "42")
	event.Model = "gemini-1.5-flash"
	event.RequestsToday = 2
	event.RequestsLimitDay = 3

	require.NoError(t, pub.PublishUsageEvent(context.Background(), event))
	assert.Equal(t, SubjectUsageEvent, js.subject)

	var got UsageEvent
	require.NoError(t, json.Unmarshal(js.payload, &got))
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, EventAnalysisCompleted, got.Type)
	assert.Equal(t, "42", got.UserID)
	assert.Equal(t, 2, got.RequestsToday)
}

func TestPublishUsageEvent_Error(t *testing.T) {
	pub := NewPublisher(&fakeStream{err: errors.New("no responders")})

	err := pub.PublishUsageEvent(context.Background(), NewUsageEvent(EventQuotaDenied, "42"))
	assert.ErrorContains(t, err, SubjectUsageEvent)
}

func TestNewUsageEvent(t *testing.T) {
	a := NewUsageEvent(EventQuotaDenied, "7")
	b := NewUsageEvent(EventQuotaDenied, "7")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.Timestamp.IsZero())
	assert.Equal(t, "7", a.UserID)
}

func TestEventsStreamConfig(t *testing.T) {
	cfg := EventsStreamConfig()
	assert.Equal(t, StreamEvents, cfg.Name)
	assert.Equal(t, []string{"calorie.events.>"}, cfg.Subjects)
	assert.Equal(t, jetstream.LimitsPolicy, cfg.Retention)
	assert.Equal(t, eventRetention, cfg.MaxAge)
	assert.True(t, strings.HasPrefix(SubjectUsageEvent, SubjectEventsPrefix+"."), "usage subject must be captured by the stream")
}
