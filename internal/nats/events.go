package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamEvents = "CALORIE_EVENTS"
)

// Subject constants.
const (
	SubjectEventsPrefix = "calorie.events"
	SubjectUsageEvent   = "calorie.events.usage"
)

// Usage event types.
const (
	EventAnalysisCompleted   = "analysis_completed"
	EventAnalysisFailed      = "analysis_failed"
	EventQuotaDenied         = "quota_denied"
	EventSubscriptionChanged = "subscription_changed"
)

// UsageEvent is published whenever a user's quota or analysis state changes.
type UsageEvent struct {
	ID                 string    `json:"id"`
	Type               string    `json:"type"`
	UserID             string    `json:"user_id"`
	Platform           string    `json:"platform,omitempty"`
	Model              string    `json:"model,omitempty"`
	RequestsToday      int       `json:"requests_today"`
	RequestsLimitDay   int       `json:"requests_limit_day"`
	SubscriptionActive bool      `json:"subscription_active"`
	Error              string    `json:"error,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// NewUsageEvent returns an event of the given type with a fresh ID and timestamp.
func NewUsageEvent(eventType, userID string) UsageEvent {
	return UsageEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
}
