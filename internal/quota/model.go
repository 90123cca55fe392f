package quota

import "time"

// DefaultDailyLimit is the number of free analyses a user gets per calendar day.
const DefaultDailyLimit = 3

// dayLayout formats LastRequestDate as a calendar day in the process-local clock.
const dayLayout = "2006-01-02"

// Record is the per-user quota state.
type Record struct {
	RequestsToday      int    `json:"requests_today"`
	LastRequestDate    string `json:"last_request_date,omitempty"`
	SubscriptionActive bool   `json:"subscription_active"`
}

// Status is the view of a user's quota shown by /stats and the admin API.
type Status struct {
	UserID             string `json:"user_id"`
	RequestsToday      int    `json:"requests_today"`
	RequestsLimitDay   int    `json:"requests_limit_day"`
	RequestsRemaining  int    `json:"requests_remaining"`
	SubscriptionActive bool   `json:"subscription_active"`
	LastRequestDate    string `json:"last_request_date,omitempty"`
}

// Unlimited reports whether the limit does not apply to this status.
func (s *Status) Unlimited() bool {
	return s.SubscriptionActive
}

func dayOf(t time.Time) string {
	return t.Format(dayLayout)
}
