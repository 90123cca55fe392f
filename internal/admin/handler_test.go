package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/calorieai/calorie-bot/internal/nats"
	"github.com/calorieai/calorie-bot/internal/quota"
)

type recordingPublisher struct {
	events []inats.UsageEvent
	err    error
}

func (p *recordingPublisher) PublishUsageEvent(_ context.Context, event inats.UsageEvent) error {
	p.events = append(p.events, event)
	return p.err
}

type statusBody struct {
	Data  quota.Status `json:"data"`
	Error string       `json:"error"`
}

func setupRouter(t *testing.T) (http.Handler, *quota.Tracker, *recordingPublisher) {
	t.Helper()
	tracker := quota.NewTracker(quota.NewMemoryStore())
	pub := &recordingPublisher{}
	h := NewHandler(tracker, pub)

	r := chi.NewRouter()
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/quota", h.GetQuota)
		r.Post("/quota/reset", h.ResetQuota)
		r.Put("/subscription", h.SetSubscription)
	})
	return r, tracker, pub
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, statusBody) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out statusBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestGetQuota_UnknownUser(t *testing.T) {
	r, _, _ := setupRouter(t)

	rec, body := do(t, r, http.MethodGet, "/users/42/quota", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", body.Data.UserID)
	assert.Equal(t, 0, body.Data.RequestsToday)
	assert.Equal(t, quota.DefaultDailyLimit, body.Data.RequestsLimitDay)
	assert.Equal(t, quota.DefaultDailyLimit, body.Data.RequestsRemaining)
	assert.False(t, body.Data.SubscriptionActive)
}

func TestGetQuota_AfterUsage(t *testing.T) {
	r, tracker, _ := setupRouter(t)
	ctx := context.Background()
	_, err := tracker.RecordUsage(ctx, "42")
	require.NoError(t, err)
	_, err = tracker.RecordUsage(ctx, "42")
	require.NoError(t, err)

	_, body := do(t, r, http.MethodGet, "/users/42/quota", "")
	assert.Equal(t, 2, body.Data.RequestsToday)
	assert.Equal(t, 1, body.Data.RequestsRemaining)
}

func TestSetSubscription(t *testing.T) {
	r, tracker, pub := setupRouter(t)

	rec, body := do(t, r, http.MethodPut, "/users/42/subscription", `{"active": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Data.SubscriptionActive)

	status, err := tracker.Status(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, status.SubscriptionActive)

	require.Len(t, pub.events, 1)
	assert.Equal(t, inats.EventSubscriptionChanged, pub.events[0].Type)
	assert.Equal(t, "42", pub.events[0].UserID)
	assert.True(t, pub.events[0].SubscriptionActive)

	rec, body = do(t, r, http.MethodPut, "/users/42/subscription", `{"active": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, body.Data.SubscriptionActive)
	assert.Len(t, pub.events, 2)
}

func TestSetSubscription_Validation(t *testing.T) {
	r, _, pub := setupRouter(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "malformed json", body: `{"active":`, code: http.StatusBadRequest},
		{name: "wrong type", body: `{"active": "yes"}`, code: http.StatusBadRequest},
		{name: "missing field", body: `{}`, code: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, r, http.MethodPut, "/users/42/subscription", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
	assert.Empty(t, pub.events)
}

func TestSetSubscription_PublishErrorIgnored(t *testing.T) {
	r, _, pub := setupRouter(t)
	pub.err = errors.New("nats down")

	rec, body := do(t, r, http.MethodPut, "/users/7/subscription", `{"active": true}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Data.SubscriptionActive)
}

func TestSetSubscription_NilPublisher(t *testing.T) {
	tracker := quota.NewTracker(quota.NewMemoryStore())
	h := NewHandler(tracker, nil)
	r := chi.NewRouter()
	r.Put("/users/{userID}/subscription", h.SetSubscription)

	rec, _ := do(t, r, http.MethodPut, "/users/7/subscription", `{"active": true}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResetQuota(t *testing.T) {
	r, tracker, _ := setupRouter(t)
	ctx := context.Background()
	for i := 0; i < quota.DefaultDailyLimit; i++ {
		_, err := tracker.RecordUsage(ctx, "42")
		require.NoError(t, err)
	}
	ok, _, err := tracker.CanMakeRequest(ctx, "42")
	require.NoError(t, err)
	require.False(t, ok)

	rec, body := do(t, r, http.MethodPost, "/users/42/quota/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, body.Data.RequestsToday)

	ok, _, err = tracker.CanMakeRequest(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEmptyUserID(t *testing.T) {
	tracker := quota.NewTracker(quota.NewMemoryStore())
	h := NewHandler(tracker, nil)

	req := httptest.NewRequest(http.MethodGet, "/users//quota", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("userID", "")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()

	h.GetQuota(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
