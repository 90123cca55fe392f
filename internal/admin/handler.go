// Package admin serves the quota administration endpoints.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/calorieai/calorie-bot/internal/api"
	"github.com/calorieai/calorie-bot/internal/auth"
	inats "github.com/calorieai/calorie-bot/internal/nats"
	"github.com/calorieai/calorie-bot/internal/quota"
)

// EventPublisher receives subscription change events.
type EventPublisher interface {
	PublishUsageEvent(ctx context.Context, event inats.UsageEvent) error
}

// SubscriptionRequest is the body of PUT /users/{userID}/subscription.
type SubscriptionRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type Handler struct {
	tracker   *quota.Tracker
	publisher EventPublisher
	validate  *validator.Validate
}

// NewHandler creates an admin handler. publisher may be nil.
func NewHandler(tracker *quota.Tracker, publisher EventPublisher) *Handler {
	return &Handler{
		tracker:   tracker,
		publisher: publisher,
		validate:  validator.New(),
	}
}

func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	status, err := h.tracker.Status(r.Context(), userID)
	if err != nil {
		h.handleTrackerError(w, "getting quota", err)
		return
	}

	api.JSON(w, http.StatusOK, status)
}

func (h *Handler) SetSubscription(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	if err := h.tracker.SetSubscription(r.Context(), userID, *req.Active); err != nil {
		h.handleTrackerError(w, "setting subscription", err)
		return
	}

	status, err := h.tracker.Status(r.Context(), userID)
	if err != nil {
		h.handleTrackerError(w, "getting quota", err)
		return
	}

	h.publish(r.Context(), status)
	slog.Info("subscription changed", "user_id", userID, "active", status.SubscriptionActive, "operator", auth.Operator(r.Context()))

	api.JSON(w, http.StatusOK, status)
}

func (h *Handler) ResetQuota(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.tracker.ResetDaily(r.Context(), userID); err != nil {
		h.handleTrackerError(w, "resetting quota", err)
		return
	}

	status, err := h.tracker.Status(r.Context(), userID)
	if err != nil {
		h.handleTrackerError(w, "getting quota", err)
		return
	}

	slog.Info("daily quota reset", "user_id", userID, "operator", auth.Operator(r.Context()))
	api.JSON(w, http.StatusOK, status)
}

func (h *Handler) publish(ctx context.Context, status *quota.Status) {
	if h.publisher == nil {
		return
	}
	event := inats.NewUsageEvent(inats.EventSubscriptionChanged, status.UserID)
	event.RequestsToday = status.RequestsToday
	event.RequestsLimitDay = status.RequestsLimitDay
	event.SubscriptionActive = status.SubscriptionActive
	if err := h.publisher.PublishUsageEvent(ctx, event); err != nil {
		slog.Warn("publishing subscription event", "user_id", status.UserID, "error", err)
	}
}

func (h *Handler) handleTrackerError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, quota.ErrInvalidUserID) {
		api.HandleError(w, api.NewBadRequestError("user id is required"))
		return
	}
	slog.Error(op, "error", err)
	api.HandleError(w, api.ErrInternalServer)
}
