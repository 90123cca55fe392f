// Package bot implements the conversation flow shared by every messaging platform:
// quota check, photo analysis, usage accounting and the menu commands.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/calorieai/calorie-bot/internal/analysis"
	"github.com/calorieai/calorie-bot/internal/metrics"
	inats "github.com/calorieai/calorie-bot/internal/nats"
	"github.com/calorieai/calorie-bot/internal/quota"
)

// Analyzer turns photo bytes into the user-facing analysis. *analysis.Invoker implements it.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte) analysis.Result
}

// EventPublisher receives usage events. *nats.Publisher implements it.
type EventPublisher interface {
	PublishUsageEvent(ctx context.Context, event inats.UsageEvent) error
}

// Handler processes platform events. It is safe for concurrent use.
type Handler struct {
	messenger Messenger
	tracker   *quota.Tracker
	analyzer  Analyzer
	publisher EventPublisher
	platform  string
	logger    *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithPublisher publishes usage events after every photo.
func WithPublisher(p EventPublisher) Option {
	return func(h *Handler) {
		h.publisher = p
	}
}

// WithPlatform tags usage events with the platform name.
func WithPlatform(name string) Option {
	return func(h *Handler) {
		h.platform = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a Handler replying through messenger.
func NewHandler(messenger Messenger, tracker *quota.Tracker, analyzer Analyzer, opts ...Option) *Handler {
	h := &Handler{
		messenger: messenger,
		tracker:   tracker,
		analyzer:  analyzer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandlePhoto runs the full photo flow. The user's quota lock is held from the
// check until the usage is recorded, so concurrent photos from one user cannot
// overrun the daily limit. A photo arriving while the user's previous one is
// still in flight is turned away instead of waiting, so one user never holds
// more than one worker. Every failure ends in a reply; nothing is returned.
func (h *Handler) HandlePhoto(ctx context.Context, ev PhotoEvent) {
	start := time.Now()
	defer func() {
		metrics.PhotoHandlingDuration.Observe(time.Since(start).Seconds())
	}()
	logger := h.logger.With("user_id", ev.User.ID, "chat_id", ev.ChatID)

	release, ok, err := h.tracker.TryLock(ctx, ev.User.ID)
	if err != nil {
		logger.Error("locking quota", "error", err)
		h.send(ctx, ev.ChatID, Outgoing{Text: textGenericError})
		return
	}
	if !ok {
		metrics.QuotaDecisionsTotal.WithLabelValues("busy").Inc()
		logger.Info("previous photo still in flight")
		h.send(ctx, ev.ChatID, Outgoing{Text: textStillBusy})
		return
	}
	defer release()

	allowed, reason, err := h.tracker.CanMakeRequest(ctx, ev.User.ID)
	if err != nil {
		logger.Error("checking quota", "error", err)
		h.send(ctx, ev.ChatID, Outgoing{Text: textGenericError})
		return
	}
	if !allowed {
		metrics.QuotaDecisionsTotal.WithLabelValues("denied").Inc()
		logger.Info("quota exhausted")
		h.send(ctx, ev.ChatID, Outgoing{Text: reason, Keyboard: deniedKeyboard()})
		event := inats.NewUsageEvent(inats.EventQuotaDenied, ev.User.ID)
		event.RequestsLimitDay = h.tracker.Limit()
		if st, err := h.tracker.Status(ctx, ev.User.ID); err == nil {
			event.RequestsToday = st.RequestsToday
		}
		h.publish(ctx, event)
		return
	}
	metrics.QuotaDecisionsTotal.WithLabelValues("allowed").Inc()

	placeholder, err := h.messenger.Send(ctx, ev.ChatID, Outgoing{Text: textProcessing, Markdown: true})
	if err != nil {
		logger.Warn("sending processing placeholder", "error", err)
	}

	data, err := ev.Fetch(ctx)
	if err != nil {
		logger.Error("fetching photo", "error", err)
		h.abort(ctx, ev.ChatID, placeholder)
		return
	}

	result := h.analyzer.Analyze(ctx, data)

	// A failed write still delivers the answer, only without the footer.
	rec, recordErr := h.tracker.RecordUsage(ctx, ev.User.ID)
	if recordErr != nil {
		logger.Error("recording usage", "error", recordErr)
	}

	status := "ok"
	if !result.OK() {
		status = "failed"
	}
	metrics.AnalysesTotal.WithLabelValues(status).Inc()
	logger.Info("photo analyzed",
		"status", status,
		"model", result.Model,
		"attempts", len(result.Attempts),
		"requests_today", rec.RequestsToday,
	)

	reply := result.Text
	if recordErr == nil {
		reply += usageFooter(rec.RequestsToday, h.tracker.Limit(), rec.SubscriptionActive)
	}
	reply = truncate(reply)
	h.deletePlaceholder(ctx, placeholder)
	h.send(ctx, ev.ChatID, Outgoing{Text: reply})

	eventType := inats.EventAnalysisCompleted
	if !result.OK() {
		eventType = inats.EventAnalysisFailed
	}
	event := inats.NewUsageEvent(eventType, ev.User.ID)
	event.Model = result.Model
	event.RequestsToday = rec.RequestsToday
	event.RequestsLimitDay = h.tracker.Limit()
	event.SubscriptionActive = rec.SubscriptionActive
	if err := errors.Join(result.Err, recordErr); err != nil {
		event.Error = err.Error()
	}
	h.publish(ctx, event)
}

// HandleCommand answers /start, /stats and /help. Anything else gets the help text.
func (h *Handler) HandleCommand(ctx context.Context, ev CommandEvent) {
	switch ev.Command {
	case CommandStart:
		h.send(ctx, ev.ChatID, Outgoing{
			Text:     welcomeText(ev.User.Name, h.tracker.Limit()),
			Markdown: true,
			Keyboard: startKeyboard(),
		})
	case CommandStats:
		msg, ok := h.stats(ctx, ev.User)
		if !ok {
			h.send(ctx, ev.ChatID, Outgoing{Text: textGenericError})
			return
		}
		h.send(ctx, ev.ChatID, msg)
	default:
		h.send(ctx, ev.ChatID, Outgoing{Text: helpText(h.tracker.Limit()), Markdown: true})
	}
}

// HandleCallback answers inline keyboard presses by editing the pressed message.
func (h *Handler) HandleCallback(ctx context.Context, ev CallbackEvent) {
	if err := h.messenger.AnswerCallback(ctx, ev.ID); err != nil {
		h.logger.Warn("answering callback", "callback_id", ev.ID, "error", err)
	}

	var msg Outgoing
	switch ev.Data {
	case CallbackSubscribe:
		msg = Outgoing{Text: subscribeText, Markdown: true, Keyboard: subscribeKeyboard()}
	case CallbackStats:
		var ok bool
		if msg, ok = h.stats(ctx, ev.User); !ok {
			return
		}
	case CallbackAnalyze:
		msg = Outgoing{Text: textAnalyzeTips}
	default:
		h.logger.Debug("ignoring unknown callback", "data", ev.Data)
		return
	}

	if err := h.messenger.Edit(ctx, ev.Message, msg); err != nil {
		h.logger.Warn("editing message for callback", "data", ev.Data, "error", err)
	}
}

func (h *Handler) stats(ctx context.Context, user User) (Outgoing, bool) {
	st, err := h.tracker.Status(ctx, user.ID)
	if err != nil {
		h.logger.Error("loading quota status", "user_id", user.ID, "error", err)
		return Outgoing{}, false
	}
	return Outgoing{
		Text:     statsText(user.Name, st.RequestsToday, st.RequestsLimitDay, st.SubscriptionActive),
		Markdown: true,
		Keyboard: statsKeyboard(st.SubscriptionActive),
	}, true
}

func (h *Handler) send(ctx context.Context, chatID string, msg Outgoing) {
	if _, err := h.messenger.Send(ctx, chatID, msg); err != nil {
		h.logger.Error("sending reply", "chat_id", chatID, "error", err)
	}
}

// abort removes the placeholder and tells the user to try again.
func (h *Handler) abort(ctx context.Context, chatID string, placeholder MessageRef) {
	h.deletePlaceholder(ctx, placeholder)
	h.send(ctx, chatID, Outgoing{Text: textGenericError})
}

func (h *Handler) deletePlaceholder(ctx context.Context, ref MessageRef) {
	if ref.MessageID == "" {
		return
	}
	if err := h.messenger.Delete(ctx, ref); err != nil {
		h.logger.Debug("deleting processing placeholder", "error", err)
	}
}

func (h *Handler) publish(ctx context.Context, event inats.UsageEvent) {
	if h.publisher == nil {
		return
	}
	event.Platform = h.platform
	if err := h.publisher.PublishUsageEvent(ctx, event); err != nil {
		h.logger.Warn("publishing usage event", "type", event.Type, "error", err)
	}
}

// ObserveAttempt records a model attempt in the metrics. Pass it to analysis.WithAttemptObserver.
func ObserveAttempt(a analysis.Attempt) {
	outcome := "ok"
	if !a.OK() {
		outcome = "error"
	}
	metrics.ModelAttemptsTotal.WithLabelValues(a.Model, outcome).Inc()
	metrics.ModelAttemptDuration.WithLabelValues(a.Model).Observe(a.Duration.Seconds())
}
