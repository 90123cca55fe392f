package quota

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidUserID is returned for an empty user identifier.
var ErrInvalidUserID = errors.New("quota: empty user id")

const limitMessageFormat = "❌ You have used up your free requests for today (%d/%d)\n\n💎 Get a subscription for unlimited analyses!"

// Tracker decides whether a user may run another analysis today.
//
// CanMakeRequest and RecordUsage do not lock on their own: a caller that needs the
// check-then-record sequence to be atomic for one user holds Lock around it.
type Tracker struct {
	store Store
	limit int
	now   func() time.Time
	locks Locker
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the clock used for calendar-day comparison.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithLocker replaces the in-process per-user lock, e.g. with a RedisLocker
// when several replicas share one store.
func WithLocker(l Locker) Option {
	return func(t *Tracker) {
		if l != nil {
			t.locks = l
		}
	}
}

// WithDailyLimit overrides DefaultDailyLimit. Non-positive values are ignored.
func WithDailyLimit(limit int) Option {
	return func(t *Tracker) {
		if limit > 0 {
			t.limit = limit
		}
	}
}

// NewTracker creates a Tracker on top of store.
func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store: store,
		limit: DefaultDailyLimit,
		now:   time.Now,
		locks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Limit returns the daily request limit for non-subscribed users.
func (t *Tracker) Limit() int {
	return t.limit
}

// LimitMessage is the text shown when a user runs out of free requests.
func (t *Tracker) LimitMessage() string {
	return fmt.Sprintf(limitMessageFormat, t.limit, t.limit)
}

// Lock serializes quota work for one user until the returned func is called.
func (t *Tracker) Lock(ctx context.Context, userID string) (func(), error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	release, err := t.locks.Lock(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("acquiring quota lock for %s: %w", userID, err)
	}
	return release, nil
}

// TryLock is Lock without waiting: ok is false while another caller holds the user.
func (t *Tracker) TryLock(ctx context.Context, userID string) (func(), bool, error) {
	if userID == "" {
		return nil, false, ErrInvalidUserID
	}
	release, ok, err := t.locks.TryLock(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("acquiring quota lock for %s: %w", userID, err)
	}
	return release, ok, nil
}

// CanMakeRequest reports whether userID may run an analysis now. On denial the
// reason holds the user-facing limit message.
func (t *Tracker) CanMakeRequest(ctx context.Context, userID string) (bool, string, error) {
	rec, err := t.current(ctx, userID)
	if err != nil {
		return false, "", err
	}

	if rec.SubscriptionActive {
		return true, "", nil
	}
	if rec.RequestsToday < t.limit {
		return true, "", nil
	}
	return false, t.LimitMessage(), nil
}

// RecordUsage counts one dispatched analysis and returns the updated record.
func (t *Tracker) RecordUsage(ctx context.Context, userID string) (Record, error) {
	rec, err := t.current(ctx, userID)
	if err != nil {
		return Record{}, err
	}
	rec.RequestsToday++
	if err := t.store.Put(ctx, userID, rec); err != nil {
		return Record{}, fmt.Errorf("recording usage for %s: %w", userID, err)
	}
	return rec, nil
}

// Status returns the user's quota as of today without modifying the store.
func (t *Tracker) Status(ctx context.Context, userID string) (*Status, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	rec, err := t.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting quota for %s: %w", userID, err)
	}
	if today := dayOf(t.now()); rec.LastRequestDate != today && rec.LastRequestDate != "" {
		rec.RequestsToday = 0
	}

	remaining := t.limit - rec.RequestsToday
	if remaining < 0 {
		remaining = 0
	}
	return &Status{
		UserID:             userID,
		RequestsToday:      rec.RequestsToday,
		RequestsLimitDay:   t.limit,
		RequestsRemaining:  remaining,
		SubscriptionActive: rec.SubscriptionActive,
		LastRequestDate:    rec.LastRequestDate,
	}, nil
}

// SetSubscription turns unlimited access on or off for userID.
func (t *Tracker) SetSubscription(ctx context.Context, userID string, active bool) error {
	release, err := t.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	rec, err := t.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("getting quota for %s: %w", userID, err)
	}
	rec.SubscriptionActive = active
	if err := t.store.Put(ctx, userID, rec); err != nil {
		return fmt.Errorf("setting subscription for %s: %w", userID, err)
	}
	return nil
}

// ResetDaily clears today's counter for userID.
func (t *Tracker) ResetDaily(ctx context.Context, userID string) error {
	release, err := t.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	rec, err := t.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("getting quota for %s: %w", userID, err)
	}
	rec.RequestsToday = 0
	rec.LastRequestDate = dayOf(t.now())
	if err := t.store.Put(ctx, userID, rec); err != nil {
		return fmt.Errorf("resetting quota for %s: %w", userID, err)
	}
	return nil
}

// current loads the record, creating it or rolling it over to today as needed.
func (t *Tracker) current(ctx context.Context, userID string) (Record, error) {
	if userID == "" {
		return Record{}, ErrInvalidUserID
	}
	rec, err := t.store.Get(ctx, userID)
	if err != nil {
		return Record{}, fmt.Errorf("getting quota for %s: %w", userID, err)
	}

	today := dayOf(t.now())
	if rec.LastRequestDate != today {
		rec.RequestsToday = 0
		rec.LastRequestDate = today
		if err := t.store.Put(ctx, userID, rec); err != nil {
			return Record{}, fmt.Errorf("rolling quota day for %s: %w", userID, err)
		}
	}
	return rec, nil
}
