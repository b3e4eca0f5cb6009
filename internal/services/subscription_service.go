package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"subtrack/internal/core"
	"subtrack/internal/notify"
	"subtrack/internal/storage"
)

// SubscriptionStore persists subscriptions.
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, s core.Subscription) error
	UpdateSubscription(ctx context.Context, s core.Subscription) error
	GetSubscription(ctx context.Context, id string) (core.Subscription, error)
	ListSubscriptions(ctx context.Context, f storage.ListFilter) ([]core.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
}

// ReminderScheduler keeps pending reminders in line with a subscription.
type ReminderScheduler interface {
	Schedule(ctx context.Context, sub core.Subscription, asOf time.Time) (notify.Report, error)
	CancelAll(ctx context.Context, subscriptionID string) error
}

// PendingLister lists undelivered notifications of a subscription.
type PendingLister interface {
	ListPendingNotifications(ctx context.Context, subscriptionID string) ([]core.Notification, error)
}

// Saved is the outcome of a write. Reminders is the zero Report when
// rescheduling failed; the write itself still succeeded.
type Saved struct {
	Subscription core.Subscription
	Reminders    notify.Report
}

// ReminderStatus pairs the computed plan with what is actually pending.
type ReminderStatus struct {
	Plan    core.ReminderPlan
	Pending []core.Notification
}

// SubscriptionService orchestrates subscription writes and their reminders.
// Writes go to the store first; reminder scheduling is best effort.
type SubscriptionService struct {
	store           SubscriptionStore
	reminders       ReminderScheduler
	pending         PendingLister
	displayCurrency string
	loc             *time.Location
	now             func() time.Time
	newID           func() string
}

func NewSubscriptionService(store SubscriptionStore, reminders ReminderScheduler, pending PendingLister, displayCurrency string) *SubscriptionService {
	return &SubscriptionService{
		store:           store,
		reminders:       reminders,
		pending:         pending,
		displayCurrency: displayCurrency,
		loc:             time.UTC,
		now:             time.Now,
		newID:           func() string { return uuid.NewString() },
	}
}

// WithClock replaces the time source used for timestamps and scheduling.
func (s *SubscriptionService) WithClock(now func() time.Time) *SubscriptionService {
	s.now = now
	return s
}

// WithLocation sets the zone renewals and reminder plans are computed in. It
// must match the reminder scheduler's zone.
func (s *SubscriptionService) WithLocation(loc *time.Location) *SubscriptionService {
	if loc != nil {
		s.loc = loc
	}
	return s
}

func (s *SubscriptionService) load(ctx context.Context, id string) (core.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return core.Subscription{}, err
	}
	return sub.In(s.loc), nil
}

func (s *SubscriptionService) normalize(sub *core.Subscription) error {
	cur, err := core.NormalizeCurrency(sub.Currency)
	if err != nil {
		return err
	}
	sub.Currency = cur
	if cur == s.displayCurrency {
		sub.ExchangeRate = nil
	}
	leads, err := core.NormalizeLeadTimes(sub.LeadTimes)
	if err != nil {
		return err
	}
	sub.LeadTimes = leads
	return sub.Validate()
}

// Create validates and stores a new subscription, then schedules its reminders.
// An empty ID is replaced with a fresh UUID.
func (s *SubscriptionService) Create(ctx context.Context, sub core.Subscription) (Saved, error) {
	if err := s.normalize(&sub); err != nil {
		return Saved{}, err
	}
	if sub.ID == "" {
		sub.ID = s.newID()
	}
	now := s.now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	sub = sub.In(s.loc)

	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return Saved{}, fmt.Errorf("save subscription: %w", err)
	}
	slog.InfoContext(ctx, "Subscription created",
		"subscription_id", sub.ID,
		"service_name", sub.ServiceName,
		"cycle", string(sub.Cycle))

	return Saved{Subscription: sub, Reminders: s.sync(ctx, sub, now)}, nil
}

// Update replaces a stored subscription, keeping its creation time.
func (s *SubscriptionService) Update(ctx context.Context, sub core.Subscription) (Saved, error) {
	existing, err := s.store.GetSubscription(ctx, sub.ID)
	if err != nil {
		return Saved{}, err
	}
	if err := s.normalize(&sub); err != nil {
		return Saved{}, err
	}
	now := s.now()
	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = now
	sub = sub.In(s.loc)

	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return Saved{}, fmt.Errorf("update subscription: %w", err)
	}
	slog.InfoContext(ctx, "Subscription updated", "subscription_id", sub.ID)

	return Saved{Subscription: sub, Reminders: s.sync(ctx, sub, now)}, nil
}

// SetActive toggles a subscription. Deactivating cancels its reminders.
func (s *SubscriptionService) SetActive(ctx context.Context, id string, active bool) (Saved, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return Saved{}, err
	}
	now := s.now()
	sub.IsActive = active
	sub.UpdatedAt = now
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return Saved{}, fmt.Errorf("update subscription: %w", err)
	}
	slog.InfoContext(ctx, "Subscription status changed", "subscription_id", id, "active", active)

	return Saved{Subscription: sub, Reminders: s.sync(ctx, sub, now)}, nil
}

// Delete removes a subscription and its pending reminders.
func (s *SubscriptionService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteSubscription(ctx, id); err != nil {
		return err
	}
	if s.reminders != nil {
		if err := s.reminders.CancelAll(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to cancel reminders", "subscription_id", id, "error", err)
		}
	}
	slog.InfoContext(ctx, "Subscription deleted", "subscription_id", id)
	return nil
}

func (s *SubscriptionService) Get(ctx context.Context, id string) (core.Subscription, error) {
	return s.load(ctx, id)
}

// List returns subscriptions in the requested order.
func (s *SubscriptionService) List(ctx context.Context, activeOnly bool, order core.SortOption, asOf time.Time) ([]core.Subscription, error) {
	subs, err := s.store.ListSubscriptions(ctx, storage.ListFilter{ActiveOnly: activeOnly})
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	for i := range subs {
		subs[i] = subs[i].In(s.loc)
	}
	core.SortSubscriptions(subs, order, asOf)
	return subs, nil
}

// NextRenewal computes the next renewal of a stored subscription.
func (s *SubscriptionService) NextRenewal(ctx context.Context, id string, asOf time.Time) (time.Time, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	return sub.NextRenewal(asOf)
}

// Reminders returns the reminder plan and the notifications actually pending.
func (s *SubscriptionService) Reminders(ctx context.Context, id string, asOf time.Time) (ReminderStatus, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return ReminderStatus{}, err
	}
	plan, err := core.PlanReminders(sub, asOf)
	if err != nil {
		return ReminderStatus{}, err
	}
	status := ReminderStatus{Plan: plan}
	if s.pending != nil {
		if status.Pending, err = s.pending.ListPendingNotifications(ctx, id); err != nil {
			return ReminderStatus{}, fmt.Errorf("list pending notifications: %w", err)
		}
	}
	return status, nil
}

// Reschedule rebuilds the reminders of one subscription and reports the outcome.
func (s *SubscriptionService) Reschedule(ctx context.Context, id string, asOf time.Time) (notify.Report, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return notify.Report{}, err
	}
	if s.reminders == nil {
		return notify.Report{SubscriptionID: id}, errors.New("reminders are not configured")
	}
	if !sub.IsActive {
		return notify.Report{SubscriptionID: id}, s.reminders.CancelAll(ctx, id)
	}
	return s.reminders.Schedule(ctx, sub, asOf)
}

// sync schedules or cancels reminders after a write. Failures are logged only.
func (s *SubscriptionService) sync(ctx context.Context, sub core.Subscription, asOf time.Time) notify.Report {
	if s.reminders == nil {
		slog.WarnContext(ctx, "Reminder scheduler not available, skipping reminders", "subscription_id", sub.ID)
		return notify.Report{SubscriptionID: sub.ID}
	}
	if !sub.IsActive {
		if err := s.reminders.CancelAll(ctx, sub.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to cancel reminders", "subscription_id", sub.ID, "error", err)
		}
		return notify.Report{SubscriptionID: sub.ID}
	}
	report, err := s.reminders.Schedule(ctx, sub, asOf)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to schedule reminders", "subscription_id", sub.ID, "error", err)
		return notify.Report{SubscriptionID: sub.ID}
	}
	return report
}
