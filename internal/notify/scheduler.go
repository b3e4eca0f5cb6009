package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"subtrack/internal/core"
	"subtrack/internal/metrics"
)

// ActiveLister lists the subscriptions that should carry reminders.
type ActiveLister interface {
	ListActiveSubscriptions(ctx context.Context) ([]core.Subscription, error)
}

// Failure is a reminder the sink refused.
type Failure struct {
	Key      string
	LeadTime core.LeadTime
	Err      error
}

func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key      string `json:"key"`
		LeadTime string `json:"leadTime"`
		Error    string `json:"error"`
	}{f.Key, f.LeadTime.String(), f.Err.Error()})
}

// Report describes what one Schedule call did.
type Report struct {
	SubscriptionID   string              `json:"subscriptionId"`
	Renewal          time.Time           `json:"renewal,omitempty"`
	Scheduled        []core.Notification `json:"scheduled"`
	Skipped          []core.LeadTime     `json:"skipped"`
	Failed           []Failure           `json:"failed"`
	PermissionDenied bool                `json:"permissionDenied,omitempty"`
}

// RefreshReport aggregates a RefreshAll run.
type RefreshReport struct {
	Subscriptions int `json:"subscriptions"`
	Scheduled     int `json:"scheduled"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
	Errors        int `json:"errors"`
}

// Scheduler keeps a sink's pending notifications in line with subscriptions.
type Scheduler struct {
	sink      Sink
	perm      Permission
	subs      ActiveLister
	formatter Formatter
	loc       *time.Location
	logger    *slog.Logger
	metrics   *metrics.Registry
}

type SchedulerOption func(*Scheduler)

// WithLocation sets the zone in which reminder times of day are applied.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) { s.loc = loc }
}

func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

func WithMetrics(m *metrics.Registry) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

func NewScheduler(sink Sink, perm Permission, subs ActiveLister, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		sink:   sink,
		perm:   perm,
		subs:   subs,
		loc:    time.UTC,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) granted(ctx context.Context) bool {
	ok, err := s.perm.Granted(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Cannot read notification permission, treating as not granted", "error", err)
		return false
	}
	return ok
}

// Schedule replaces the pending reminders of sub with the ones due after asOf.
//
// Without permission, or for an inactive subscription, nothing is touched.
// Otherwise every key of the subscription is cancelled first and each planned
// reminder is upserted; a sink rejection is recorded in the report and the
// remaining lead times are still attempted.
func (s *Scheduler) Schedule(ctx context.Context, sub core.Subscription, asOf time.Time) (Report, error) {
	report := Report{SubscriptionID: sub.ID}
	if !s.granted(ctx) {
		report.PermissionDenied = true
		return report, nil
	}
	if !sub.IsActive {
		return report, nil
	}

	local := sub.In(s.loc)
	plan, err := core.PlanReminders(local, asOf.In(s.loc))
	if err != nil {
		return report, fmt.Errorf("plan reminders for %s: %w", sub.ID, err)
	}
	report.Renewal = plan.Renewal
	report.Skipped = plan.Skipped

	if err := s.sink.Cancel(ctx, core.AllReminderKeys(sub.ID)); err != nil {
		s.logger.WarnContext(ctx, "Failed to cancel existing reminders", "subscription_id", sub.ID, "error", err)
	}

	for _, r := range plan.Due {
		n := core.Notification{
			Key:            r.Key(),
			SubscriptionID: sub.ID,
			LeadTime:       r.LeadTime,
			FireAt:         r.FireAt,
			Title:          s.formatter.Title(sub, r.LeadTime),
			Body:           s.formatter.Body(sub, r.LeadTime),
			CreatedAt:      asOf,
		}
		if err := s.sink.Schedule(ctx, n); err != nil {
			s.logger.ErrorContext(ctx, "Failed to schedule reminder",
				"subscription_id", sub.ID, "reminder_key", n.Key, "error", err)
			report.Failed = append(report.Failed, Failure{Key: n.Key, LeadTime: r.LeadTime, Err: err})
			continue
		}
		report.Scheduled = append(report.Scheduled, n)
	}

	for _, l := range plan.Skipped {
		s.logger.DebugContext(ctx, "Skipping past reminder", "subscription_id", sub.ID, "lead_time", l.String())
	}
	s.metrics.ReminderOutcome(len(report.Scheduled), len(report.Skipped), len(report.Failed))
	s.logger.InfoContext(ctx, "Reminders scheduled",
		"subscription_id", sub.ID,
		"service_name", sub.ServiceName,
		"renewal", plan.Renewal.Format(time.RFC3339),
		"scheduled", len(report.Scheduled),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed))
	return report, nil
}

// CancelAll removes every pending reminder of a subscription.
func (s *Scheduler) CancelAll(ctx context.Context, subscriptionID string) error {
	if err := s.sink.Cancel(ctx, core.AllReminderKeys(subscriptionID)); err != nil {
		return fmt.Errorf("cancel reminders for %s: %w", subscriptionID, err)
	}
	return nil
}

// RefreshAll reschedules every active subscription. Per-subscription errors are
// logged and counted; only a failure to list subscriptions is returned.
func (s *Scheduler) RefreshAll(ctx context.Context, asOf time.Time) (RefreshReport, error) {
	var out RefreshReport
	if !s.granted(ctx) {
		s.logger.InfoContext(ctx, "Notification permission not granted, skipping refresh")
		return out, nil
	}

	subs, err := s.subs.ListActiveSubscriptions(ctx)
	if err != nil {
		return out, fmt.Errorf("list active subscriptions: %w", err)
	}
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out.Subscriptions++
		r, err := s.Schedule(ctx, sub, asOf)
		if err != nil {
			out.Errors++
			s.logger.ErrorContext(ctx, "Failed to refresh reminders", "subscription_id", sub.ID, "error", err)
			continue
		}
		out.Scheduled += len(r.Scheduled)
		out.Skipped += len(r.Skipped)
		out.Failed += len(r.Failed)
	}
	s.logger.InfoContext(ctx, "Reminder refresh completed",
		"subscriptions", out.Subscriptions, "scheduled", out.Scheduled, "errors", out.Errors)
	return out, nil
}

// Granted reports the current permission state.
func (s *Scheduler) Granted(ctx context.Context) (bool, error) {
	return s.perm.Granted(ctx)
}

// SetPermission persists the permission. Granting reschedules every active
// subscription; revoking drops every pending reminder.
func (s *Scheduler) SetPermission(ctx context.Context, granted bool, asOf time.Time) error {
	if err := s.perm.Set(ctx, granted); err != nil {
		return err
	}
	if granted {
		_, err := s.RefreshAll(ctx, asOf)
		return err
	}

	if pc, ok := s.sink.(PendingCanceller); ok {
		n, err := pc.CancelAllPending(ctx)
		if err != nil {
			return fmt.Errorf("cancel pending reminders: %w", err)
		}
		s.logger.InfoContext(ctx, "Notification permission revoked", "cancelled", n)
		return nil
	}
	subs, err := s.subs.ListActiveSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("list active subscriptions: %w", err)
	}
	for _, sub := range subs {
		if err := s.CancelAll(ctx, sub.ID); err != nil {
			s.logger.ErrorContext(ctx, "Failed to cancel reminders", "subscription_id", sub.ID, "error", err)
		}
	}
	return nil
}
