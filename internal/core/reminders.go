package core

import (
	"strconv"
	"time"
)

// ReminderPlan is the outcome of planning reminders for one subscription.
type ReminderPlan struct {
	Renewal time.Time
	Due     []ScheduledReminder
	Skipped []LeadTime // candidates at or before asOf
}

// ReminderKey is the stable identity of a reminder: "{subscriptionID}_{leadTimeCode}".
func ReminderKey(subscriptionID string, l LeadTime) string {
	return subscriptionID + "_" + strconv.Itoa(l.Code())
}

// AllReminderKeys returns the key for every lead time of a subscription.
func AllReminderKeys(subscriptionID string) []string {
	keys := make([]string, 0, len(AllLeadTimes))
	for _, l := range AllLeadTimes {
		keys = append(keys, ReminderKey(subscriptionID, l))
	}
	return keys
}

// Key returns the reminder's stable key.
func (r ScheduledReminder) Key() string {
	return ReminderKey(r.SubscriptionID, r.LeadTime)
}

// PlanReminders computes the reminders that should exist for sub as of asOf.
// Inactive subscriptions produce an empty plan. Duplicate lead times collapse,
// and output is ordered by lead time code.
func PlanReminders(sub Subscription, asOf time.Time) (ReminderPlan, error) {
	if !sub.IsActive {
		return ReminderPlan{}, nil
	}
	leads, err := NormalizeLeadTimes(sub.LeadTimes)
	if err != nil {
		return ReminderPlan{}, err
	}
	if err := sub.NotifyAt.Validate(); err != nil {
		return ReminderPlan{}, err
	}
	renewal, err := sub.NextRenewal(asOf)
	if err != nil {
		return ReminderPlan{}, err
	}

	plan := ReminderPlan{Renewal: renewal}
	for _, l := range leads {
		fireAt := sub.NotifyAt.On(renewal.AddDate(0, 0, -l.Days()))
		if !fireAt.After(asOf) {
			plan.Skipped = append(plan.Skipped, l)
			continue
		}
		plan.Due = append(plan.Due, ScheduledReminder{
			SubscriptionID: sub.ID,
			LeadTime:       l,
			FireAt:         fireAt,
		})
	}
	return plan, nil
}

// Notification is a reminder handed to a delivery sink: a planned reminder
// plus the rendered text. Key is the upsert identity.
type Notification struct {
	Key            string     `json:"key"`
	SubscriptionID string     `json:"subscriptionId"`
	LeadTime       LeadTime   `json:"leadTime"`
	FireAt         time.Time  `json:"fireAt"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"createdAt"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
}

// DueCursor is a position in the (FireAt, Key) order of notifications.
// The zero cursor precedes every notification.
type DueCursor struct {
	FireAt time.Time
	Key    string
}

// Before reports whether n sorts after the cursor.
func (c DueCursor) Before(n Notification) bool {
	if n.FireAt.Equal(c.FireAt) {
		return n.Key > c.Key
	}
	return n.FireAt.After(c.FireAt)
}

// Next returns the cursor positioned on n.
func (c DueCursor) Next(n Notification) DueCursor {
	return DueCursor{FireAt: n.FireAt, Key: n.Key}
}
