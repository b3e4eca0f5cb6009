package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"subtrack/internal/core"
	"subtrack/internal/metrics"
)

// PendingStore is the dispatcher's view of stored notifications.
type PendingStore interface {
	DueNotifications(ctx context.Context, now time.Time, after core.DueCursor, limit int) ([]core.Notification, error)
	MarkDelivered(ctx context.Context, key string, at time.Time) error
}

// Publisher hands a due notification to whatever presents it.
type Publisher interface {
	Publish(ctx context.Context, n core.Notification) error
}

// LogPublisher presents notifications as log lines.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, n core.Notification) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, n.Title,
		"body", n.Body,
		"reminder_key", n.Key,
		"subscription_id", n.SubscriptionID,
		"fire_at", n.FireAt.Format(time.RFC3339))
	return nil
}

// DispatchReport counts one DispatchDue run.
type DispatchReport struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Dispatcher publishes due notifications and marks them delivered.
type Dispatcher struct {
	store     PendingStore
	publisher Publisher
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Registry
}

func NewDispatcher(store PendingStore, publisher Publisher, batchSize int, logger *slog.Logger, m *metrics.Registry) *Dispatcher {
	if batchSize < 1 {
		batchSize = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, publisher: publisher, batchSize: batchSize, logger: logger, metrics: m}
}

// DispatchDue drains notifications with fireAt <= now in batches. Each due
// notification is tried once per run: the cursor pages past failures, which
// stay pending for the next run.
func (d *Dispatcher) DispatchDue(ctx context.Context, now time.Time) (DispatchReport, error) {
	var (
		report DispatchReport
		cursor core.DueCursor
	)
	for {
		due, err := d.store.DueNotifications(ctx, now, cursor, d.batchSize)
		if err != nil {
			return report, fmt.Errorf("load due notifications: %w", err)
		}
		if len(due) == 0 {
			return report, nil
		}

		for _, n := range due {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			cursor = cursor.Next(n)
			if err := d.publisher.Publish(ctx, n); err != nil {
				report.Failed++
				d.metrics.NotificationDispatched(false)
				d.logger.ErrorContext(ctx, "Failed to publish notification", "reminder_key", n.Key, "error", err)
				continue
			}
			if err := d.store.MarkDelivered(ctx, n.Key, now); err != nil {
				// Published but not marked: it will be published again next run.
				report.Failed++
				d.logger.ErrorContext(ctx, "Failed to mark notification delivered", "reminder_key", n.Key, "error", err)
				continue
			}
			report.Delivered++
			d.metrics.NotificationDispatched(true)
		}

		if len(due) < d.batchSize {
			if report.Delivered > 0 || report.Failed > 0 {
				d.logger.InfoContext(ctx, "Dispatched due notifications",
					"delivered", report.Delivered, "failed", report.Failed)
			}
			return report, nil
		}
	}
}
