package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"subtrack/internal/core"
)

// Schedule upserts a pending notification by key. Rescheduling a key that was
// already delivered makes it pending again. The upsert keeps the row's
// original created_at.
func (r *SQLiteRepository) Schedule(ctx context.Context, n core.Notification) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO pending_notifications
			(key, subscription_id, lead_time, fire_at, title, body, created_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(key) DO UPDATE SET
			subscription_id = excluded.subscription_id,
			lead_time = excluded.lead_time,
			fire_at = excluded.fire_at,
			title = excluded.title,
			body = excluded.body,
			delivered_at = NULL`,
		n.Key, n.SubscriptionID, n.LeadTime.Code(), formatTime(n.FireAt), n.Title, n.Body, formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("schedule notification %s: %w", n.Key, err)
	}
	return nil
}

// Cancel removes the notifications with the given keys. Unknown keys are ignored.
func (r *SQLiteRepository) Cancel(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_notifications WHERE key IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("cancel notifications: %w", err)
	}
	return nil
}

// CancelAllPending removes every undelivered notification.
func (r *SQLiteRepository) CancelAllPending(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_notifications WHERE delivered_at IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("cancel pending notifications: %w", err)
	}
	return res.RowsAffected()
}

// DueNotifications returns undelivered notifications with fire_at <= now that
// sort after the cursor, oldest first.
func (r *SQLiteRepository) DueNotifications(ctx context.Context, now time.Time, after core.DueCursor, limit int) ([]core.Notification, error) {
	at := formatTime(after.FireAt)
	return r.queryNotifications(ctx, `WHERE delivered_at IS NULL AND fire_at <= ?
			AND (fire_at > ? OR (fire_at = ? AND key > ?))
		ORDER BY fire_at, key LIMIT ?`,
		formatTime(now), at, at, after.Key, limit)
}

// ListPendingNotifications returns the undelivered notifications of one subscription.
func (r *SQLiteRepository) ListPendingNotifications(ctx context.Context, subscriptionID string) ([]core.Notification, error) {
	return r.queryNotifications(ctx, `WHERE delivered_at IS NULL AND subscription_id = ? ORDER BY fire_at, key`,
		subscriptionID)
}

func (r *SQLiteRepository) MarkDelivered(ctx context.Context, key string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE pending_notifications SET delivered_at = ? WHERE key = ? AND delivered_at IS NULL`,
		formatTime(at), key)
	if err != nil {
		return fmt.Errorf("mark notification %s delivered: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notification %s: %w", key, ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) queryNotifications(ctx context.Context, where string, args ...any) ([]core.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, subscription_id, lead_time, fire_at, title, body, created_at, delivered_at
		FROM pending_notifications `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []core.Notification
	for rows.Next() {
		var (
			n           core.Notification
			leadTime    int
			fireAt      string
			createdAt   string
			deliveredAt sql.NullString
		)
		if err := rows.Scan(&n.Key, &n.SubscriptionID, &leadTime, &fireAt, &n.Title, &n.Body, &createdAt, &deliveredAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.LeadTime = core.LeadTime(leadTime)
		if n.FireAt, err = parseTime(fireAt); err != nil {
			return nil, err
		}
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if deliveredAt.Valid {
			at, err := parseTime(deliveredAt.String)
			if err != nil {
				return nil, err
			}
			n.DeliveredAt = &at
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
