package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"subtrack/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row with the requested id does not exist.
var ErrNotFound = errors.New("not found")

// timeLayout is fixed-width so stored instants sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db *sql.DB
}

// ListFilter narrows ListSubscriptions.
type ListFilter struct {
	ActiveOnly bool
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const subscriptionColumns = `id, service_name, amount, currency, exchange_rate, payment_method, notes,
	start_date, cycle, lead_times, notify_at, is_active, created_at, updated_at`

func (r *SQLiteRepository) CreateSubscription(ctx context.Context, s core.Subscription) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ServiceName, s.Amount.String(), s.Currency, nullableDecimal(s.ExchangeRate),
		s.PaymentMethod, s.Notes, formatTime(s.StartDate), string(s.Cycle),
		encodeLeadTimes(s.LeadTimes), s.NotifyAt.String(), s.IsActive,
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	slog.DebugContext(ctx, "Subscription saved to SQLite", "subscription_id", s.ID, "service_name", s.ServiceName)
	return nil
}

func (r *SQLiteRepository) UpdateSubscription(ctx context.Context, s core.Subscription) error {
	res, err := r.db.ExecContext(ctx, `UPDATE subscriptions SET
			service_name = ?, amount = ?, currency = ?, exchange_rate = ?, payment_method = ?, notes = ?,
			start_date = ?, cycle = ?, lead_times = ?, notify_at = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		s.ServiceName, s.Amount.String(), s.Currency, nullableDecimal(s.ExchangeRate), s.PaymentMethod, s.Notes,
		formatTime(s.StartDate), string(s.Cycle), encodeLeadTimes(s.LeadTimes), s.NotifyAt.String(), s.IsActive,
		formatTime(s.UpdatedAt), s.ID)
	if err != nil {
		return fmt.Errorf("update subscription %s: %w", s.ID, err)
	}
	return expectOneRow(res, s.ID)
}

func (r *SQLiteRepository) GetSubscription(ctx context.Context, id string) (core.Subscription, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	s, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Subscription{}, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Subscription{}, fmt.Errorf("get subscription %s: %w", id, err)
	}
	return s, nil
}

// ListSubscriptions returns subscriptions ordered by creation time.
func (r *SQLiteRepository) ListSubscriptions(ctx context.Context, f ListFilter) ([]core.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions`
	if f.ActiveOnly {
		q += ` WHERE is_active = 1`
	}
	q += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []core.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListActiveSubscriptions is ListSubscriptions restricted to active rows.
func (r *SQLiteRepository) ListActiveSubscriptions(ctx context.Context) ([]core.Subscription, error) {
	return r.ListSubscriptions(ctx, ListFilter{ActiveOnly: true})
}

// DeleteSubscription removes the subscription and any notifications still pending for it.
func (r *SQLiteRepository) DeleteSubscription(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription %s: %w", id, err)
	}
	if err := expectOneRow(res, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_notifications WHERE subscription_id = ? AND delivered_at IS NULL`, id); err != nil {
		return fmt.Errorf("delete pending notifications for %s: %w", id, err)
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(sc scanner) (core.Subscription, error) {
	var (
		s                        core.Subscription
		amount, startDate, cycle string
		leadTimes, notifyAt      string
		createdAt, updatedAt     string
		exchangeRate             sql.NullString
	)
	err := sc.Scan(&s.ID, &s.ServiceName, &amount, &s.Currency, &exchangeRate, &s.PaymentMethod, &s.Notes,
		&startDate, &cycle, &leadTimes, &notifyAt, &s.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return core.Subscription{}, err
	}

	if s.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Subscription{}, fmt.Errorf("amount %q: %w", amount, err)
	}
	if exchangeRate.Valid {
		rate, err := decimal.NewFromString(exchangeRate.String)
		if err != nil {
			return core.Subscription{}, fmt.Errorf("exchange rate %q: %w", exchangeRate.String, err)
		}
		s.ExchangeRate = &rate
	}
	if s.StartDate, err = parseTime(startDate); err != nil {
		return core.Subscription{}, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Subscription{}, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Subscription{}, err
	}
	s.Cycle = core.Cycle(cycle)
	if s.LeadTimes, err = decodeLeadTimes(leadTimes); err != nil {
		return core.Subscription{}, err
	}
	if s.NotifyAt, err = core.ParseTimeOfDay(notifyAt); err != nil {
		return core.Subscription{}, err
	}
	return s, nil
}

func encodeLeadTimes(in []core.LeadTime) string {
	parts := make([]string, 0, len(in))
	for _, l := range in {
		parts = append(parts, strconv.Itoa(l.Code()))
	}
	return strings.Join(parts, ",")
}

func decodeLeadTimes(s string) ([]core.LeadTime, error) {
	if s == "" {
		return nil, nil
	}
	var out []core.LeadTime
	for _, p := range strings.Split(s, ",") {
		l, err := core.ParseLeadTime(p)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func nullableDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	return nil
}
