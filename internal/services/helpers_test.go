package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"subtrack/internal/core"
	"subtrack/internal/notify"
	"subtrack/internal/rates"
	"subtrack/internal/storage"
)

var june1 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type env struct {
	repo  *storage.SQLiteRepository
	sched *notify.Scheduler
	svc   *SubscriptionService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvIn(t, time.UTC, june1)
}

// newEnvIn builds an env whose scheduler and service share loc and a fixed clock.
func newEnvIn(t *testing.T, loc *time.Location, now time.Time) *env {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	perm := notify.NewSettingsPermission(repo, true)
	sched := notify.NewScheduler(repo, perm, repo, notify.WithLocation(loc))
	svc := NewSubscriptionService(repo, sched, repo, "JPY").WithLocation(loc)
	svc.now = func() time.Time { return now }
	return &env{repo: repo, sched: sched, svc: svc}
}

func netflix() core.Subscription {
	return core.Subscription{
		ServiceName:   "Netflix",
		Amount:        decimal.NewFromInt(1490),
		Currency:      "jpy",
		PaymentMethod: "Visa",
		StartDate:     time.Date(2025, 5, 10, 10, 0, 0, 0, time.UTC),
		Cycle:         core.Monthly,
		LeadTimes:     []core.LeadTime{core.OneWeek, core.OneDay, core.OneDay},
		NotifyAt:      core.DefaultNotifyAt,
		IsActive:      true,
	}
}

func chatGPT() core.Subscription {
	rate := decimal.NewFromInt(140)
	return core.Subscription{
		ServiceName:  "ChatGPT Plus",
		Amount:       decimal.NewFromInt(20),
		Currency:     "USD",
		ExchangeRate: &rate,
		StartDate:    time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC),
		Cycle:        core.Monthly,
		LeadTimes:    []core.LeadTime{core.ThreeDays},
		NotifyAt:     core.DefaultNotifyAt,
		IsActive:     true,
	}
}

func icloud() core.Subscription {
	return core.Subscription{
		ServiceName: "iCloud",
		Amount:      decimal.NewFromInt(1200),
		Currency:    "JPY",
		StartDate:   time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC),
		Cycle:       core.Yearly,
		NotifyAt:    core.DefaultNotifyAt,
		IsActive:    true,
	}
}

type fakeRates struct {
	rates map[string]decimal.Decimal
	calls int
}

func (f *fakeRates) GetRate(_ context.Context, base, target string, _ time.Time) (rates.Lookup, error) {
	f.calls++
	r, ok := f.rates[base+":"+target]
	if !ok {
		return rates.Lookup{}, rates.ErrRateUnavailable
	}
	return rates.Lookup{Base: base, Target: target, Rate: r, Origin: rates.OriginRemote}, nil
}

type failingScheduler struct{}

func (failingScheduler) Schedule(context.Context, core.Subscription, time.Time) (notify.Report, error) {
	return notify.Report{}, errors.New("sink down")
}

func (failingScheduler) CancelAll(context.Context, string) error {
	return errors.New("sink down")
}
