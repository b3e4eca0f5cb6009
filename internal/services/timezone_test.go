package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"subtrack/internal/core"
)

var tokyo = time.FixedZone("JST", 9*60*60)

func monthEnd(name string, start time.Time) core.Subscription {
	return core.Subscription{
		ServiceName: name,
		Amount:      decimal.NewFromInt(980),
		Currency:    "JPY",
		StartDate:   start,
		Cycle:       core.Monthly,
		LeadTimes:   []core.LeadTime{core.OneDay},
		NotifyAt:    core.DefaultNotifyAt,
		IsActive:    true,
	}
}

func TestConfiguredZoneAgreesAcrossReadPaths(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, tokyo)
	e := newEnvIn(t, tokyo, now)

	saved, err := e.svc.Create(ctx, monthEnd("Alpha", time.Date(2025, 1, 31, 0, 0, 0, 0, tokyo)))
	if err != nil {
		t.Fatal(err)
	}
	// Renews after Alpha in Tokyo, before it when computed in UTC.
	if _, err := e.svc.Create(ctx, monthEnd("Beta", time.Date(2025, 2, 28, 12, 0, 0, 0, tokyo))); err != nil {
		t.Fatal(err)
	}
	id := saved.Subscription.ID
	wantRenewal := time.Date(2025, 2, 28, 0, 0, 0, 0, tokyo)
	wantFire := time.Date(2025, 2, 27, 10, 0, 0, 0, tokyo)

	if !saved.Reminders.Renewal.Equal(wantRenewal) {
		t.Fatalf("scheduler renewal = %v, want %v", saved.Reminders.Renewal, wantRenewal)
	}

	t.Run("next renewal", func(t *testing.T) {
		next, err := e.svc.NextRenewal(ctx, id, now)
		if err != nil {
			t.Fatal(err)
		}
		if !next.Equal(wantRenewal) {
			t.Errorf("NextRenewal() = %v, want %v", next.In(tokyo), wantRenewal)
		}
	})

	t.Run("reminder plan matches pending", func(t *testing.T) {
		status, err := e.svc.Reminders(ctx, id, now)
		if err != nil {
			t.Fatal(err)
		}
		if len(status.Plan.Due) != 1 || len(status.Pending) != 1 {
			t.Fatalf("plan due = %d, pending = %d, want 1 and 1", len(status.Plan.Due), len(status.Pending))
		}
		if !status.Plan.Due[0].FireAt.Equal(wantFire) {
			t.Errorf("plan fire = %v, want %v", status.Plan.Due[0].FireAt.In(tokyo), wantFire)
		}
		if !status.Pending[0].FireAt.Equal(wantFire) {
			t.Errorf("pending fire = %v, want %v", status.Pending[0].FireAt.In(tokyo), wantFire)
		}
	})

	t.Run("list by next renewal", func(t *testing.T) {
		subs, err := e.svc.List(ctx, true, core.SortByNextRenewal, now)
		if err != nil {
			t.Fatal(err)
		}
		if len(subs) != 2 || subs[0].ServiceName != "Alpha" {
			t.Fatalf("expected Alpha first, got %+v", subs)
		}
	})

	t.Run("summary upcoming", func(t *testing.T) {
		sum, err := NewSpendService(e.repo, nil, "JPY", 0).WithLocation(tokyo).Summary(ctx, now)
		if err != nil {
			t.Fatal(err)
		}
		if len(sum.Upcoming) != 2 || sum.Upcoming[0].ServiceName != "Alpha" {
			t.Fatalf("unexpected upcoming %+v", sum.Upcoming)
		}
		if !sum.Upcoming[0].RenewsAt.Equal(wantRenewal) {
			t.Errorf("upcoming renewal = %v, want %v", sum.Upcoming[0].RenewsAt.In(tokyo), wantRenewal)
		}
	})

	t.Run("export", func(t *testing.T) {
		rows, err := NewExportService(e.repo, e.svc, nil, "JPY", tokyo).Rows(ctx, now)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 3 || rows[1][0] != "Alpha" {
			t.Fatalf("unexpected rows %v", rows)
		}
		if rows[1][7] != "2025-01-31 00:00:00" || rows[1][8] != "2025-02-28 00:00:00" {
			t.Errorf("start/next = %q/%q, want 2025-01-31 00:00:00/2025-02-28 00:00:00", rows[1][7], rows[1][8])
		}
	})
}
