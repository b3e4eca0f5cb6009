package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"subtrack/internal/cache"
	"subtrack/internal/core"
)

type staticLister struct {
	subs []core.Subscription
	err  error
}

func (l staticLister) ListActiveSubscriptions(context.Context) ([]core.Subscription, error) {
	var out []core.Subscription
	for _, s := range l.subs {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, l.err
}

func netflix() core.Subscription {
	return core.Subscription{
		ID:          "abc",
		ServiceName: "Netflix",
		Amount:      decimal.NewFromInt(1490),
		Currency:    "JPY",
		StartDate:   time.Date(2025, 5, 10, 10, 0, 0, 0, time.UTC),
		Cycle:       core.Monthly,
		LeadTimes:   []core.LeadTime{core.OneDay, core.OneWeek},
		NotifyAt:    core.DefaultNotifyAt,
		IsActive:    true,
	}
}

var june1 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestScheduler(granted bool, subs ...core.Subscription) (*Scheduler, *MemorySink, Permission) {
	sink := NewMemorySink()
	perm := NewSettingsPermission(cache.NewMemoryStore(0, 0), granted)
	return NewScheduler(sink, perm, staticLister{subs: subs}), sink, perm
}

func TestScheduleCreatesKeyedReminders(t *testing.T) {
	s, sink, _ := newTestScheduler(true)

	report, err := s.Schedule(context.Background(), netflix(), june1)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Scheduled) != 2 || len(report.Failed) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	pending := sink.Pending()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %+v", pending)
	}
	if pending[0].Key != "abc_0" || !pending[0].FireAt.Equal(time.Date(2025, 6, 9, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected one-day reminder %+v", pending[0])
	}
	if pending[1].Key != "abc_2" || !pending[1].FireAt.Equal(time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected one-week reminder %+v", pending[1])
	}
	if pending[0].Title != reminderTitle || !strings.Contains(pending[0].Body, "Netflix renews tomorrow. Amount: 1490 JPY") {
		t.Fatalf("unexpected text %q / %q", pending[0].Title, pending[0].Body)
	}
}

func TestScheduleSupersedesPreviousReminders(t *testing.T) {
	s, sink, _ := newTestScheduler(true)
	ctx := context.Background()
	sub := netflix()
	sub.LeadTimes = []core.LeadTime{core.ThreeDays, core.OneWeek}
	if _, err := s.Schedule(ctx, sub, june1); err != nil {
		t.Fatal(err)
	}

	sub.LeadTimes = []core.LeadTime{core.OneDay}
	if _, err := s.Schedule(ctx, sub, june1); err != nil {
		t.Fatal(err)
	}
	pending := sink.Pending()
	if len(pending) != 1 || pending[0].Key != "abc_0" {
		t.Fatalf("expected only the one-day reminder, got %+v", pending)
	}
}

func TestScheduleWithoutPermissionIsNoop(t *testing.T) {
	s, sink, _ := newTestScheduler(false)
	ctx := context.Background()
	_ = sink.Schedule(ctx, core.Notification{Key: "abc_3", SubscriptionID: "abc"})

	report, err := s.Schedule(ctx, netflix(), june1)
	if err != nil {
		t.Fatal(err)
	}
	if !report.PermissionDenied || len(report.Scheduled) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if pending := sink.Pending(); len(pending) != 1 || pending[0].Key != "abc_3" {
		t.Fatalf("sink must be untouched, got %+v", pending)
	}
}

func TestScheduleInactiveIsNoop(t *testing.T) {
	s, sink, _ := newTestScheduler(true)
	ctx := context.Background()
	_ = sink.Schedule(ctx, core.Notification{Key: "abc_3", SubscriptionID: "abc"})

	sub := netflix()
	sub.IsActive = false
	report, err := s.Schedule(ctx, sub, june1)
	if err != nil || len(report.Scheduled) != 0 {
		t.Fatalf("unexpected report %+v (err=%v)", report, err)
	}
	if len(sink.Pending()) != 1 {
		t.Fatal("inactive scheduling must not touch the sink")
	}
}

func TestScheduleRecordsSinkRejection(t *testing.T) {
	s, sink, _ := newTestScheduler(true)
	sink.Reject["abc_0"] = true

	report, err := s.Schedule(context.Background(), netflix(), june1)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Failed) != 1 || report.Failed[0].Key != "abc_0" {
		t.Fatalf("expected one failure, got %+v", report.Failed)
	}
	if len(report.Scheduled) != 1 || report.Scheduled[0].Key != "abc_2" {
		t.Fatalf("remaining lead time must still be scheduled, got %+v", report.Scheduled)
	}
}

func TestScheduleCalendarErrorHasNoSideEffects(t *testing.T) {
	s, sink, _ := newTestScheduler(true)
	ctx := context.Background()
	_ = sink.Schedule(ctx, core.Notification{Key: "abc_3", SubscriptionID: "abc"})

	sub := netflix()
	sub.StartDate = time.Time{}
	if _, err := s.Schedule(ctx, sub, june1); !errors.Is(err, core.ErrZeroStartDate) {
		t.Fatalf("expected ErrZeroStartDate, got %v", err)
	}
	if len(sink.Pending()) != 1 {
		t.Fatal("failed planning must not cancel existing reminders")
	}
}

func TestScheduleAppliesConfiguredZone(t *testing.T) {
	jst := time.FixedZone("JST", 9*3600)
	sink := NewMemorySink()
	s := NewScheduler(sink, NewSettingsPermission(cache.NewMemoryStore(0, 0), true), staticLister{}, WithLocation(jst))

	sub := netflix()
	sub.StartDate = time.Date(2025, 5, 10, 0, 0, 0, 0, jst).UTC()
	sub.LeadTimes = []core.LeadTime{core.OneDay}
	if _, err := s.Schedule(context.Background(), sub, june1); err != nil {
		t.Fatal(err)
	}
	pending := sink.Pending()
	if len(pending) != 1 || !pending[0].FireAt.Equal(time.Date(2025, 6, 9, 10, 0, 0, 0, jst)) {
		t.Fatalf("expected 10:00 JST on 2025-06-09, got %+v", pending)
	}
}

func TestRefreshAllAndPermissionChanges(t *testing.T) {
	inactive := netflix()
	inactive.ID = "old"
	inactive.IsActive = false
	broken := netflix()
	broken.ID = "broken"
	broken.Cycle = "weekly"
	spotify := netflix()
	spotify.ID = "def"
	spotify.ServiceName = "Spotify"

	s, sink, perm := newTestScheduler(true, netflix(), spotify, inactive, broken)
	ctx := context.Background()

	report, err := s.RefreshAll(ctx, june1)
	if err != nil {
		t.Fatal(err)
	}
	if report.Subscriptions != 3 || report.Scheduled != 4 || report.Errors != 1 {
		t.Fatalf("unexpected refresh report %+v", report)
	}

	if err := s.SetPermission(ctx, false, june1); err != nil {
		t.Fatal(err)
	}
	if granted, _ := perm.Granted(ctx); granted {
		t.Fatal("expected permission revoked")
	}
	if len(sink.Pending()) != 0 {
		t.Fatalf("revoking must drop pending reminders, got %+v", sink.Pending())
	}

	if r, _ := s.RefreshAll(ctx, june1); r.Subscriptions != 0 {
		t.Fatalf("refresh without permission must be a no-op, got %+v", r)
	}

	if err := s.SetPermission(ctx, true, june1); err != nil {
		t.Fatal(err)
	}
	if len(sink.Pending()) != 4 {
		t.Fatalf("granting must reschedule, got %d pending", len(sink.Pending()))
	}
}

func TestCancelAll(t *testing.T) {
	s, sink, _ := newTestScheduler(true)
	ctx := context.Background()
	if _, err := s.Schedule(ctx, netflix(), june1); err != nil {
		t.Fatal(err)
	}
	if err := s.CancelAll(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	if len(sink.Pending()) != 0 {
		t.Fatalf("expected no pending, got %+v", sink.Pending())
	}
}
