package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validSubscription() Subscription {
	return Subscription{
		ID:          "sub-1",
		ServiceName: "Netflix",
		Amount:      decimal.NewFromInt(1490),
		Currency:    "JPY",
		StartDate:   time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Cycle:       Monthly,
		LeadTimes:   []LeadTime{OneDay},
		NotifyAt:    DefaultNotifyAt,
		IsActive:    true,
	}
}

func TestSubscriptionValidate(t *testing.T) {
	if err := validSubscription().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	negRate := decimal.NewFromInt(-1)
	cases := []struct {
		name   string
		mutate func(*Subscription)
		want   error
	}{
		{"empty name", func(s *Subscription) { s.ServiceName = "  " }, ErrEmptyServiceName},
		{"zero amount", func(s *Subscription) { s.Amount = decimal.Zero }, ErrInvalidAmount},
		{"bad currency", func(s *Subscription) { s.Currency = "yen!" }, ErrInvalidCurrency},
		{"negative rate", func(s *Subscription) { s.ExchangeRate = &negRate }, ErrInvalidRate},
		{"zero start", func(s *Subscription) { s.StartDate = time.Time{} }, ErrZeroStartDate},
		{"bad cycle", func(s *Subscription) { s.Cycle = "weekly" }, ErrInvalidCycle},
		{"bad lead time", func(s *Subscription) { s.LeadTimes = []LeadTime{9} }, ErrInvalidLeadTime},
		{"bad time of day", func(s *Subscription) { s.NotifyAt = TimeOfDay{Hour: 24} }, ErrInvalidTimeOfDay},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := validSubscription()
			tc.mutate(&s)
			if err := s.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParseCycle(t *testing.T) {
	if c, err := ParseCycle(" Yearly "); err != nil || c != Yearly {
		t.Fatalf("expected yearly, got %q (err=%v)", c, err)
	}
	if _, err := ParseCycle("weekly"); !errors.Is(err, ErrInvalidCycle) {
		t.Fatalf("expected ErrInvalidCycle, got %v", err)
	}
}

func TestLeadTimeDaysAndParse(t *testing.T) {
	cases := []struct {
		in   string
		want LeadTime
		days int
	}{
		{"1d", OneDay, 1},
		{"3d", ThreeDays, 3},
		{"1w", OneWeek, 7},
		{"2w", TwoWeeks, 14},
		{"2", OneWeek, 7},
	}
	for _, tc := range cases {
		got, err := ParseLeadTime(tc.in)
		if err != nil || got != tc.want {
			t.Fatalf("%q expected %v, got %v (err=%v)", tc.in, tc.want, got, err)
		}
		if got.Days() != tc.days {
			t.Fatalf("%q expected %d days, got %d", tc.in, tc.days, got.Days())
		}
	}
	if _, err := ParseLeadTime("5"); !errors.Is(err, ErrInvalidLeadTime) {
		t.Fatalf("expected ErrInvalidLeadTime, got %v", err)
	}
}

func TestNormalizeLeadTimes(t *testing.T) {
	got, err := NormalizeLeadTimes([]LeadTime{TwoWeeks, OneDay, TwoWeeks, ThreeDays})
	if err != nil {
		t.Fatal(err)
	}
	want := []LeadTime{OneDay, ThreeDays, TwoWeeks}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	if err != nil || tod != (TimeOfDay{Hour: 9, Minute: 30}) {
		t.Fatalf("unexpected %v (err=%v)", tod, err)
	}
	if tod.String() != "09:30" {
		t.Fatalf("unexpected string %q", tod.String())
	}
	if _, err := ParseTimeOfDay("25:00"); err == nil {
		t.Fatal("expected error")
	}
}

func TestCachedRateExpired(t *testing.T) {
	fetched := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := CachedRate{BaseCurrency: "USD", TargetCurrency: "JPY", Rate: decimal.NewFromInt(150), FetchedAt: fetched}
	if r.Expired(fetched.Add(24*time.Hour), 24*time.Hour) {
		t.Fatal("entry exactly 24h old must still be fresh")
	}
	if !r.Expired(fetched.Add(24*time.Hour+time.Second), 24*time.Hour) {
		t.Fatal("entry older than 24h must be expired")
	}
}

func TestEquivalents(t *testing.T) {
	s := validSubscription()
	if !s.YearlyEquivalent().Equal(decimal.NewFromInt(17880)) {
		t.Fatalf("unexpected yearly %s", s.YearlyEquivalent())
	}
	s.Cycle = Yearly
	s.Amount = decimal.NewFromInt(12000)
	if !s.MonthlyEquivalent().Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected monthly %s", s.MonthlyEquivalent())
	}
}

func TestLeadTimeAndTimeOfDayJSON(t *testing.T) {
	type payload struct {
		Leads    []LeadTime `json:"leads"`
		NotifyAt TimeOfDay  `json:"notifyAt"`
	}
	var p payload
	if err := json.Unmarshal([]byte(`{"leads":["1d","2w","1"],"notifyAt":"07:45"}`), &p); err != nil {
		t.Fatal(err)
	}
	if len(p.Leads) != 3 || p.Leads[1] != TwoWeeks || p.Leads[2] != ThreeDays || p.NotifyAt != (TimeOfDay{7, 45}) {
		t.Fatalf("unexpected payload %+v", p)
	}
	out, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"leads":["1d","2w","3d"],"notifyAt":"07:45"}` {
		t.Fatalf("unexpected json %s", out)
	}
}
