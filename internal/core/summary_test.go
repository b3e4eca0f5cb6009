package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSortSubscriptions(t *testing.T) {
	asOf := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	subs := []Subscription{
		{ID: "a", ServiceName: "spotify", Amount: decimal.NewFromInt(980), Cycle: Monthly, StartDate: time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), CreatedAt: asOf.Add(-3 * time.Hour)},
		{ID: "b", ServiceName: "Adobe", Amount: decimal.NewFromInt(6480), Cycle: Monthly, StartDate: time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), CreatedAt: asOf.Add(-1 * time.Hour)},
		{ID: "c", ServiceName: "netflix", Amount: decimal.NewFromInt(1490), Cycle: Monthly, StartDate: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), CreatedAt: asOf.Add(-2 * time.Hour)},
	}
	cases := []struct {
		opt  SortOption
		want string
	}{
		{SortByNextRenewal, "bca"},
		{SortByAmount, "bca"},
		{SortByServiceName, "bca"},
		{SortByRecentlyAdded, "bca"},
	}
	for _, tc := range cases {
		t.Run(string(tc.opt), func(t *testing.T) {
			cp := append([]Subscription(nil), subs...)
			SortSubscriptions(cp, tc.opt, asOf)
			got := cp[0].ID + cp[1].ID + cp[2].ID
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestParseSortOption(t *testing.T) {
	if ParseSortOption("amount") != SortByAmount {
		t.Fatal("expected amount")
	}
	if ParseSortOption("bogus") != SortByNextRenewal {
		t.Fatal("expected fallback to next renewal")
	}
}

func TestSortByAmountUsesCapturedRate(t *testing.T) {
	rate := decimal.NewFromInt(150)
	subs := []Subscription{
		{ID: "jpy", Amount: decimal.NewFromInt(1490), Currency: "JPY"},
		{ID: "usd", Amount: decimal.NewFromInt(20), Currency: "USD", ExchangeRate: &rate},
	}
	SortSubscriptions(subs, SortByAmount, time.Now())
	if subs[0].ID != "usd" {
		t.Fatalf("expected 20 USD (3000 JPY) first, got %s", subs[0].ID)
	}
}

func TestSubscriptionInKeepsMonthEndClamping(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	start := time.Date(2025, 1, 31, 0, 0, 0, 0, tokyo)
	sub := Subscription{StartDate: start.UTC(), Cycle: Monthly}

	got, err := sub.In(tokyo).NextRenewal(time.Date(2025, 2, 1, 0, 0, 0, 0, tokyo))
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2025, 2, 28, 0, 0, 0, 0, tokyo); !got.Equal(want) {
		t.Fatalf("NextRenewal() = %v, want %v", got, want)
	}
}
