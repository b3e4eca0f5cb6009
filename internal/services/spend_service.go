package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"subtrack/internal/core"
	"subtrack/internal/rates"
)

// UnspecifiedPaymentMethod labels subscriptions without a payment method.
const UnspecifiedPaymentMethod = "Unspecified"

// RateLookup resolves an exchange rate.
type RateLookup interface {
	GetRate(ctx context.Context, base, target string, asOf time.Time) (rates.Lookup, error)
}

// ActiveLister lists active subscriptions.
type ActiveLister interface {
	ListActiveSubscriptions(ctx context.Context) ([]core.Subscription, error)
}

// SpendService aggregates spending across active subscriptions.
type SpendService struct {
	subs            ActiveLister
	rates           RateLookup
	displayCurrency string
	upcomingWindow  time.Duration
	loc             *time.Location
}

// NewSpendService builds the service. Upcoming renewals within window are
// listed in summaries; a non-positive window means 30 days.
func NewSpendService(subs ActiveLister, rates RateLookup, displayCurrency string, window time.Duration) *SpendService {
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	return &SpendService{subs: subs, rates: rates, displayCurrency: displayCurrency, upcomingWindow: window, loc: time.UTC}
}

// WithLocation sets the zone upcoming renewals are computed in.
func (s *SpendService) WithLocation(loc *time.Location) *SpendService {
	if loc != nil {
		s.loc = loc
	}
	return s
}

func (s *SpendService) DisplayCurrency() string {
	return s.displayCurrency
}

// Summary computes totals in the display currency as of asOf.
func (s *SpendService) Summary(ctx context.Context, asOf time.Time) (core.SpendSummary, error) {
	subs, err := s.subs.ListActiveSubscriptions(ctx)
	if err != nil {
		return core.SpendSummary{}, err
	}
	found, err := s.lookupRates(ctx, subs, asOf)
	if err != nil {
		return core.SpendSummary{}, err
	}

	out := core.SpendSummary{
		AsOf:            asOf,
		DisplayCurrency: s.displayCurrency,
		MonthlyTotal:    decimal.Zero,
		YearlyTotal:     decimal.Zero,
		ByCurrency:      []core.CurrencyAmount{},
		ByPaymentMethod: []core.MethodAmount{},
		Upcoming:        []core.UpcomingRenewal{},
	}
	byCurrency := map[string]*core.CurrencyAmount{}
	byMethod := map[string]*core.MethodAmount{}
	horizon := asOf.Add(s.upcomingWindow)

	for _, sub := range subs {
		sub = sub.In(s.loc)
		out.ActiveCount++

		ca, ok := byCurrency[sub.Currency]
		if !ok {
			ca = &core.CurrencyAmount{Currency: sub.Currency, Monthly: decimal.Zero, Yearly: decimal.Zero}
			byCurrency[sub.Currency] = ca
		}
		ca.Monthly = ca.Monthly.Add(sub.MonthlyEquivalent())
		ca.Yearly = ca.Yearly.Add(sub.YearlyEquivalent())

		if next, err := sub.NextRenewal(asOf); err == nil && !next.After(horizon) {
			out.Upcoming = append(out.Upcoming, core.UpcomingRenewal{
				SubscriptionID: sub.ID,
				ServiceName:    sub.ServiceName,
				RenewsAt:       next,
				Amount:         sub.Amount,
				Currency:       sub.Currency,
			})
		}

		rate, ok := s.rateFor(sub, found)
		if !ok {
			out.Unconverted = append(out.Unconverted, sub.ID)
			continue
		}
		monthly := core.Convert(sub.MonthlyEquivalent(), rate)
		out.MonthlyTotal = out.MonthlyTotal.Add(monthly)
		out.YearlyTotal = out.YearlyTotal.Add(core.Convert(sub.YearlyEquivalent(), rate))

		method := sub.PaymentMethod
		if method == "" {
			method = UnspecifiedPaymentMethod
		}
		ma, ok := byMethod[method]
		if !ok {
			ma = &core.MethodAmount{PaymentMethod: method, Monthly: decimal.Zero}
			byMethod[method] = ma
		}
		ma.Monthly = ma.Monthly.Add(monthly)
		ma.Count++
	}

	out.MonthlyTotal = out.MonthlyTotal.Round(2)
	out.YearlyTotal = out.YearlyTotal.Round(2)
	for _, ca := range byCurrency {
		ca.Monthly = ca.Monthly.Round(2)
		ca.Yearly = ca.Yearly.Round(2)
		out.ByCurrency = append(out.ByCurrency, *ca)
	}
	sort.Slice(out.ByCurrency, func(i, j int) bool {
		return out.ByCurrency[i].Currency < out.ByCurrency[j].Currency
	})
	for _, ma := range byMethod {
		ma.Monthly = ma.Monthly.Round(2)
		out.ByPaymentMethod = append(out.ByPaymentMethod, *ma)
	}
	sort.Slice(out.ByPaymentMethod, func(i, j int) bool {
		a, b := out.ByPaymentMethod[i], out.ByPaymentMethod[j]
		if !a.Monthly.Equal(b.Monthly) {
			return a.Monthly.GreaterThan(b.Monthly)
		}
		return a.PaymentMethod < b.PaymentMethod
	})
	sort.SliceStable(out.Upcoming, func(i, j int) bool {
		return out.Upcoming[i].RenewsAt.Before(out.Upcoming[j].RenewsAt)
	})
	return out, nil
}

// rateFor picks the conversion rate: identity, then the rate cache, then the
// rate captured on the subscription.
func (s *SpendService) rateFor(sub core.Subscription, found map[string]decimal.Decimal) (decimal.Decimal, bool) {
	if sub.Currency == s.displayCurrency {
		return decimal.NewFromInt(1), true
	}
	if r, ok := found[sub.Currency]; ok {
		return r, true
	}
	if sub.ExchangeRate != nil {
		return *sub.ExchangeRate, true
	}
	return decimal.Zero, false
}

// lookupRates resolves one rate per foreign currency concurrently. A failed
// lookup only leaves its currency out of the result.
func (s *SpendService) lookupRates(ctx context.Context, subs []core.Subscription, asOf time.Time) (map[string]decimal.Decimal, error) {
	found := map[string]decimal.Decimal{}
	if s.rates == nil {
		return found, nil
	}
	need := map[string]bool{}
	for _, sub := range subs {
		if sub.Currency != s.displayCurrency {
			need[sub.Currency] = true
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for cur := range need {
		g.Go(func() error {
			l, err := s.rates.GetRate(gctx, cur, s.displayCurrency, asOf)
			if err != nil {
				slog.WarnContext(gctx, "Exchange rate unavailable for summary",
					"base", cur, "target", s.displayCurrency, "error", err)
				return nil
			}
			mu.Lock()
			found[cur] = l.Rate
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, ctx.Err()
}
