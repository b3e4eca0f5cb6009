package core

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyAmount is a subtotal in the subscription's own currency.
type CurrencyAmount struct {
	Currency string          `json:"currency"`
	Monthly  decimal.Decimal `json:"monthly"`
	Yearly   decimal.Decimal `json:"yearly"`
}

// MethodAmount is the monthly-equivalent spend per payment method, in the display currency.
type MethodAmount struct {
	PaymentMethod string          `json:"paymentMethod"`
	Monthly       decimal.Decimal `json:"monthly"`
	Count         int             `json:"count"`
}

// UpcomingRenewal pairs a subscription with its next renewal date.
type UpcomingRenewal struct {
	SubscriptionID string          `json:"subscriptionId"`
	ServiceName    string          `json:"serviceName"`
	RenewsAt       time.Time       `json:"renewsAt"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}

// SpendSummary aggregates active subscriptions in a display currency.
type SpendSummary struct {
	AsOf            time.Time         `json:"asOf"`
	DisplayCurrency string            `json:"displayCurrency"`
	MonthlyTotal    decimal.Decimal   `json:"monthlyTotal"`
	YearlyTotal     decimal.Decimal   `json:"yearlyTotal"`
	ActiveCount     int               `json:"activeCount"`
	ByCurrency      []CurrencyAmount  `json:"byCurrency"`
	ByPaymentMethod []MethodAmount    `json:"byPaymentMethod"`
	Upcoming        []UpcomingRenewal `json:"upcoming"`
	Unconverted     []string          `json:"unconverted,omitempty"` // subscription IDs with no usable rate
}

// SortOption orders subscription listings.
type SortOption string

const (
	SortByNextRenewal   SortOption = "nextRenewal"
	SortByAmount        SortOption = "amount"
	SortByServiceName   SortOption = "serviceName"
	SortByRecentlyAdded SortOption = "recentlyAdded"
)

// ParseSortOption falls back to SortByNextRenewal for unknown values.
func ParseSortOption(s string) SortOption {
	switch SortOption(s) {
	case SortByAmount, SortByServiceName, SortByRecentlyAdded:
		return SortOption(s)
	default:
		return SortByNextRenewal
	}
}

// SortSubscriptions orders subs in place. Amounts compare in the display
// currency via DisplayAmount. Renewal errors sort last.
func SortSubscriptions(subs []Subscription, opt SortOption, asOf time.Time) {
	switch opt {
	case SortByAmount:
		sort.SliceStable(subs, func(i, j int) bool {
			return subs[i].DisplayAmount().GreaterThan(subs[j].DisplayAmount())
		})
	case SortByServiceName:
		sort.SliceStable(subs, func(i, j int) bool {
			return strings.ToLower(subs[i].ServiceName) < strings.ToLower(subs[j].ServiceName)
		})
	case SortByRecentlyAdded:
		sort.SliceStable(subs, func(i, j int) bool {
			return subs[i].CreatedAt.After(subs[j].CreatedAt)
		})
	default:
		next := make(map[string]time.Time, len(subs))
		for _, s := range subs {
			if r, err := s.NextRenewal(asOf); err == nil {
				next[s.ID] = r
			}
		}
		sort.SliceStable(subs, func(i, j int) bool {
			a, okA := next[subs[i].ID]
			b, okB := next[subs[j].ID]
			if okA != okB {
				return okA
			}
			return a.Before(b)
		})
	}
}
