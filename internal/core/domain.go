package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Monthly Cycle = "monthly"
	Yearly  Cycle = "yearly"
)

// Lead time codes. The numeric code is part of the reminder key, so it must stay stable.
const (
	OneDay LeadTime = iota
	ThreeDays
	OneWeek
	TwoWeeks
)

// AllLeadTimes lists every lead time in code order.
var AllLeadTimes = []LeadTime{OneDay, ThreeDays, OneWeek, TwoWeeks}

// DefaultNotifyAt is used when a subscription carries no explicit reminder time.
var DefaultNotifyAt = TimeOfDay{Hour: 10, Minute: 0}

type (
	// Cycle is the recurrence unit of a subscription.
	Cycle string

	// LeadTime is how long before a renewal a reminder fires.
	LeadTime int

	// TimeOfDay is a wall-clock time applied to reminder instants.
	TimeOfDay struct {
		Hour   int
		Minute int
	}

	Subscription struct {
		ID            string
		ServiceName   string
		Amount        decimal.Decimal
		Currency      string           // ISO 4217 code
		ExchangeRate  *decimal.Decimal // rate captured at entry time, foreign currencies only
		PaymentMethod string
		Notes         string
		StartDate     time.Time
		Cycle         Cycle
		LeadTimes     []LeadTime
		NotifyAt      TimeOfDay
		IsActive      bool
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	// ScheduledReminder is derived from a subscription and never persisted by the core.
	// Identity is (SubscriptionID, LeadTime).
	ScheduledReminder struct {
		SubscriptionID string
		LeadTime       LeadTime
		FireAt         time.Time
	}

	// CachedRate is an exchange rate fetched from the remote source.
	CachedRate struct {
		BaseCurrency   string          `json:"baseCurrency"`
		TargetCurrency string          `json:"targetCurrency"`
		Rate           decimal.Decimal `json:"rate"`
		FetchedAt      time.Time       `json:"fetchedAt"`
	}
)

var (
	ErrInvalidCycle       = errors.New("invalid billing cycle")
	ErrInvalidLeadTime    = errors.New("invalid lead time")
	ErrInvalidTimeOfDay   = errors.New("invalid time of day")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidCurrency    = errors.New("invalid currency code")
	ErrInvalidRate        = errors.New("invalid exchange rate")
	ErrEmptyServiceName   = errors.New("empty service name")
	ErrZeroStartDate      = errors.New("start date cannot be zero")
	ErrServiceNameTooLong = errors.New("service name too long (max 200 characters)")
)

// ParseCycle accepts the cycle name case-insensitively.
func ParseCycle(s string) (Cycle, error) {
	c := Cycle(strings.ToLower(strings.TrimSpace(s)))
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

func (c Cycle) Validate() error {
	switch c {
	case Monthly, Yearly:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCycle, string(c))
	}
}

// Months returns the number of calendar months in one cycle.
func (c Cycle) Months() (int, error) {
	switch c {
	case Monthly:
		return 1, nil
	case Yearly:
		return 12, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidCycle, string(c))
	}
}

// Days returns the day offset for the lead time.
func (l LeadTime) Days() int {
	switch l {
	case OneDay:
		return 1
	case ThreeDays:
		return 3
	case OneWeek:
		return 7
	case TwoWeeks:
		return 14
	default:
		return 0
	}
}

func (l LeadTime) Validate() error {
	if l < OneDay || l > TwoWeeks {
		return fmt.Errorf("%w: %d", ErrInvalidLeadTime, int(l))
	}
	return nil
}

// Code is the stable numeric code used in reminder keys.
func (l LeadTime) Code() int {
	return int(l)
}

func (l LeadTime) String() string {
	switch l {
	case OneDay:
		return "1d"
	case ThreeDays:
		return "3d"
	case OneWeek:
		return "1w"
	case TwoWeeks:
		return "2w"
	default:
		return "lead(" + strconv.Itoa(int(l)) + ")"
	}
}

func (l LeadTime) MarshalText() ([]byte, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return []byte(l.String()), nil
}

func (l *LeadTime) UnmarshalText(b []byte) error {
	v, err := ParseLeadTime(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// ParseLeadTime accepts either the short name ("1d", "3d", "1w", "2w") or the numeric code.
func ParseLeadTime(s string) (LeadTime, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, l := range AllLeadTimes {
		if s == l.String() {
			return l, nil
		}
	}
	code, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLeadTime, s)
	}
	l := LeadTime(code)
	if err := l.Validate(); err != nil {
		return 0, err
	}
	return l, nil
}

// NormalizeLeadTimes validates, deduplicates and sorts lead times by code.
func NormalizeLeadTimes(in []LeadTime) ([]LeadTime, error) {
	var seen [4]bool
	for _, l := range in {
		if err := l.Validate(); err != nil {
			return nil, err
		}
		seen[l] = true
	}
	out := make([]LeadTime, 0, len(in))
	for _, l := range AllLeadTimes {
		if seen[l] {
			out = append(out, l)
		}
	}
	return out, nil
}

// ParseTimeOfDay parses "HH:MM" in 24h format.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) Validate() error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("%w: %02d:%02d", ErrInvalidTimeOfDay, t.Hour, t.Minute)
	}
	return nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// On returns the instant with the date of d and the clock set to t, in d's location.
func (t TimeOfDay) On(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, t.Hour, t.Minute, 0, 0, d.Location())
}

// NormalizeCurrency upper-cases and validates a three-letter currency code.
func NormalizeCurrency(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
		}
	}
	return s, nil
}

// Expired reports whether the entry is older than ttl as of asOf.
func (r CachedRate) Expired(asOf time.Time, ttl time.Duration) bool {
	return asOf.Sub(r.FetchedAt) > ttl
}

// Matches reports whether the entry is for the given currency pair.
func (r CachedRate) Matches(base, target string) bool {
	return r.BaseCurrency == base && r.TargetCurrency == target
}

func (s Subscription) Validate() error {
	if len(strings.TrimSpace(s.ServiceName)) == 0 {
		return ErrEmptyServiceName
	}
	if len(s.ServiceName) > 200 {
		return ErrServiceNameTooLong
	}
	if !s.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if _, err := NormalizeCurrency(s.Currency); err != nil {
		return err
	}
	if s.ExchangeRate != nil && !s.ExchangeRate.IsPositive() {
		return ErrInvalidRate
	}
	if s.StartDate.IsZero() {
		return ErrZeroStartDate
	}
	if err := s.Cycle.Validate(); err != nil {
		return err
	}
	for _, l := range s.LeadTimes {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	return s.NotifyAt.Validate()
}

// DisplayAmount is the amount in the display currency using the captured rate.
// Without a captured rate the amount is already in the display currency, or
// nothing better is known.
func (s Subscription) DisplayAmount() decimal.Decimal {
	if s.ExchangeRate != nil {
		return Convert(s.Amount, *s.ExchangeRate)
	}
	return s.Amount
}

// MonthlyEquivalent spreads a yearly amount over twelve months.
func (s Subscription) MonthlyEquivalent() decimal.Decimal {
	if s.Cycle == Yearly {
		return s.Amount.Div(decimal.NewFromInt(12))
	}
	return s.Amount
}

// YearlyEquivalent scales a monthly amount to a full year.
func (s Subscription) YearlyEquivalent() decimal.Decimal {
	if s.Cycle == Monthly {
		return s.Amount.Mul(decimal.NewFromInt(12))
	}
	return s.Amount
}

// IsValidationError reports whether err stems from invalid subscription input.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidCycle, ErrInvalidLeadTime, ErrInvalidTimeOfDay, ErrInvalidAmount,
		ErrInvalidCurrency, ErrInvalidRate, ErrEmptyServiceName, ErrZeroStartDate,
		ErrServiceNameTooLong,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
