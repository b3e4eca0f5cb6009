package services

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"subtrack/internal/core"
)

// SubscriptionRecord is the external JSON form of a subscription, shared by
// the HTTP API and the JSON export/import.
type SubscriptionRecord struct {
	ID            string           `json:"id,omitempty"`
	ServiceName   string           `json:"serviceName"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency"`
	ExchangeRate  *decimal.Decimal `json:"exchangeRate,omitempty"`
	PaymentMethod string           `json:"paymentMethod"`
	Notes         string           `json:"notes"`
	StartDate     time.Time        `json:"startDate"`
	Cycle         core.Cycle       `json:"cycle"`
	LeadTimes     []core.LeadTime  `json:"leadTimes"`
	NotifyAt      *core.TimeOfDay  `json:"notifyAt,omitempty"`
	IsActive      *bool            `json:"isActive,omitempty"`
	CreatedAt     time.Time        `json:"createdAt,omitempty"`
	UpdatedAt     time.Time        `json:"updatedAt,omitempty"`
}

// NewRecord converts a stored subscription to its external form.
func NewRecord(s core.Subscription) SubscriptionRecord {
	active := s.IsActive
	notifyAt := s.NotifyAt
	leads := s.LeadTimes
	if leads == nil {
		leads = []core.LeadTime{}
	}
	return SubscriptionRecord{
		ID:            s.ID,
		ServiceName:   s.ServiceName,
		Amount:        s.Amount,
		Currency:      s.Currency,
		ExchangeRate:  s.ExchangeRate,
		PaymentMethod: s.PaymentMethod,
		Notes:         s.Notes,
		StartDate:     s.StartDate,
		Cycle:         s.Cycle,
		LeadTimes:     leads,
		NotifyAt:      &notifyAt,
		IsActive:      &active,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

// Subscription converts the record to the domain type, applying defaults:
// reminders at 10:00, active unless stated otherwise. Validation is left to
// the service.
func (r SubscriptionRecord) Subscription() core.Subscription {
	s := core.Subscription{
		ID:            strings.TrimSpace(r.ID),
		ServiceName:   strings.TrimSpace(r.ServiceName),
		Amount:        r.Amount,
		Currency:      strings.ToUpper(strings.TrimSpace(r.Currency)),
		ExchangeRate:  r.ExchangeRate,
		PaymentMethod: strings.TrimSpace(r.PaymentMethod),
		Notes:         r.Notes,
		StartDate:     r.StartDate,
		Cycle:         r.Cycle,
		LeadTimes:     r.LeadTimes,
		NotifyAt:      core.DefaultNotifyAt,
		IsActive:      true,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.NotifyAt != nil {
		s.NotifyAt = *r.NotifyAt
	}
	if r.IsActive != nil {
		s.IsActive = *r.IsActive
	}
	return s
}
