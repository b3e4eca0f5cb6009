package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"subtrack/internal/core"
	"subtrack/internal/storage"
)

// ExportVersion is written into every JSON export.
const ExportVersion = "1.0"

const exportTimeLayout = "2006-01-02 15:04:05"

var ErrInvalidImport = errors.New("invalid import file")

// CSVHeader lists the export columns in order.
var CSVHeader = []string{
	"Service", "Amount", "Currency", "Amount (display)", "Exchange rate",
	"Payment method", "Cycle", "Start date", "Next renewal", "Notifications",
	"Status", "Notes", "Created", "Updated",
}

// Export is the JSON export document.
type Export struct {
	ExportDate    time.Time            `json:"exportDate"`
	Version       string               `json:"version"`
	Subscriptions []SubscriptionRecord `json:"subscriptions"`
}

// ImportResult reports an import: the number of stored items and one message
// per rejected item.
type ImportResult struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors"`
}

// RowWriter receives export rows, header included.
type RowWriter interface {
	WriteRows(ctx context.Context, rows [][]string) error
}

// ExportService renders subscriptions to CSV, JSON and spreadsheet rows and
// imports JSON exports back.
type ExportService struct {
	store           SubscriptionStore
	subs            *SubscriptionService
	rates           RateLookup
	displayCurrency string
	loc             *time.Location
}

func NewExportService(store SubscriptionStore, subs *SubscriptionService, rates RateLookup, displayCurrency string, loc *time.Location) *ExportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ExportService{store: store, subs: subs, rates: rates, displayCurrency: displayCurrency, loc: loc}
}

// Rows returns the header followed by one row per subscription.
func (e *ExportService) Rows(ctx context.Context, asOf time.Time) ([][]string, error) {
	subs, err := e.store.ListSubscriptions(ctx, storage.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	for i := range subs {
		subs[i] = subs[i].In(e.loc)
	}
	core.SortSubscriptions(subs, core.SortByServiceName, asOf)

	rows := make([][]string, 0, len(subs)+1)
	rows = append(rows, CSVHeader)
	for _, sub := range subs {
		rows = append(rows, e.row(ctx, sub, asOf))
	}
	return rows, nil
}

func (e *ExportService) row(ctx context.Context, sub core.Subscription, asOf time.Time) []string {
	rate := ""
	display := ""
	if sub.Currency == e.displayCurrency {
		display = core.FormatAmount(sub.Amount, sub.Currency)
	} else if r, ok := e.rate(ctx, sub, asOf); ok {
		rate = r.StringFixed(2)
		display = core.FormatAmount(core.Convert(sub.Amount, r), e.displayCurrency)
	}

	next := ""
	if sub.IsActive {
		if t, err := sub.NextRenewal(asOf); err == nil {
			next = e.formatTime(t)
		}
	}

	status := "active"
	if !sub.IsActive {
		status = "inactive"
	}

	return []string{
		sub.ServiceName,
		sub.Amount.String(),
		sub.Currency,
		display,
		rate,
		sub.PaymentMethod,
		string(sub.Cycle),
		e.formatTime(sub.StartDate),
		next,
		notificationText(sub),
		status,
		sub.Notes,
		e.formatTime(sub.CreatedAt),
		e.formatTime(sub.UpdatedAt),
	}
}

func (e *ExportService) rate(ctx context.Context, sub core.Subscription, asOf time.Time) (decimal.Decimal, bool) {
	if e.rates != nil {
		if l, err := e.rates.GetRate(ctx, sub.Currency, e.displayCurrency, asOf); err == nil {
			return l.Rate, true
		}
	}
	if sub.ExchangeRate != nil {
		return *sub.ExchangeRate, true
	}
	return decimal.Zero, false
}

func (e *ExportService) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(e.loc).Format(exportTimeLayout)
}

func notificationText(sub core.Subscription) string {
	if len(sub.LeadTimes) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(sub.LeadTimes))
	for _, l := range sub.LeadTimes {
		parts = append(parts, l.String())
	}
	return strings.Join(parts, ", ") + " at " + sub.NotifyAt.String()
}

// ExportCSV writes the CSV export to w.
func (e *ExportService) ExportCSV(ctx context.Context, w io.Writer, asOf time.Time) error {
	rows, err := e.Rows(ctx, asOf)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	slog.InfoContext(ctx, "CSV export written", "subscriptions", len(rows)-1)
	return nil
}

// ExportJSON writes the JSON export document to w.
func (e *ExportService) ExportJSON(ctx context.Context, w io.Writer, asOf time.Time) error {
	subs, err := e.store.ListSubscriptions(ctx, storage.ListFilter{})
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	doc := Export{
		ExportDate:    asOf.UTC(),
		Version:       ExportVersion,
		Subscriptions: make([]SubscriptionRecord, 0, len(subs)),
	}
	for _, sub := range subs {
		doc.Subscriptions = append(doc.Subscriptions, NewRecord(sub))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	slog.InfoContext(ctx, "JSON export written", "subscriptions", len(doc.Subscriptions))
	return nil
}

// ExportRows pushes the export rows to a spreadsheet writer and returns the
// number of subscriptions written.
func (e *ExportService) ExportRows(ctx context.Context, w RowWriter, asOf time.Time) (int, error) {
	rows, err := e.Rows(ctx, asOf)
	if err != nil {
		return 0, err
	}
	if err := w.WriteRows(ctx, rows); err != nil {
		return 0, fmt.Errorf("write rows: %w", err)
	}
	return len(rows) - 1, nil
}

// ImportJSON reads an export document. Items whose ID already exists replace
// the stored subscription; the rest are created. A bad item is reported and
// skipped. Only an unreadable document returns an error.
func (e *ExportService) ImportJSON(ctx context.Context, r io.Reader) (ImportResult, error) {
	var doc struct {
		Subscriptions []json.RawMessage `json:"subscriptions"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	if doc.Subscriptions == nil {
		return ImportResult{}, fmt.Errorf("%w: missing subscriptions", ErrInvalidImport)
	}

	res := ImportResult{Errors: []string{}}
	for i, raw := range doc.Subscriptions {
		var rec SubscriptionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("item %d: %v", i+1, err))
			continue
		}
		if err := e.importOne(ctx, rec.Subscription()); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("item %d: %v", i+1, err))
			continue
		}
		res.Imported++
	}
	slog.InfoContext(ctx, "Imported subscriptions", "imported", res.Imported, "errors", len(res.Errors))
	return res, nil
}

func (e *ExportService) importOne(ctx context.Context, sub core.Subscription) error {
	if sub.ID != "" {
		_, err := e.store.GetSubscription(ctx, sub.ID)
		switch {
		case err == nil:
			_, err = e.subs.Update(ctx, sub)
			return err
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}
	}
	_, err := e.subs.Create(ctx, sub)
	return err
}
