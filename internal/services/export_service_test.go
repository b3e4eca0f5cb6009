package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"subtrack/internal/storage"
)

func newExportEnv(t *testing.T) (*env, *ExportService) {
	t.Helper()
	e := newEnv(t)
	rates := &fakeRates{rates: map[string]decimal.Decimal{"USD:JPY": decimal.NewFromInt(150)}}
	return e, NewExportService(e.repo, e.svc, rates, "JPY", nil)
}

func seed(t *testing.T, e *env) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.svc.Create(ctx, netflix()); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.Create(ctx, chatGPT()); err != nil {
		t.Fatal(err)
	}
}

func TestExportCSV(t *testing.T) {
	e, exp := newExportEnv(t)
	seed(t, e)

	var buf bytes.Buffer
	if err := exp.ExportCSV(context.Background(), &buf, june1); err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if strings.Join(rows[0], "|") != strings.Join(CSVHeader, "|") {
		t.Errorf("header = %v", rows[0])
	}

	tests := []struct {
		row  []string
		want map[int]string
	}{
		{rows[1], map[int]string{0: "ChatGPT Plus", 1: "20", 2: "USD", 3: "3000", 4: "150.00", 6: "monthly",
			7: "2025-01-15 09:00:00", 8: "2025-06-15 09:00:00", 9: "3d at 10:00", 10: "active"}},
		{rows[2], map[int]string{0: "Netflix", 1: "1490", 3: "1490", 4: "", 5: "Visa", 9: "1d, 1w at 10:00"}},
	}
	for _, tt := range tests {
		for col, want := range tt.want {
			if tt.row[col] != want {
				t.Errorf("%s column %q = %q, want %q", tt.row[0], CSVHeader[col], tt.row[col], want)
			}
		}
	}
}

type recordingWriter struct {
	rows [][]string
	err  error
}

func (w *recordingWriter) WriteRows(_ context.Context, rows [][]string) error {
	w.rows = rows
	return w.err
}

func TestExportRows(t *testing.T) {
	e, exp := newExportEnv(t)
	seed(t, e)

	w := &recordingWriter{}
	n, err := exp.ExportRows(context.Background(), w, june1)
	if err != nil {
		t.Fatalf("ExportRows() error = %v", err)
	}
	if n != 2 || len(w.rows) != 3 {
		t.Errorf("ExportRows() = %d subscriptions, %d rows; want 2 and 3", n, len(w.rows))
	}

	w.err = errors.New("quota exceeded")
	if _, err := exp.ExportRows(context.Background(), w, june1); err == nil {
		t.Error("ExportRows() should fail when the writer fails")
	}
}

func TestExportJSON_ImportRoundTrip(t *testing.T) {
	e, exp := newExportEnv(t)
	seed(t, e)
	ctx := context.Background()

	var buf bytes.Buffer
	if err := exp.ExportJSON(ctx, &buf, june1); err != nil {
		t.Fatalf("ExportJSON() error = %v", err)
	}
	var doc Export
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if doc.Version != "1.0" || !doc.ExportDate.Equal(june1) || len(doc.Subscriptions) != 2 {
		t.Fatalf("export header = %s %v %d", doc.Version, doc.ExportDate, len(doc.Subscriptions))
	}

	other, otherExp := newExportEnv(t)
	res, err := otherExp.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ImportJSON() error = %v", err)
	}
	if res.Imported != 2 || len(res.Errors) != 0 {
		t.Fatalf("ImportJSON() = %+v", res)
	}
	for _, rec := range doc.Subscriptions {
		got, err := other.repo.GetSubscription(ctx, rec.ID)
		if err != nil {
			t.Fatalf("imported %s: %v", rec.ID, err)
		}
		if got.ServiceName != rec.ServiceName || !got.Amount.Equal(rec.Amount) || !got.StartDate.Equal(rec.StartDate) {
			t.Errorf("imported %s = %+v", rec.ID, got)
		}
	}

	// Importing the same document again updates in place.
	res, err = otherExp.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	if err != nil || res.Imported != 2 {
		t.Fatalf("second ImportJSON() = %+v, %v", res, err)
	}
	all, err := other.repo.ListSubscriptions(ctx, storage.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("subscriptions after re-import = %d, want 2", len(all))
	}
}

func TestImportJSON_PartialFailures(t *testing.T) {
	_, exp := newExportEnv(t)
	doc := `{"version":"1.0","subscriptions":[
		{"serviceName":"Spotify","amount":980,"currency":"JPY","startDate":"2025-03-01T00:00:00Z","cycle":"monthly","leadTimes":["1d"]},
		{"serviceName":"","amount":100,"currency":"JPY","startDate":"2025-03-01T00:00:00Z","cycle":"monthly"},
		{"serviceName":"Bad","amount":100,"currency":"JPY","startDate":"2025-03-01T00:00:00Z","cycle":"monthly","leadTimes":["9w"]}
	]}`

	res, err := exp.ImportJSON(context.Background(), strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ImportJSON() error = %v", err)
	}
	if res.Imported != 1 {
		t.Errorf("Imported = %d, want 1", res.Imported)
	}
	if len(res.Errors) != 2 || !strings.HasPrefix(res.Errors[0], "item 2:") || !strings.HasPrefix(res.Errors[1], "item 3:") {
		t.Errorf("Errors = %v", res.Errors)
	}
}

func TestImportJSON_InvalidDocument(t *testing.T) {
	_, exp := newExportEnv(t)
	for _, doc := range []string{`not json`, `{"version":"1.0"}`} {
		if _, err := exp.ImportJSON(context.Background(), strings.NewReader(doc)); !errors.Is(err, ErrInvalidImport) {
			t.Errorf("ImportJSON(%q) error = %v, want ErrInvalidImport", doc, err)
		}
	}
}
