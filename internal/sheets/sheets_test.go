package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
)

type recordedCall struct {
	method string
	path   string
	body   map[string]any
}

func newFakeSheets(t *testing.T, status int) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recordedCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		calls = append(calls, recordedCall{method: r.Method, path: r.URL.Path, body: body})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestExporter(t *testing.T, srv *httptest.Server) *Exporter {
	t.Helper()
	exp, err := NewExporter(context.Background(),
		Config{SpreadsheetID: "sheet-123"},
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewExporter() error = %v", err)
	}
	return exp
}

func TestNewExporter_Validation(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"missing spreadsheet", Config{}, "GOOGLE_SPREADSHEET_ID"},
		{"missing credentials", Config{SpreadsheetID: "x"}, "missing service account credentials"},
		{"unreadable key file", Config{SpreadsheetID: "x", CredentialsFile: "/nonexistent/key.json"}, "read service account file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExporter(context.Background(), tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("NewExporter() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestWriteRows(t *testing.T) {
	srv, calls := newFakeSheets(t, http.StatusOK)
	exp := newTestExporter(t, srv)

	rows := [][]string{{"Service", "Amount"}, {"Netflix", "1490"}}
	if err := exp.WriteRows(context.Background(), rows); err != nil {
		t.Fatalf("WriteRows() error = %v", err)
	}

	if len(*calls) != 2 {
		t.Fatalf("calls = %d, want clear then update", len(*calls))
	}
	clear, update := (*calls)[0], (*calls)[1]
	if clear.method != http.MethodPost || !strings.HasSuffix(clear.path, "/values/Subscriptions!A:Z:clear") {
		t.Errorf("clear call = %s %s", clear.method, clear.path)
	}
	if update.method != http.MethodPut || !strings.HasSuffix(update.path, "/values/Subscriptions!A1") {
		t.Errorf("update call = %s %s", update.method, update.path)
	}
	if !strings.Contains(update.path, "/spreadsheets/sheet-123/") {
		t.Errorf("update path %s does not target the spreadsheet", update.path)
	}
	values, _ := update.body["values"].([]any)
	if len(values) != 2 {
		t.Fatalf("update values = %v", update.body["values"])
	}
	second, _ := values[1].([]any)
	if len(second) != 2 || second[0] != "Netflix" || second[1] != "1490" {
		t.Errorf("second row = %v", second)
	}
}

func TestWriteRows_APIError(t *testing.T) {
	srv, _ := newFakeSheets(t, http.StatusForbidden)
	exp := newTestExporter(t, srv)

	err := exp.WriteRows(context.Background(), [][]string{{"a"}})
	if err == nil || !strings.Contains(err.Error(), "clear sheet Subscriptions") {
		t.Errorf("WriteRows() error = %v, want clear failure", err)
	}
}
