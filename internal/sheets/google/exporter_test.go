package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"billbuddy/internal/core"

	goption "google.golang.org/api/option"
)

func sampleReport() core.Report {
	return core.BuildReport(
		[]core.EqualSplitEntry{{ID: "e1", Label: "Pizza", Amount: 250, Payer: "John", SharedWith: []string{"Alice", "Bob"}}},
		nil,
	)
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet"})
	if err == nil || !strings.Contains(err.Error(), "credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet", CredentialsFile: "/nonexistent/creds.json"})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRows(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := Rows(sampleReport(), 7, at)

	if rows[0][1] != int64(7) || rows[0][3] != "2024-05-01T10:00:00Z" {
		t.Errorf("header row = %v", rows[0])
	}
	if rows[1][1] != 250.0 || rows[1][3] != 1 || rows[1][5] != 3 {
		t.Errorf("summary row = %v", rows[1])
	}

	// John, Alice, Bob in first-seen order.
	john := rows[4]
	if john[0] != "John" || john[1] != 250.0 || john[2] != 83.33 || john[3] != 166.67 {
		t.Errorf("john row = %v", john)
	}
	if rows[5][0] != "Alice" || rows[6][0] != "Bob" {
		t.Errorf("ledger order = %v, %v", rows[5], rows[6])
	}

	settlements := rows[9:]
	if len(settlements) != 2 {
		t.Fatalf("settlement rows = %v", settlements)
	}
	if settlements[0][0] != "Alice" || settlements[0][1] != "John" || settlements[0][2] != 83.33 {
		t.Errorf("first settlement = %v", settlements[0])
	}
}

func TestQuoteSheet(t *testing.T) {
	if got := quoteSheet("Bob's tab"); got != "'Bob''s tab'" {
		t.Errorf("quoteSheet = %q", got)
	}
}

func TestExporter_Export(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	var written map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, r.Method+" "+r.URL.Path+" "+r.URL.Query().Get("valueInputOption"))
		if r.Method == http.MethodPut {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &written)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	exp, err := New(context.Background(), Config{SpreadsheetID: "sheet-123", SheetName: "Settle"},
		goption.WithEndpoint(srv.URL+"/"), goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := exp.Export(context.Background(), sampleReport(), 3); err != nil {
		t.Fatalf("Export: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 {
		t.Fatalf("calls = %v", calls)
	}
	if !strings.HasPrefix(calls[0], "POST ") || !strings.Contains(calls[0], "sheet-123/values/'Settle':clear") {
		t.Errorf("clear call = %s", calls[0])
	}
	if !strings.HasPrefix(calls[1], "PUT ") || !strings.HasSuffix(calls[1], " RAW") {
		t.Errorf("update call = %s", calls[1])
	}
	values, _ := written["values"].([]any)
	if len(values) != 11 {
		t.Errorf("wrote %d rows, want 11", len(values))
	}
}

func TestExporter_ExportPropagatesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"forbidden"}}`)
	}))
	defer srv.Close()

	exp, err := New(context.Background(), Config{SpreadsheetID: "sheet-123"},
		goption.WithEndpoint(srv.URL+"/"), goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = exp.Export(context.Background(), sampleReport(), 1)
	if err == nil || !strings.Contains(err.Error(), "clear sheet") {
		t.Fatalf("expected clear error, got %v", err)
	}
}
