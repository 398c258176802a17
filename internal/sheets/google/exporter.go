// Package google exports settlement reports to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"billbuddy/internal/core"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config selects the spreadsheet and tab the report is written to.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
}

// Exporter overwrites one sheet with the latest report on every export.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	now           func() time.Time
}

// New creates an exporter authenticated with a service account file.
// Additional options are applied after the credentials.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Settlements"
	}

	var clientOpts []goption.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		clientOpts = append(clientOpts,
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	case len(opts) == 0:
		return nil, errors.New("missing service account credentials (set GOOGLE_CREDENTIALS_FILE)")
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets exporter ready",
		"component", "sheets",
		"spreadsheet_id", cfg.SpreadsheetID,
		"sheet", sheetName)

	return &Exporter{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheetName: sheetName, now: time.Now}, nil
}

// Export clears the sheet and writes the summary, the per-person balances and
// the settlement list.
func (e *Exporter) Export(ctx context.Context, report core.Report, revision int64) error {
	sheetRange := quoteSheet(e.sheetName)

	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, sheetRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet %s: %w", e.sheetName, err)
	}

	vr := &gsheet.ValueRange{Values: Rows(report, revision, e.now())}
	if _, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, sheetRange+"!A1", vr).
		ValueInputOption("RAW").
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("write sheet %s: %w", e.sheetName, err)
	}

	slog.InfoContext(ctx, "Report written to Google Sheets",
		"component", "sheets",
		"revision", revision,
		"rows", len(vr.Values))
	return nil
}

// Rows lays a report out as sheet rows.
func Rows(report core.Report, revision int64, at time.Time) [][]interface{} {
	rows := [][]interface{}{
		{"Revision", revision, "Updated", at.UTC().Format(time.RFC3339)},
		{"Total", round2(report.Summary.TotalAmount), "Entries", report.Summary.EntryCount, "Participants", report.Summary.ParticipantCount},
		{},
		{"Person", "Paid", "Owed", "Balance"},
	}
	for _, r := range report.Ledger.Rows() {
		rows = append(rows, []interface{}{r.Name, round2(r.TotalPaid), round2(r.TotalOwed), round2(r.NetBalance)})
	}

	rows = append(rows, []interface{}{}, []interface{}{"From", "To", "Amount"})
	for _, s := range report.Settlements {
		rows = append(rows, []interface{}{s.From, s.To, round2(s.Amount)})
	}
	return rows
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
