// Package google exports ledgers and weekly summaries to a Google
// spreadsheet using service-account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"money/internal/core"
	"money/internal/report"
	ports "money/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	ledgerSheet   string
	summarySheet  string
}

// Ensure interface conformance
var (
	_ ports.LedgerWriter  = (*Client)(nil)
	_ ports.SummaryWriter = (*Client)(nil)
	_ ports.Exporter      = (*Client)(nil)
)

// New creates a Sheets client for the given spreadsheet and tab names.
// Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, ledgerSheet, summarySheet string) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		ledgerSheet:   ledgerSheet,
		summarySheet:  summarySheet,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// AppendLedger appends one row per ledger entry to the ledger tab. Amounts
// are written as plain decimal strings so the spreadsheet never rounds them.
func (c *Client) AppendLedger(ctx context.Context, runID int64, entries []core.CategorizedTransaction) error {
	if len(entries) == 0 {
		return nil
	}

	values := make([][]any, 0, len(entries))
	for _, e := range entries {
		values = append(values, []any{
			strconv.FormatInt(runID, 10),
			e.Date.Format("2006-01-02"),
			e.PostDate.Format("2006-01-02"),
			e.Description,
			e.Amount.StringFixed(2),
			string(e.Source),
			e.Category,
			string(e.Confidence),
			e.Origin.String(),
		})
	}

	rng := fmt.Sprintf("%s!A:I", c.ledgerSheet)
	_, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append ledger rows: %w", err)
	}

	slog.InfoContext(ctx, "Ledger exported to Google Sheets",
		"run_id", runID,
		"rows", len(values),
		"sheet", c.ledgerSheet)
	return nil
}

// AppendSummary appends the weekly summary lines plus a total row.
func (c *Client) AppendSummary(ctx context.Context, summary report.Weekly) error {
	week := summary.WeekOf.Format("2006-01-02")
	values := make([][]any, 0, len(summary.Lines)+1)
	for _, l := range summary.Lines {
		values = append(values, []any{
			week, l.Category,
			l.Budgeted.StringFixed(2), l.Actual.StringFixed(2), l.Remaining.StringFixed(2),
		})
	}
	values = append(values, []any{
		week, "TOTAL",
		summary.TotalBudgeted.StringFixed(2),
		summary.TotalActual.StringFixed(2),
		summary.TotalRemaining.StringFixed(2),
	})

	rng := fmt.Sprintf("%s!A:E", c.summarySheet)
	_, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append summary rows: %w", err)
	}

	slog.InfoContext(ctx, "Weekly summary exported to Google Sheets",
		"week_of", week,
		"rows", len(values),
		"sheet", c.summarySheet)
	return nil
}
