// Package google exports recorded expenses as rows of a Google Sheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"tripsplit/internal/amqp"
	"tripsplit/internal/core"
	"tripsplit/internal/log"
)

// Header is the column layout written by AppendExpense.
var Header = []any{
	"Date", "Trip", "Expense", "Payer", "Description",
	"Amount", "Currency", "Rate", "Canonical", "Accounting", "Splits",
}

type Config struct {
	SpreadsheetID string
	// SheetName is the base tab name; the event year is prefixed ("2024 Trips").
	SheetName string
	// CredentialsJSON takes precedence over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *log.Logger
}

// New builds a client authenticated with service account credentials.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg, logger), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = "Trips"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetBase:     base,
		logger:        logger.WithComponent(log.ComponentSheets),
	}
}

func loadCredentials(cfg Config) ([]byte, error) {
	if js := strings.TrimSpace(cfg.CredentialsJSON); js != "" {
		return []byte(js), nil
	}
	path := strings.TrimSpace(cfg.CredentialsFile)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// AppendExpense writes one row for the event and returns the updated range.
func (c *Client) AppendExpense(ctx context.Context, msg *amqp.ExpenseAddedMessage) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	sheet := yearPrefixedName(c.sheetBase, msg.OccurredAt.Year())
	rng := fmt.Sprintf("%s!A:K", sheet)
	vr := &gsheet.ValueRange{Values: [][]any{expenseRow(msg)}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := sheet
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Expense exported",
		log.FieldExpenseID, msg.ExpenseID,
		log.FieldTripID, msg.TripID,
		"range", ref)
	return ref, nil
}

// expenseRow renders amounts as fixed-point strings so the sheet never sees
// binary floats.
func expenseRow(msg *amqp.ExpenseAddedMessage) []any {
	shares := make([]string, len(msg.Splits))
	for i, s := range msg.Splits {
		shares[i] = fmt.Sprintf("%s=%s", s.MemberID, core.FormatMoney(s.Amount))
	}
	return []any{
		msg.OccurredAt.Format("2006-01-02"),
		msg.TripID,
		msg.ExpenseID,
		msg.PayerID,
		msg.Description,
		core.FormatMoney(msg.OriginalAmount),
		msg.OriginalCurrency,
		msg.ExchangeRate.StringFixed(core.RatePlaces),
		core.FormatMoney(msg.CanonicalAmount),
		msg.AccountingCurrency,
		strings.Join(shares, "; "),
	}
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a
// 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
