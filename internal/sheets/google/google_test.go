package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"tripsplit/internal/amqp"
	"tripsplit/internal/log"
)

func sampleMessage() *amqp.ExpenseAddedMessage {
	return &amqp.ExpenseAddedMessage{
		EventID:            "ev-1",
		TripID:             "t1",
		ExpenseID:          "e1",
		PayerID:            "alice",
		Description:        "ferry",
		CanonicalAmount:    decimal.RequireFromString("2.7"),
		AccountingCurrency: "CAD",
		OriginalAmount:     decimal.RequireFromString("50"),
		OriginalCurrency:   "MXN",
		ExchangeRate:       decimal.RequireFromString("18.5"),
		Splits: []amqp.SplitShare{
			{MemberID: "alice", Amount: decimal.RequireFromString("1.35"), Policy: "equal"},
			{MemberID: "bob", Amount: decimal.RequireFromString("1.35"), Policy: "equal"},
		},
		OccurredAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestExpenseRow(t *testing.T) {
	row := expenseRow(sampleMessage())
	if len(row) != len(Header) {
		t.Fatalf("row has %d columns, header has %d", len(row), len(Header))
	}
	want := []any{
		"2024-05-01", "t1", "e1", "alice", "ferry",
		"50.00", "MXN", "18.500000", "2.70", "CAD", "alice=1.35; bob=1.35",
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("column %v = %v, want %v", Header[i], row[i], want[i])
		}
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Trips", 2024, "2024 Trips"},
		{"  Trips  ", 2025, "2025 Trips"},
		{"2023 Trips", 2024, "2023 Trips"},
		{"1234", 2024, "2024 1234"},
		{"", 2024, ""},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}

func TestAppendExpense(t *testing.T) {
	var (
		gotPath string
		gotBody gsheet.ValueRange
		gotOpt  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotOpt = r.URL.Query().Get("valueInputOption")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"updates":{"updatedRange":"'2024 Trips'!A7:K7","updatedRows":1}}`))
	}))
	defer srv.Close()

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	c := NewWithService(svc, Config{SpreadsheetID: "sheet-123"}, log.Discard())

	ref, err := c.AppendExpense(context.Background(), sampleMessage())
	if err != nil {
		t.Fatalf("AppendExpense() error = %v", err)
	}
	if ref != "'2024 Trips'!A7:K7" {
		t.Errorf("ref = %q", ref)
	}
	if !strings.Contains(gotPath, "/spreadsheets/sheet-123/values/") || !strings.HasSuffix(gotPath, ":append") {
		t.Errorf("unexpected path %q", gotPath)
	}
	if !strings.Contains(gotPath, "2024 Trips!A:K") {
		t.Errorf("range missing from path %q", gotPath)
	}
	if gotOpt != "USER_ENTERED" {
		t.Errorf("valueInputOption = %q", gotOpt)
	}
	if len(gotBody.Values) != 1 || gotBody.Values[0][2] != "e1" {
		t.Errorf("unexpected body %+v", gotBody.Values)
	}
}

func TestAppendExpenseWithoutService(t *testing.T) {
	c := &Client{spreadsheetID: "x", sheetBase: "Trips", logger: log.Discard()}
	if _, err := c.AppendExpense(context.Background(), sampleMessage()); err == nil {
		t.Fatal("expected error when service is nil")
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{}, log.Discard())
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Config{SpreadsheetID: "x"}, log.Discard())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}
