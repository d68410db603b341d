package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tripsplit/internal/amqp"
	"tripsplit/internal/core"
	"tripsplit/internal/log"
	"tripsplit/internal/storage/memory"
)

type stubExporter struct {
	calls int
	err   error
}

func (s *stubExporter) AppendExpense(_ context.Context, _ *amqp.ExpenseAddedMessage) (string, error) {
	s.calls++
	return "Trips!A2:K2", s.err
}

func message() *amqp.ExpenseAddedMessage {
	msg := amqp.NewExpenseAddedMessage(core.Expense{
		ID:               "e1",
		TripID:           "t1",
		PayerID:          "alice",
		Description:      "hostel",
		CanonicalAmount:  decimal.RequireFromString("40.00"),
		OriginalAmount:   decimal.RequireFromString("40.00"),
		OriginalCurrency: "CAD",
		ExchangeRate:     decimal.NewFromInt(1),
		CreatedAt:        time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		Splits: []core.Split{
			{MemberID: "alice", Amount: decimal.RequireFromString("20.00")},
			{MemberID: "bob", Amount: decimal.RequireFromString("20.00")},
		},
	}, "CAD")
	return msg
}

func TestHandleExpenseAddedRecordsAudit(t *testing.T) {
	store := memory.New()
	exp := &stubExporter{}
	w := NewAuditWorker(store, exp, log.Discard())

	msg := message()
	if err := w.HandleExpenseAdded(context.Background(), msg); err != nil {
		t.Fatalf("HandleExpenseAdded() error = %v", err)
	}

	entries, err := store.ListAudit(context.Background(), "t1", 10, 0)
	if err != nil {
		t.Fatalf("ListAudit() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ID != msg.EventID || e.Action != amqp.EventExpenseAdded || e.MemberID != "alice" {
		t.Errorf("unexpected entry %+v", e)
	}

	var details map[string]any
	if err := json.Unmarshal([]byte(e.Details), &details); err != nil {
		t.Fatalf("details are not JSON: %v", err)
	}
	if details["canonical_amount"] != "40.00" || details["splits"] != float64(2) {
		t.Errorf("unexpected details %v", details)
	}
	if exp.calls != 1 {
		t.Errorf("exporter called %d times", exp.calls)
	}
}

func TestHandleExpenseAddedWithoutExporter(t *testing.T) {
	w := NewAuditWorker(memory.New(), nil, log.Discard())
	if err := w.HandleExpenseAdded(context.Background(), message()); err != nil {
		t.Fatalf("HandleExpenseAdded() error = %v", err)
	}
}

func TestHandleExpenseAddedExportFailureRequeues(t *testing.T) {
	w := NewAuditWorker(memory.New(), &stubExporter{err: errors.New("quota exceeded")}, log.Discard())
	if err := w.HandleExpenseAdded(context.Background(), message()); err == nil {
		t.Fatal("expected export failure to surface")
	}
}
