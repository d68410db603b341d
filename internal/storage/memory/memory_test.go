package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tripsplit/internal/core"
)

func seedTrip(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateTrip(ctx, core.Trip{ID: "t1", Name: "Oaxaca"}); err != nil {
		t.Fatalf("create trip: %v", err)
	}
	for _, id := range []string{"a", "b"} {
		if err := s.AddMember(ctx, "t1", core.Member{ID: id, Name: id}); err != nil {
			t.Fatalf("add member %s: %v", id, err)
		}
	}
}

func expense(id string, amount string) core.Expense {
	amt := decimal.RequireFromString(amount)
	half := amt.Div(decimal.NewFromInt(2))
	return core.Expense{
		ID:               id,
		TripID:           "t1",
		PayerID:          "a",
		Description:      "dinner",
		CanonicalAmount:  amt,
		OriginalAmount:   amt,
		OriginalCurrency: "CAD",
		ExchangeRate:     decimal.NewFromInt(1),
		Splits: []core.Split{
			{MemberID: "a", Amount: half, Policy: core.PolicyEqual},
			{MemberID: "b", Amount: half, Policy: core.PolicyEqual},
		},
	}
}

func TestMembersKeepJoinOrder(t *testing.T) {
	s := New()
	seedTrip(t, s)

	members, err := s.ListMembers(context.Background(), "t1")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 || members[0].ID != "a" || members[1].ID != "b" {
		t.Fatalf("unexpected roster: %+v", members)
	}

	if err := s.AddMember(context.Background(), "t1", core.Member{ID: "a"}); err == nil {
		t.Fatalf("expected duplicate member error")
	}
	if err := s.AddMember(context.Background(), "nope", core.Member{ID: "c"}); !errors.Is(err, core.ErrTripNotFound) {
		t.Fatalf("expected ErrTripNotFound, got %v", err)
	}
}

func TestExpensesNewestFirstAndCopied(t *testing.T) {
	s := New()
	seedTrip(t, s)
	ctx := context.Background()

	if err := s.CreateExpense(ctx, expense("e1", "10.00")); err != nil {
		t.Fatalf("create e1: %v", err)
	}
	if err := s.CreateExpense(ctx, expense("e2", "20.00")); err != nil {
		t.Fatalf("create e2: %v", err)
	}

	got, err := s.ListExpenses(ctx, "t1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "e2" || got[1].ID != "e1" {
		t.Fatalf("unexpected order: %v, %v", got[0].ID, got[1].ID)
	}

	got[0].Splits[0].MemberID = "mutated"
	again, _ := s.ListExpenses(ctx, "t1")
	if again[0].Splits[0].MemberID != "a" {
		t.Fatalf("store leaked internal slice")
	}
}

func TestCreateExpenseRejectsMismatchedSplits(t *testing.T) {
	s := New()
	seedTrip(t, s)
	e := expense("e1", "10.00")
	e.Splits[0].Amount = decimal.RequireFromString("1.00")
	if err := s.CreateExpense(context.Background(), e); !errors.Is(err, core.ErrSplitMismatch) {
		t.Fatalf("expected ErrSplitMismatch, got %v", err)
	}
}

func TestUpsertRatesMergesAndSorts(t *testing.T) {
	now := time.Now()
	s := NewWithRates(core.RateEntry{Currency: "MXN", Rate: decimal.RequireFromString("12.5"), LastUpdated: now})
	ctx := context.Background()

	err := s.UpsertRates(ctx, []core.RateEntry{
		{Currency: "MXN", Rate: decimal.RequireFromString("18.5"), LastUpdated: now},
		{Currency: "EUR", Rate: decimal.RequireFromString("0.68"), LastUpdated: now},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	e, ok, _ := s.LookupRate(ctx, "MXN")
	if !ok || !e.Rate.Equal(decimal.RequireFromString("18.5")) {
		t.Fatalf("unexpected MXN entry: %+v ok=%v", e, ok)
	}
	codes, _ := s.ListCurrencies(ctx)
	if len(codes) != 2 || codes[0] != "EUR" || codes[1] != "MXN" {
		t.Fatalf("unexpected currencies: %v", codes)
	}
	if _, ok, _ := s.LookupRate(ctx, "JPY"); ok {
		t.Fatalf("unexpected JPY entry")
	}
}

func TestListAuditPaging(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		_ = s.RecordAudit(ctx, core.AuditEntry{ID: id, TripID: "t1", Action: "expense_added"})
	}
	_ = s.RecordAudit(ctx, core.AuditEntry{ID: "x", TripID: "t2", Action: "expense_added"})

	got, _ := s.ListAudit(ctx, "t1", 2, 1)
	if len(got) != 2 || got[0].ID != "2" || got[1].ID != "1" {
		t.Fatalf("unexpected page: %+v", got)
	}
	all, _ := s.ListAudit(ctx, "", 0, 0)
	if len(all) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(all))
	}
}

func TestCreateTripWithRoster(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.CreateTrip(ctx, core.Trip{ID: "t1", Name: "Oaxaca"},
		core.Member{ID: "a", Name: "a"}, core.Member{ID: "a", Name: "again"})
	if !errors.Is(err, core.ErrDuplicateMember) {
		t.Fatalf("CreateTrip() error = %v, want ErrDuplicateMember", err)
	}
	if _, err := s.GetTrip(ctx, "t1"); !errors.Is(err, core.ErrTripNotFound) {
		t.Fatalf("trip stored despite rejected roster: %v", err)
	}

	if err := s.CreateTrip(ctx, core.Trip{ID: "t1", Name: "Oaxaca"},
		core.Member{ID: "a", Name: "a"}, core.Member{ID: "b", Name: "b"}); err != nil {
		t.Fatalf("CreateTrip() error = %v", err)
	}
	members, err := s.ListMembers(ctx, "t1")
	if err != nil {
		t.Fatalf("ListMembers() error = %v", err)
	}
	if len(members) != 2 || members[0].ID != "a" || members[1].ID != "b" {
		t.Errorf("unexpected roster %+v", members)
	}
	if err := s.AddMember(ctx, "t1", core.Member{ID: "b", Name: "b"}); !errors.Is(err, core.ErrDuplicateMember) {
		t.Errorf("AddMember() error = %v, want ErrDuplicateMember", err)
	}
}
