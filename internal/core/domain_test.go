package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNormalizeCurrency(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"cad", "CAD", true},
		{" usd ", "USD", true},
		{"EU", "", false},
		{"EURO", "", false},
		{"U$D", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := NormalizeCurrency(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.want, got, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidCurrency) {
			t.Fatalf("%q expected ErrInvalidCurrency, got %v", tc.in, err)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]SplitPolicy{
		"equal":  PolicyEqual,
		"":       PolicyEqual,
		"Ratio":  PolicyRatio,
		"amount": PolicyFixed,
		"fixed":  PolicyFixed,
	} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParsePolicy(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("percent"); !errors.Is(err, ErrInvalidSplit) {
		t.Fatalf("expected ErrInvalidSplit, got %v", err)
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{
		TripID:           "t1",
		PayerID:          "a",
		Description:      "dinner",
		CanonicalAmount:  dec("90.00"),
		OriginalAmount:   dec("90.00"),
		OriginalCurrency: "CAD",
		ExchangeRate:     decimal.NewFromInt(1),
		Splits: []Split{
			{MemberID: "a", Amount: dec("30.00"), Policy: PolicyEqual},
			{MemberID: "b", Amount: dec("30.00"), Policy: PolicyEqual},
			{MemberID: "c", Amount: dec("30.00"), Policy: PolicyEqual},
		},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	offByCent := good
	offByCent.Splits = []Split{
		{MemberID: "a", Amount: dec("89.99"), Policy: PolicyFixed},
	}
	if err := offByCent.Validate(); err != nil {
		t.Fatalf("one cent drift should be tolerated, got %v", err)
	}

	mismatch := good
	mismatch.Splits = []Split{{MemberID: "a", Amount: dec("80.00"), Policy: PolicyFixed}}
	if err := mismatch.Validate(); !errors.Is(err, ErrSplitMismatch) {
		t.Fatalf("expected ErrSplitMismatch, got %v", err)
	}

	noDesc := good
	noDesc.Description = "  "
	if err := noDesc.Validate(); !errors.Is(err, ErrEmptyDescription) {
		t.Fatalf("expected ErrEmptyDescription, got %v", err)
	}

	zero := good
	zero.CanonicalAmount = decimal.Zero
	if err := zero.Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	noSplits := good
	noSplits.Splits = nil
	if err := noSplits.Validate(); !errors.Is(err, ErrInvalidSplit) {
		t.Fatalf("expected ErrInvalidSplit, got %v", err)
	}
}
