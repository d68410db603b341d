package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PolicyEqual SplitPolicy = "equal"
	PolicyRatio SplitPolicy = "ratio"
	PolicyFixed SplitPolicy = "fixed"
)

type (
	SplitPolicy string

	Trip struct {
		ID        string
		Name      string
		CreatedAt time.Time
	}

	Member struct {
		ID   string
		Name string
	}

	// Expense is immutable once created. CanonicalAmount is in the
	// accounting currency; ExchangeRate is foreign units per accounting unit.
	Expense struct {
		ID               string
		TripID           string
		PayerID          string
		Description      string
		CanonicalAmount  decimal.Decimal
		OriginalAmount   decimal.Decimal
		OriginalCurrency string
		ExchangeRate     decimal.Decimal
		Splits           []Split
		CreatedAt        time.Time
	}

	Split struct {
		MemberID string
		Amount   decimal.Decimal
		Policy   SplitPolicy
		Ratio    *decimal.Decimal // only set for PolicyRatio
	}

	RateEntry struct {
		Currency    string
		Rate        decimal.Decimal
		LastUpdated time.Time
	}

	AuditEntry struct {
		ID        string
		TripID    string
		MemberID  string
		Action    string
		Details   string // JSON document
		CreatedAt time.Time
	}
)

var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidCurrency         = errors.New("invalid currency code")
	ErrEmptyDescription        = errors.New("empty description")
	ErrUnsupportedCurrency     = errors.New("unsupported currency")
	ErrRateProviderUnavailable = errors.New("rate provider unavailable")
	ErrInvalidSplit            = errors.New("invalid split")
	ErrSplitMismatch           = errors.New("split amounts do not match total")
	ErrUnknownMember           = errors.New("unknown member")
	ErrTripNotFound            = errors.New("trip not found")
	ErrNotTripMember           = errors.New("not a trip member")
	ErrInvalidTrip             = errors.New("invalid trip")
	ErrDuplicateMember         = errors.New("duplicate member")
)

// ParsePolicy accepts the policy names used by the API; "amount" is an alias
// for the fixed policy.
func ParsePolicy(s string) (SplitPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equal", "":
		return PolicyEqual, nil
	case "ratio":
		return PolicyRatio, nil
	case "fixed", "amount", "fixed-amount":
		return PolicyFixed, nil
	}
	return "", ErrInvalidSplit
}

func (p SplitPolicy) IsValid() bool {
	switch p {
	case PolicyEqual, PolicyRatio, PolicyFixed:
		return true
	}
	return false
}

// NormalizeCurrency upper-cases and validates a 3-letter ISO-4217 code.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return code, nil
}

// SplitTotal sums the split amounts.
func (e Expense) SplitTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, s := range e.Splits {
		sum = sum.Add(s.Amount)
	}
	return sum
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.TripID) == "" {
		return ErrTripNotFound
	}
	if strings.TrimSpace(e.PayerID) == "" {
		return ErrUnknownMember
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if !e.CanonicalAmount.IsPositive() || !e.OriginalAmount.IsPositive() {
		return ErrInvalidAmount
	}
	if _, err := NormalizeCurrency(e.OriginalCurrency); err != nil {
		return err
	}
	if len(e.Splits) == 0 {
		return ErrInvalidSplit
	}
	if e.SplitTotal().Sub(e.CanonicalAmount).Abs().GreaterThan(Tolerance) {
		return ErrSplitMismatch
	}
	return nil
}
