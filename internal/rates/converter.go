package rates

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tripsplit/internal/core"
)

// Conversion is the outcome of normalising an amount into the accounting
// currency.
type Conversion struct {
	OriginalAmount   decimal.Decimal
	OriginalCurrency string
	CanonicalAmount  decimal.Decimal // rounded to 2 places
	Rate             decimal.Decimal // rounded to 6 places
}

// Converter turns (amount, currency) pairs into accounting-currency amounts.
type Converter struct {
	cache *Cache
}

func NewConverter(cache *Cache) *Converter {
	return &Converter{cache: cache}
}

// Accounting returns the accounting currency code.
func (c *Converter) Accounting() string {
	return c.cache.Accounting()
}

// ConvertToAccounting divides amount by the cached rate. The rate is the
// number of fromCurrency units per accounting unit, so 50.00 at 18.5 gives
// 2.70. Same-currency conversions never touch the cache.
func (c *Converter) ConvertToAccounting(ctx context.Context, amount decimal.Decimal, fromCurrency string) (Conversion, error) {
	if !amount.IsPositive() {
		return Conversion{}, core.ErrInvalidAmount
	}
	code, err := core.NormalizeCurrency(fromCurrency)
	if err != nil {
		return Conversion{}, err
	}

	if code == c.cache.Accounting() {
		return Conversion{
			OriginalAmount:   amount,
			OriginalCurrency: code,
			CanonicalAmount:  amount,
			Rate:             decimal.NewFromInt(1),
		}, nil
	}

	entry, err := c.cache.Resolve(ctx, code)
	if err != nil {
		return Conversion{}, err
	}

	return Conversion{
		OriginalAmount:   amount,
		OriginalCurrency: code,
		CanonicalAmount:  core.RoundMoney(amount.Div(entry.Rate)),
		Rate:             core.RoundRate(entry.Rate),
	}, nil
}

// Rate returns the display rate for currency: 1 for the accounting currency,
// otherwise the cached rate resolved the same way a conversion would.
func (c *Converter) Rate(ctx context.Context, currency string) (decimal.Decimal, error) {
	code, err := core.NormalizeCurrency(currency)
	if err != nil {
		return decimal.Zero, err
	}
	if code == c.cache.Accounting() {
		return decimal.NewFromInt(1), nil
	}
	entry, err := c.cache.Resolve(ctx, code)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate for %s: %w", code, err)
	}
	return core.RoundRate(entry.Rate), nil
}

// Currencies lists the convertible currency codes.
func (c *Converter) Currencies(ctx context.Context) ([]string, error) {
	return c.cache.Currencies(ctx)
}

// Refresh forces a bulk refresh of the rate table.
func (c *Converter) Refresh(ctx context.Context) error {
	return c.cache.RefreshAll(ctx)
}
