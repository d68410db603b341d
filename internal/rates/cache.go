// Package rates converts foreign amounts into the accounting currency.
//
// Rates are "units of foreign currency per one accounting unit" and are
// fetched in bulk from a provider, cached in a RateStore and refreshed when a
// lookup misses or finds an entry older than the staleness threshold.
package rates

import (
	"context"
	"fmt"
	"time"

	"tripsplit/internal/core"
	"tripsplit/internal/log"
	"tripsplit/internal/ports"
)

// DefaultMaxAge is how long a cached rate stays fresh.
const DefaultMaxAge = 24 * time.Hour

// Cache is a read-mostly view over a RateStore, refreshed from a Provider.
//
// There is no single-flight guard: concurrent refreshes each write a complete
// table and the last one wins.
type Cache struct {
	store      ports.RateStore
	provider   Provider
	accounting string
	maxAge     time.Duration
	now        func() time.Time
	logger     *log.Logger
}

// CacheOption customises a Cache.
type CacheOption func(*Cache)

// WithMaxAge overrides the staleness threshold.
func WithMaxAge(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.maxAge = d
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used for refresh diagnostics.
func WithLogger(l *log.Logger) CacheOption {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewCache(store ports.RateStore, provider Provider, accounting string, opts ...CacheOption) *Cache {
	c := &Cache{
		store:      store,
		provider:   provider,
		accounting: accounting,
		maxAge:     DefaultMaxAge,
		now:        time.Now,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent(log.ComponentRates)
	return c
}

// Accounting returns the accounting currency code.
func (c *Cache) Accounting() string {
	return c.accounting
}

// Get returns the cached entry for currency, stale or not.
func (c *Cache) Get(ctx context.Context, currency string) (core.RateEntry, bool, error) {
	entry, ok, err := c.store.LookupRate(ctx, currency)
	if err != nil {
		return core.RateEntry{}, false, fmt.Errorf("lookup rate %s: %w", currency, err)
	}
	return entry, ok, nil
}

// IsStale reports whether entry is older than the staleness threshold at now.
func (c *Cache) IsStale(entry core.RateEntry, now time.Time) bool {
	return now.Sub(entry.LastUpdated) > c.maxAge
}

// RefreshAll fetches the full table for the accounting currency and upserts
// every returned rate in one step. The accounting currency itself is never
// stored. Provider failures are wrapped in core.ErrRateProviderUnavailable.
func (c *Cache) RefreshAll(ctx context.Context) error {
	if c.provider == nil {
		return fmt.Errorf("%w: no provider configured", core.ErrRateProviderUnavailable)
	}
	table, err := c.provider.LatestRates(ctx, c.accounting)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrRateProviderUnavailable, err)
	}

	now := c.now()
	entries := make([]core.RateEntry, 0, len(table))
	for code, rate := range table {
		norm, err := core.NormalizeCurrency(code)
		if err != nil || norm == c.accounting || !rate.IsPositive() {
			continue
		}
		entries = append(entries, core.RateEntry{Currency: norm, Rate: rate, LastUpdated: now})
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: empty rate table", core.ErrRateProviderUnavailable)
	}
	if err := c.store.UpsertRates(ctx, entries); err != nil {
		return fmt.Errorf("store rates: %w", err)
	}

	c.logger.InfoContext(ctx, "Exchange rates refreshed",
		log.FieldAccounting, c.accounting,
		log.FieldRateCount, len(entries))
	return nil
}

// Resolve returns a usable rate for currency, refreshing once when the
// cached entry is missing or stale. A failed refresh is logged and the stale
// entry, if any, is served. Without any entry it fails with
// core.ErrUnsupportedCurrency.
func (c *Cache) Resolve(ctx context.Context, currency string) (core.RateEntry, error) {
	entry, ok, err := c.Get(ctx, currency)
	if err != nil {
		return core.RateEntry{}, err
	}
	if ok && !c.IsStale(entry, c.now()) {
		return entry, nil
	}

	refreshErr := c.RefreshAll(ctx)
	if refreshErr != nil {
		c.logger.WarnContext(ctx, "Rate refresh failed, falling back to cached rate",
			log.FieldCurrency, currency,
			"cached", ok,
			log.FieldError, refreshErr)
		if ok {
			return entry, nil
		}
	}

	entry, ok, err = c.Get(ctx, currency)
	if err != nil {
		return core.RateEntry{}, err
	}
	if !ok {
		if refreshErr != nil {
			return core.RateEntry{}, fmt.Errorf("%w: %s (%v)", core.ErrUnsupportedCurrency, currency, refreshErr)
		}
		return core.RateEntry{}, fmt.Errorf("%w: %s", core.ErrUnsupportedCurrency, currency)
	}
	return entry, nil
}

// Currencies lists every currency the cache can convert, including the
// accounting currency.
func (c *Cache) Currencies(ctx context.Context) ([]string, error) {
	codes, err := c.store.ListCurrencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}
	out := make([]string, 0, len(codes)+1)
	out = append(out, c.accounting)
	for _, code := range codes {
		if code != c.accounting {
			out = append(out, code)
		}
	}
	return out, nil
}
