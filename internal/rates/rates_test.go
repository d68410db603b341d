package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripsplit/internal/core"
	"tripsplit/internal/log"
	"tripsplit/internal/storage/memory"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// countingProvider returns table and counts calls.
func countingProvider(calls *int32, table map[string]decimal.Decimal, err error) Provider {
	return ProviderFunc(func(_ context.Context, base string) (map[string]decimal.Decimal, error) {
		atomic.AddInt32(calls, 1)
		if err != nil {
			return nil, err
		}
		return table, nil
	})
}

// countingStore records every lookup.
type countingStore struct {
	*memory.Store
	lookups int32
}

func (s *countingStore) LookupRate(ctx context.Context, currency string) (core.RateEntry, bool, error) {
	atomic.AddInt32(&s.lookups, 1)
	return s.Store.LookupRate(ctx, currency)
}

func newCache(store *memory.Store, p Provider) *Cache {
	return NewCache(store, p, "CAD", WithClock(func() time.Time { return fixedNow }), WithLogger(log.Discard()))
}

func TestConvertUsesFreshRateWithoutRefresh(t *testing.T) {
	store := memory.NewWithRates(core.RateEntry{Currency: "MXN", Rate: dec("18.5"), LastUpdated: fixedNow.Add(-time.Hour)})
	var calls int32
	conv := NewConverter(newCache(store, countingProvider(&calls, nil, errors.New("unused"))))

	got, err := conv.ConvertToAccounting(context.Background(), dec("50.00"), "mxn")
	require.NoError(t, err)
	assert.True(t, got.CanonicalAmount.Equal(dec("2.70")), "canonical = %s", got.CanonicalAmount)
	assert.True(t, got.Rate.Equal(dec("18.5")))
	assert.Equal(t, "MXN", got.OriginalCurrency)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestConvertRefreshesStaleRateExactlyOnce(t *testing.T) {
	store := memory.NewWithRates(core.RateEntry{Currency: "MXN", Rate: dec("10"), LastUpdated: fixedNow.Add(-25 * time.Hour)})
	var calls int32
	p := countingProvider(&calls, map[string]decimal.Decimal{
		"CAD": dec("1"),
		"MXN": dec("18.5"),
		"EUR": dec("0.68"),
	}, nil)
	conv := NewConverter(newCache(store, p))

	got, err := conv.ConvertToAccounting(context.Background(), dec("50.00"), "MXN")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, got.CanonicalAmount.Equal(dec("2.70")), "canonical = %s", got.CanonicalAmount)

	entry, ok, err := store.LookupRate(context.Background(), "MXN")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, entry.LastUpdated.Equal(fixedNow))

	_, ok, _ = store.LookupRate(context.Background(), "CAD")
	assert.False(t, ok, "accounting currency must not be stored")
}

func TestConvertSameCurrencySkipsStore(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	var calls int32
	cache := NewCache(store, countingProvider(&calls, nil, nil), "CAD", WithLogger(log.Discard()))
	conv := NewConverter(cache)

	got, err := conv.ConvertToAccounting(context.Background(), dec("42.10"), "CAD")
	require.NoError(t, err)
	assert.True(t, got.CanonicalAmount.Equal(dec("42.10")))
	assert.True(t, got.Rate.Equal(decimal.NewFromInt(1)))
	assert.Zero(t, atomic.LoadInt32(&store.lookups))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestConvertServesStaleRateWhenProviderFails(t *testing.T) {
	store := memory.NewWithRates(core.RateEntry{Currency: "EUR", Rate: dec("0.5"), LastUpdated: fixedNow.Add(-72 * time.Hour)})
	var calls int32
	conv := NewConverter(newCache(store, countingProvider(&calls, nil, errors.New("boom"))))

	got, err := conv.ConvertToAccounting(context.Background(), dec("10.00"), "EUR")
	require.NoError(t, err)
	assert.True(t, got.CanonicalAmount.Equal(dec("20.00")))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestConvertUnknownCurrency(t *testing.T) {
	var calls int32
	conv := NewConverter(newCache(memory.New(), countingProvider(&calls, map[string]decimal.Decimal{"EUR": dec("0.68")}, nil)))

	_, err := conv.ConvertToAccounting(context.Background(), dec("10"), "XYZ")
	assert.ErrorIs(t, err, core.ErrUnsupportedCurrency)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = NewConverter(newCache(memory.New(), countingProvider(&calls, nil, errors.New("down")))).
		ConvertToAccounting(context.Background(), dec("10"), "EUR")
	assert.ErrorIs(t, err, core.ErrUnsupportedCurrency)
}

func TestConvertRejectsBadInput(t *testing.T) {
	conv := NewConverter(newCache(memory.New(), nil))

	_, err := conv.ConvertToAccounting(context.Background(), dec("0"), "EUR")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	_, err = conv.ConvertToAccounting(context.Background(), dec("-3"), "EUR")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	_, err = conv.ConvertToAccounting(context.Background(), dec("3"), "EURO")
	assert.ErrorIs(t, err, core.ErrInvalidCurrency)
}

func TestConvertRoundsHalfAwayFromZero(t *testing.T) {
	store := memory.NewWithRates(core.RateEntry{Currency: "USD", Rate: dec("2"), LastUpdated: fixedNow})
	conv := NewConverter(newCache(store, nil))

	got, err := conv.ConvertToAccounting(context.Background(), dec("0.05"), "USD")
	require.NoError(t, err)
	assert.Equal(t, "0.03", core.FormatMoney(got.CanonicalAmount))
}

func TestRefreshAllFiltersEntries(t *testing.T) {
	store := memory.New()
	var calls int32
	cache := newCache(store, countingProvider(&calls, map[string]decimal.Decimal{
		"cad":  dec("1"),
		"usd":  dec("0.73"),
		"BAD1": dec("2"),
		"ZZZ":  dec("0"),
	}, nil))

	require.NoError(t, cache.RefreshAll(context.Background()))
	codes, err := cache.Currencies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"CAD", "USD"}, codes)
}

func TestRefreshAllWithoutProvider(t *testing.T) {
	err := newCache(memory.New(), nil).RefreshAll(context.Background())
	assert.ErrorIs(t, err, core.ErrRateProviderUnavailable)
}

func TestRate(t *testing.T) {
	store := memory.NewWithRates(core.RateEntry{Currency: "JPY", Rate: dec("109.1234567"), LastUpdated: fixedNow})
	conv := NewConverter(newCache(store, nil))

	r, err := conv.Rate(context.Background(), "jpy")
	require.NoError(t, err)
	assert.Equal(t, "109.123457", r.String())

	r, err = conv.Rate(context.Background(), "CAD")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(1)))
}

func TestHTTPProviderLatestRates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v6/secret/latest/CAD", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"success","base_code":"CAD","conversion_rates":{"CAD":1,"MXN":18.5,"EUR":0.68}}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL+"/v6/", "secret", 2*time.Second)
	table, err := p.LatestRates(context.Background(), "CAD")
	require.NoError(t, err)
	assert.Len(t, table, 3)
	assert.True(t, table["MXN"].Equal(dec("18.5")))
}

func TestHTTPProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, `{}`},
		{"provider error", http.StatusOK, `{"result":"error","error-type":"invalid-key"}`},
		{"empty table", http.StatusOK, `{"result":"success","conversion_rates":{}}`},
		{"bad json", http.StatusOK, `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPProvider(srv.URL, "", time.Second).LatestRates(context.Background(), "CAD")
			assert.Error(t, err)
		})
	}
}
