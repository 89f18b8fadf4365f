package rates

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/ratehub/internal/domain"
	"github.com/vadiminshakov/ratehub/internal/metrics"
	"github.com/vadiminshakov/ratehub/internal/storage/journal"
	"github.com/vadiminshakov/ratehub/internal/storage/snapshot"
)

var refreshedAt = time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	snapshot *snapshot.Store
	journal  *journal.Store
	now      time.Time
	svc      *Service
}

func newFixture(t *testing.T, seed map[string]float64) *fixture {
	t.Helper()

	dir := t.TempDir()
	f := &fixture{
		snapshot: snapshot.NewStore(filepath.Join(dir, "rates.json"), nil),
		journal:  journal.NewStore(filepath.Join(dir, "exchange_rates.json"), nil),
		now:      refreshedAt.Add(time.Minute),
	}

	entries := make([]domain.JournalEntry, 0, len(seed))
	for key, rate := range seed {
		pair, err := domain.ParsePair(key)
		require.NoError(t, err)
		entry, err := domain.NewJournalEntry(pair, decimal.NewFromFloat(rate), "coingecko", refreshedAt, nil)
		require.NoError(t, err)
		entries = append(entries, entry)
	}
	if len(entries) > 0 {
		_, err := f.snapshot.Merge(entries)
		require.NoError(t, err)
	}

	f.svc = NewService(f.snapshot, f.journal, "USD", nil,
		WithClock(func() time.Time { return f.now }),
		WithMetrics(metrics.New()))

	return f
}

func TestService_GetRate(t *testing.T) {
	f := newFixture(t, map[string]float64{"BTC_USD": 50000})

	tests := []struct {
		name    string
		base    string
		quote   string
		want    string
		errType any
	}{
		{name: "cached pair", base: "btc", quote: "usd", want: "50000"},
		{name: "reverse is not derived", base: "USD", quote: "BTC", errType: &domain.RateNotFoundError{}},
		{name: "unknown currency", base: "ABC", quote: "USD", errType: &domain.CurrencyNotFoundError{}},
		{name: "malformed code", base: "B1", quote: "USD", errType: &domain.ValidationError{}},
		{name: "same currency", base: "USD", quote: "USD", errType: &domain.ValidationError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, updatedAt, err := f.svc.GetRate(tt.base, tt.quote)
			if tt.errType != nil {
				require.Error(t, err)
				assert.IsType(t, tt.errType, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, rate.String())
			assert.Equal(t, refreshedAt, updatedAt)
		})
	}
}

func TestService_GetRateWithCache_Direct(t *testing.T) {
	f := newFixture(t, map[string]float64{"BTC_USD": 50000})

	q, err := f.svc.GetRateWithCache("BTC", "USD", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "50000", q.Rate.String())
	assert.Equal(t, "0.00002", q.ReverseRate.String())
	assert.Equal(t, refreshedAt, q.UpdatedAt)
	assert.False(t, q.Derived)
	assert.False(t, q.Refreshed)
	assert.Equal(t, "coingecko", q.Source)
}

func TestService_GetRateWithCache_ReverseDerivation(t *testing.T) {
	f := newFixture(t, map[string]float64{"USD_BTC": 0.00002})

	q, err := f.svc.GetRateWithCache("BTC", "USD", time.Hour)
	require.NoError(t, err)

	assert.True(t, q.Rate.Equal(decimal.NewFromInt(50000)), q.Rate.String())
	assert.True(t, q.ReverseRate.Equal(decimal.RequireFromString("0.00002")), q.ReverseRate.String())
	assert.True(t, q.Derived)
}

func TestService_GetRateWithCache_ReverseRateKeepsStoredValue(t *testing.T) {
	tests := []struct {
		name string
		rate float64
	}{
		{name: "integer", rate: 3},
		{name: "fraction", rate: 0.91},
		{name: "small", rate: 0.0000153},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]float64{"USD_BTC": tt.rate})

			q, err := f.svc.GetRateWithCache("BTC", "USD", time.Hour)
			require.NoError(t, err)

			stored := decimal.NewFromFloat(tt.rate)
			assert.True(t, q.ReverseRate.Equal(stored), q.ReverseRate.String())
			assert.True(t, q.Rate.Equal(decimal.NewFromInt(1).Div(stored)), q.Rate.String())
		})
	}
}

func TestService_GetRateWithCache_Unavailable(t *testing.T) {
	f := newFixture(t, map[string]float64{"BTC_USD": 50000})

	_, err := f.svc.GetRateWithCache("ETH", "EUR", time.Hour)
	var unavailable *domain.ApiUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "ETH_EUR", unavailable.Pair.Key())

	_, err = f.svc.GetRateWithCache("ETH", "ZZZ", time.Hour)
	assert.IsType(t, &domain.CurrencyNotFoundError{}, err)
}

func TestService_GetRateWithCache_StubRefresh(t *testing.T) {
	f := newFixture(t, map[string]float64{"BTC_USD": 50000, "EUR_USD": 1.1})
	f.now = refreshedAt.Add(10 * time.Minute)

	q, err := f.svc.GetRateWithCache("BTC", "USD", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, q.Refreshed)
	assert.Equal(t, f.now, q.UpdatedAt)
	assert.Equal(t, "50000", q.Rate.String())
	assert.Equal(t, domain.StubRefreshSource, q.Source)

	snap, err := f.snapshot.Load()
	require.NoError(t, err)
	entry := snap.Pairs["BTC_USD"]
	assert.Equal(t, f.now, entry.UpdatedAt)
	assert.Equal(t, "50000", entry.Rate.String())
	assert.Equal(t, domain.StubRefreshSource, entry.Source)
	require.NotNil(t, snap.LastRefresh)
	assert.Equal(t, f.now, *snap.LastRefresh)

	assert.Equal(t, refreshedAt, snap.Pairs["EUR_USD"].UpdatedAt, "other pairs keep their timestamp")
}

func TestService_GetRateWithCache_StubRefreshReversePair(t *testing.T) {
	f := newFixture(t, map[string]float64{"USD_BTC": 0.00002})
	f.now = refreshedAt.Add(time.Hour)

	q, err := f.svc.GetRateWithCache("BTC", "USD", time.Minute)
	require.NoError(t, err)
	assert.True(t, q.Refreshed)

	snap, err := f.snapshot.Load()
	require.NoError(t, err)
	assert.Equal(t, f.now, snap.Pairs["USD_BTC"].UpdatedAt)
	assert.NotContains(t, snap.Pairs, "BTC_USD")
}

func TestService_Convert(t *testing.T) {
	f := newFixture(t, map[string]float64{"BTC_USD": 50000})

	tests := []struct {
		name    string
		amount  string
		from    string
		to      string
		want    string
		errType any
	}{
		{name: "direct", amount: "0.5", from: "BTC", to: "USD", want: "25000"},
		{name: "reverse", amount: "1000", from: "USD", to: "BTC", want: "0.02"},
		{name: "same currency", amount: "12.5", from: "usd", to: "USD", want: "12.5"},
		{name: "zero amount", amount: "0", from: "BTC", to: "USD", errType: &domain.ValidationError{}},
		{name: "negative amount", amount: "-1", from: "BTC", to: "USD", errType: &domain.ValidationError{}},
		{name: "unknown currency", amount: "1", from: "BTC", to: "ZZZ", errType: &domain.CurrencyNotFoundError{}},
		{name: "no rate", amount: "1", from: "ETH", to: "USD", errType: &domain.ApiUnavailableError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv, err := f.svc.Convert(decimal.RequireFromString(tt.amount), tt.from, tt.to, time.Hour)
			if tt.errType != nil {
				require.Error(t, err)
				assert.IsType(t, tt.errType, err)
				return
			}

			require.NoError(t, err)
			assert.True(t, conv.Result.Equal(decimal.RequireFromString(tt.want)), conv.Result.String())
		})
	}
}

func TestService_ListRates(t *testing.T) {
	seed := map[string]float64{
		"EUR_USD": 1.1,
		"BTC_USD": 50000,
		"ETH_USD": 3000,
		"SOL_USD": 150,
		"ETH_BTC": 0.06,
	}

	t.Run("default sort by key", func(t *testing.T) {
		f := newFixture(t, seed)
		listing, err := f.svc.ListRates(ListOptions{})
		require.NoError(t, err)

		assert.Equal(t, "USD", listing.Base)
		assert.Equal(t, []string{"BTC_USD", "ETH_BTC", "ETH_USD", "EUR_USD", "SOL_USD"}, keys(listing.Rows))
		require.NotNil(t, listing.LastRefresh)
		assert.Equal(t, refreshedAt, *listing.LastRefresh)
	})

	t.Run("re-denominated into EUR", func(t *testing.T) {
		f := newFixture(t, seed)
		listing, err := f.svc.ListRates(ListOptions{Base: "eur"})
		require.NoError(t, err)

		assert.Equal(t, "EUR", listing.Base)
		assert.Equal(t, []string{"BTC_EUR", "ETH_BTC", "ETH_EUR", "SOL_EUR"}, keys(listing.Rows))

		want := decimal.NewFromInt(50000).Div(decimal.RequireFromString("1.1"))
		assert.True(t, listing.Rows[0].Rate.Equal(want), listing.Rows[0].Rate.String())
		assert.True(t, listing.Rows[0].Rate.Round(1).Equal(decimal.RequireFromString("45454.5")))
		assert.Equal(t, "0.06", listing.Rows[1].Rate.String(), "non-native quotes are left as is")
	})

	t.Run("cached pair wins over re-denominated one", func(t *testing.T) {
		f := newFixture(t, map[string]float64{"EUR_USD": 1.1, "BTC_USD": 50000, "BTC_EUR": 46000})
		listing, err := f.svc.ListRates(ListOptions{Base: "EUR"})
		require.NoError(t, err)

		assert.Equal(t, []string{"BTC_EUR"}, keys(listing.Rows))
		assert.Equal(t, "46000", listing.Rows[0].Rate.String())
	})

	t.Run("missing bridging rate", func(t *testing.T) {
		f := newFixture(t, seed)
		_, err := f.svc.ListRates(ListOptions{Base: "GBP"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "GBP_USD")

		var notFound *domain.RateNotFoundError
		assert.True(t, errors.As(err, &notFound))
	})

	t.Run("currency filter", func(t *testing.T) {
		f := newFixture(t, seed)
		listing, err := f.svc.ListRates(ListOptions{Currency: "btc"})
		require.NoError(t, err)
		assert.Equal(t, []string{"BTC_USD", "ETH_BTC"}, keys(listing.Rows))
	})

	t.Run("top crypto by rate", func(t *testing.T) {
		f := newFixture(t, seed)
		listing, err := f.svc.ListRates(ListOptions{Top: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"BTC_USD", "ETH_USD"}, keys(listing.Rows))
	})

	t.Run("negative top", func(t *testing.T) {
		f := newFixture(t, seed)
		_, err := f.svc.ListRates(ListOptions{Top: -1})
		assert.IsType(t, &domain.ValidationError{}, err)
	})

	t.Run("empty cache", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.svc.ListRates(ListOptions{})
		assert.ErrorIs(t, err, domain.ErrCacheEmpty)
	})
}

func TestInvert(t *testing.T) {
	assert.True(t, invert(decimal.Zero).IsZero())
	assert.Equal(t, "0.5", invert(decimal.NewFromInt(2)).String())
}

func keys(rows []RateRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Pair.Key()
	}

	return out
}
