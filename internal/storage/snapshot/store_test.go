package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/ratehub/internal/domain"
)

func newEntry(t *testing.T, key string, rate string, ts time.Time, source string) domain.JournalEntry {
	t.Helper()

	pair, err := domain.ParsePair(key)
	require.NoError(t, err)
	e, err := domain.NewJournalEntry(pair, decimal.RequireFromString(rate), source, ts, nil)
	require.NoError(t, err)

	return e
}

func TestStore_MergePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.json")
	store := NewStore(path, nil)
	t1 := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)

	_, err := store.Merge([]domain.JournalEntry{
		newEntry(t, "EUR_USD", "1.0786", t1, "ExchangeRate-API"),
		newEntry(t, "BTC_USD", "59337.21", t2, "CoinGecko"),
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Pairs map[string]struct {
			Rate      float64 `json:"rate"`
			UpdatedAt string  `json:"updated_at"`
			Source    string  `json:"source"`
		} `json:"pairs"`
		LastRefresh *string `json:"last_refresh"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, 59337.21, doc.Pairs["BTC_USD"].Rate)
	assert.Equal(t, "2025-10-10T12:00:01Z", doc.Pairs["BTC_USD"].UpdatedAt)
	assert.Equal(t, "ExchangeRate-API", doc.Pairs["EUR_USD"].Source)
	require.NotNil(t, doc.LastRefresh)
	assert.Equal(t, "2025-10-10T12:00:01Z", *doc.LastRefresh)

	snap, err := store.Load()
	require.NoError(t, err)
	got, ok := snap.Lookup(domain.Pair{From: "EUR", To: "USD"})
	require.True(t, ok)
	assert.True(t, got.Rate.Equal(decimal.RequireFromString("1.0786")))
}

func TestStore_MergeRecencyAcrossCalls(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "rates.json"), nil)
	t1 := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)

	_, err := store.Merge([]domain.JournalEntry{newEntry(t, "BTC_USD", "51000", t1.Add(time.Minute), "new")})
	require.NoError(t, err)
	snap, err := store.Merge([]domain.JournalEntry{newEntry(t, "BTC_USD", "50000", t1, "old")})
	require.NoError(t, err)

	got, _ := snap.Lookup(domain.Pair{From: "BTC", To: "USD"})
	assert.Equal(t, "new", got.Source)
}

func TestStore_LoadEmptyAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	snap, err := NewStore(filepath.Join(dir, "absent.json"), nil).Load()
	require.NoError(t, err)
	assert.True(t, snap.Empty())
	assert.Nil(t, snap.LastRefresh)

	corrupt := filepath.Join(dir, "rates.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("not json"), 0o644))
	snap, err = NewStore(corrupt, nil).Load()
	require.NoError(t, err)
	assert.True(t, snap.Empty())
}

func TestStore_LoadSkipsMalformedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "pairs": {
    "BTC_USD": {"rate": 50000, "updated_at": "2025-10-10T12:00:00Z", "source": "CoinGecko"},
    "BAD": {"rate": 1, "updated_at": "2025-10-10T12:00:00Z", "source": "x"},
    "ETH_USD": {"rate": 3000, "updated_at": "whenever", "source": "x"}
  },
  "last_refresh": "2030-01-01T00:00:00Z"
}`), 0o644))

	snap, err := NewStore(path, nil).Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC_USD"}, snap.Keys())
	require.NotNil(t, snap.LastRefresh)
	assert.Equal(t, time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC), *snap.LastRefresh)
}

func TestStore_LoadNormalizesPairKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "pairs": {
    "btc_usd": {"rate": 50000, "updated_at": "2025-10-10T12:00:00Z", "source": "CoinGecko"}
  },
  "last_refresh": "2025-10-10T12:00:00Z"
}`), 0o644))

	store := NewStore(path, nil)
	snap, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC_USD"}, snap.Keys())

	entry, ok := snap.Lookup(domain.Pair{From: "BTC", To: "USD"})
	require.True(t, ok)
	assert.Equal(t, "50000", entry.Rate.String())

	now := time.Date(2025, 10, 10, 13, 0, 0, 0, time.UTC)
	got, err := store.Touch("BTC_USD", now)
	require.NoError(t, err)
	assert.Equal(t, now, got)
}

func TestStore_Touch(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "rates.json"), nil)
	t1 := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	now := t1.Add(10 * time.Minute)

	_, err := store.Merge([]domain.JournalEntry{newEntry(t, "BTC_USD", "50000", t1, "CoinGecko")})
	require.NoError(t, err)

	got, err := store.Touch("BTC_USD", now)
	require.NoError(t, err)
	assert.Equal(t, now, got)

	snap, err := store.Load()
	require.NoError(t, err)
	e, _ := snap.Lookup(domain.Pair{From: "BTC", To: "USD"})
	assert.True(t, e.Rate.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, now, e.UpdatedAt)
	assert.Equal(t, domain.StubRefreshSource, e.Source)
	assert.Equal(t, now, *snap.LastRefresh)

	_, err = store.Touch("ETH_USD", now)
	assert.Error(t, err)
}
