package updater

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/ratehub/internal/domain"
	"github.com/vadiminshakov/ratehub/internal/metrics"
	"github.com/vadiminshakov/ratehub/internal/services/source"
	"github.com/vadiminshakov/ratehub/internal/storage/cycles"
	"github.com/vadiminshakov/ratehub/internal/storage/journal"
	"github.com/vadiminshakov/ratehub/internal/storage/snapshot"
)

type fakeSource struct {
	name     string
	rates    map[domain.Pair]decimal.Decimal
	err      error
	panicMsg string
	delay    time.Duration
	calls    atomic.Int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context) (map[domain.Pair]decimal.Decimal, error) {
	f.calls.Add(1)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, domain.NewFetchError(f.name, "request", ctx.Err())
		case <-time.After(f.delay):
		}
	}

	return f.rates, f.err
}

type failingJournal struct {
	inner  *journal.Store
	failID string
}

func (j *failingJournal) Append(e domain.JournalEntry) (bool, error) {
	if e.ID == j.failID {
		return false, errors.New("disk full")
	}

	return j.inner.Append(e)
}

type failingSnapshot struct{}

func (failingSnapshot) Merge([]domain.JournalEntry) (*domain.Snapshot, error) {
	return nil, errors.New("read-only filesystem")
}

type env struct {
	journal  *journal.Store
	snapshot *snapshot.Store
	now      time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()

	dir := t.TempDir()

	return &env{
		journal:  journal.NewStore(filepath.Join(dir, "exchange_rates.json"), nil),
		snapshot: snapshot.NewStore(filepath.Join(dir, "rates.json"), nil),
		now:      time.Date(2025, 10, 10, 12, 0, 0, 500, time.UTC),
	}
}

func (e *env) updater(sources []source.Source, opts ...Option) *Updater {
	opts = append([]Option{WithClock(func() time.Time { return e.now })}, opts...)
	return New(sources, e.journal, e.snapshot, nil, opts...)
}

func rates(kv ...any) map[domain.Pair]decimal.Decimal {
	out := make(map[domain.Pair]decimal.Decimal)
	for i := 0; i < len(kv); i += 2 {
		out[kv[i].(domain.Pair)] = decimal.NewFromFloat(kv[i+1].(float64))
	}

	return out
}

var (
	btcUSD = domain.Pair{From: "BTC", To: "USD"}
	ethUSD = domain.Pair{From: "ETH", To: "USD"}
	eurUSD = domain.Pair{From: "EUR", To: "USD"}
)

func TestUpdater_EndToEnd(t *testing.T) {
	e := newEnv(t)
	src := &fakeSource{name: "coingecko", rates: rates(btcUSD, 50000.0)}

	ok, err := e.updater([]source.Source{src}).RunUpdate(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	entries, err := e.journal.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "BTC_USD_2025-10-10T12:00:00Z", entries[0].ID)
	assert.Equal(t, "coingecko", entries[0].Meta["client"])

	snap, err := e.snapshot.Load()
	require.NoError(t, err)
	got, found := snap.Lookup(btcUSD)
	require.True(t, found)
	assert.True(t, got.Rate.Equal(decimal.NewFromInt(50000)))
	require.NotNil(t, snap.LastRefresh)
	assert.Equal(t, entries[0].Timestamp, *snap.LastRefresh)
}

func TestUpdater_PartialFailure(t *testing.T) {
	e := newEnv(t)
	good := &fakeSource{name: "coingecko", rates: rates(btcUSD, 50000.0, ethUSD, 3000.0)}
	bad := &fakeSource{name: "exchangerate", err: domain.NewFetchError("exchangerate", "request", errors.New("HTTP 502"))}

	ok, err := e.updater([]source.Source{bad, good}).RunUpdate(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	entries, err := e.journal.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, "coingecko", entry.Source)
		assert.Equal(t, e.now.Truncate(time.Second), entry.Timestamp)
	}
}

func TestUpdater_AllSourcesFail(t *testing.T) {
	e := newEnv(t)
	srcs := []source.Source{
		&fakeSource{name: "a", err: domain.NewFetchError("a", "request", errors.New("timeout"))},
		&fakeSource{name: "b", rates: map[domain.Pair]decimal.Decimal{}},
		&fakeSource{name: "c", err: errors.New("boom")},
	}

	record, err := e.updater(srcs).RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, record.Success)
	assert.Equal(t, 0, record.Entries)

	statuses := []string{record.Sources[0].Status, record.Sources[1].Status, record.Sources[2].Status}
	assert.Equal(t, []string{domain.SourceStatusError, domain.SourceStatusNoData, domain.SourceStatusUnexpectedError}, statuses)

	snap, err := e.snapshot.Load()
	require.NoError(t, err)
	assert.True(t, snap.Empty())
	assert.NoFileExists(t, e.snapshot.Path())
}

func TestUpdater_FatalErrorDisablesSource(t *testing.T) {
	e := newEnv(t)
	fatal := &fakeSource{name: "exchangerate", err: &domain.ExternalFetchError{
		Source: "exchangerate", Op: "auth", Err: domain.ErrMissingCredential, Fatal: true,
	}}
	good := &fakeSource{name: "coingecko", rates: rates(btcUSD, 50000.0)}
	u := e.updater([]source.Source{fatal, good})

	ok, err := u.RunUpdate(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	e.now = e.now.Add(time.Minute)
	record, err := u.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), fatal.calls.Load())
	assert.Equal(t, int32(2), good.calls.Load())
	assert.Equal(t, domain.SourceStatusDisabled, record.Sources[0].Status)
	assert.Contains(t, u.Disabled(), "exchangerate")
}

func TestUpdater_PanicIsRecovered(t *testing.T) {
	e := newEnv(t)
	srcs := []source.Source{
		&fakeSource{name: "broken", panicMsg: "nil map"},
		&fakeSource{name: "coingecko", rates: rates(ethUSD, 3000.0)},
	}

	record, err := e.updater(srcs).RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, record.Success)
	assert.Equal(t, domain.SourceStatusUnexpectedError, record.Sources[0].Status)
	assert.Contains(t, record.Sources[0].Error, "nil map")
}

func TestUpdater_SlowSourceTimesOut(t *testing.T) {
	e := newEnv(t)
	slow := &fakeSource{name: "slow", rates: rates(btcUSD, 1.0), delay: time.Second}
	fast := &fakeSource{name: "fast", rates: rates(eurUSD, 1.1)}

	started := time.Now()
	record, err := e.updater([]source.Source{slow, fast}, WithFetchTimeout(30*time.Millisecond)).RunCycle(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(started), 900*time.Millisecond)
	assert.Equal(t, domain.SourceStatusError, record.Sources[0].Status)
	assert.Equal(t, 1, record.Entries)
}

func TestUpdater_SkipsInvalidPairsAndFailedAppends(t *testing.T) {
	e := newEnv(t)
	invalid := domain.Pair{From: "BTC", To: "XYZ"}
	src := &fakeSource{name: "coingecko", rates: rates(btcUSD, 50000.0, ethUSD, 3000.0, invalid, 1.0)}

	j := &failingJournal{inner: e.journal, failID: domain.EntryID(ethUSD, e.now)}
	u := New([]source.Source{src}, j, e.snapshot, nil, WithClock(func() time.Time { return e.now }))

	record, err := u.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, record.Success)
	assert.Equal(t, 1, record.Sources[0].Pairs)
	assert.Equal(t, 2, record.Sources[0].Skipped)

	snap, err := e.snapshot.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC_USD"}, snap.Keys())
}

func TestUpdater_MergeFailure(t *testing.T) {
	e := newEnv(t)
	src := &fakeSource{name: "coingecko", rates: rates(btcUSD, 50000.0)}
	u := New([]source.Source{src}, e.journal, failingSnapshot{}, nil)

	ok, err := u.RunUpdate(context.Background())
	assert.False(t, ok)
	assert.Error(t, err)
	assert.Equal(t, 1, e.journal.Len(), "journal keeps progress made before the merge")
}

func TestUpdater_DuplicateCycleIsIdempotent(t *testing.T) {
	e := newEnv(t)
	src := &fakeSource{name: "coingecko", rates: rates(btcUSD, 50000.0)}
	u := e.updater([]source.Source{src})

	for i := 0; i < 2; i++ {
		ok, err := u.RunUpdate(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	}

	assert.Equal(t, 1, e.journal.Len())
}

func TestUpdater_RecordsCycles(t *testing.T) {
	e := newEnv(t)
	store, err := cycles.NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	m := metrics.New()
	src := &fakeSource{name: "coingecko", rates: rates(btcUSD, 50000.0)}
	u := e.updater([]source.Source{src}, WithCycleRecorder(store), WithMetrics(m))

	record, err := u.RunCycle(context.Background())
	require.NoError(t, err)

	saved, err := store.CyclesAfter(0)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, record.ID, saved[0].Cycle.ID)
	assert.True(t, saved[0].Cycle.Success)
	assert.Equal(t, "coingecko", saved[0].Cycle.Sources[0].Name)
}
