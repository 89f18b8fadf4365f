// Package rates answers rate queries from the snapshot cache.
package rates

import (
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ratehub/internal/domain"
	"github.com/vadiminshakov/ratehub/internal/metrics"
)

type snapshotStore interface {
	Load() (*domain.Snapshot, error)
	Touch(pairKey string, now time.Time) (time.Time, error)
}

type historyReader interface {
	EntriesFor(pair domain.Pair) ([]domain.JournalEntry, error)
}

// Service is the read side of the rate cache.
type Service struct {
	snapshot   snapshotStore
	journal    historyReader
	nativeBase string
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics enables query instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service. nativeBase is the quote currency most
// snapshot pairs are denominated in.
func NewService(snapshot snapshotStore, journal historyReader, nativeBase string, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		snapshot:   snapshot,
		journal:    journal,
		nativeBase: nativeBase,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// NativeBase returns the base currency of the snapshot.
func (s *Service) NativeBase() string {
	return s.nativeBase
}

// Quote is the answer to a cached rate lookup.
type Quote struct {
	Pair        domain.Pair
	Rate        decimal.Decimal
	ReverseRate decimal.Decimal
	UpdatedAt   time.Time
	Source      string
	// Derived is set when the rate was inverted from the reverse pair.
	Derived bool
	// Refreshed is set when a stale entry had its timestamp bumped.
	Refreshed bool
}

// GetRate returns the cached rate of the exact pair base_quote.
func (s *Service) GetRate(base, quote string) (decimal.Decimal, time.Time, error) {
	pair, err := parsePair(base, quote)
	if err != nil {
		s.metrics.ObserveQuery("get_rate", "invalid")
		return decimal.Zero, time.Time{}, err
	}

	snap, err := s.snapshot.Load()
	if err != nil {
		s.metrics.ObserveQuery("get_rate", "error")
		return decimal.Zero, time.Time{}, errors.Wrap(err, "load snapshot")
	}

	entry, ok := snap.Lookup(pair)
	if !ok {
		s.metrics.ObserveQuery("get_rate", "not_found")
		return decimal.Zero, time.Time{}, &domain.RateNotFoundError{Pair: pair}
	}
	s.metrics.ObserveQuery("get_rate", "ok")

	return entry.Rate, entry.UpdatedAt, nil
}

// GetRateWithCache looks up base_quote, falling back to the inverted
// reverse pair. An entry older than maxAge is stub-refreshed: its
// updated_at is bumped to now and persisted while the rate stays as is.
func (s *Service) GetRateWithCache(base, quote string, maxAge time.Duration) (Quote, error) {
	pair, err := parsePair(base, quote)
	if err != nil {
		s.metrics.ObserveQuery("get_rate_with_cache", "invalid")
		return Quote{}, err
	}

	snap, err := s.snapshot.Load()
	if err != nil {
		s.metrics.ObserveQuery("get_rate_with_cache", "error")
		return Quote{}, errors.Wrap(err, "load snapshot")
	}

	matched := pair
	entry, ok := snap.Lookup(pair)
	derived := false
	if !ok {
		matched = pair.Reverse()
		entry, ok = snap.Lookup(matched)
		derived = true
	}
	if !ok {
		s.metrics.ObserveQuery("get_rate_with_cache", "unavailable")
		return Quote{}, &domain.ApiUnavailableError{Pair: pair}
	}

	q := Quote{
		Pair:      pair,
		Rate:      entry.Rate,
		UpdatedAt: entry.UpdatedAt,
		Source:    entry.Source,
		Derived:   derived,
	}
	if derived {
		q.Rate = invert(entry.Rate)
		q.ReverseRate = entry.Rate
	} else {
		q.ReverseRate = invert(entry.Rate)
	}

	now := s.now()
	if now.Sub(entry.UpdatedAt) > maxAge {
		q.UpdatedAt, q.Refreshed = s.stubRefresh(matched, now, entry.UpdatedAt)
		if q.Refreshed {
			q.Source = domain.StubRefreshSource
		}
	}
	s.metrics.ObserveQuery("get_rate_with_cache", "ok")

	return q, nil
}

func (s *Service) stubRefresh(pair domain.Pair, now, stale time.Time) (time.Time, bool) {
	updatedAt, err := s.snapshot.Touch(pair.Key(), now)
	if err != nil {
		s.logger.Warn("stub refresh not persisted", zap.String("pair", pair.Key()), zap.Error(err))
		return stale, false
	}

	s.metrics.ObserveStubRefresh(pair.Key())
	s.logger.Info("stale rate stub-refreshed",
		zap.String("pair", pair.Key()),
		zap.Time("was", stale),
		zap.Time("now", updatedAt))

	return updatedAt, true
}

// Conversion is the result of Convert.
type Conversion struct {
	From      string
	To        string
	Amount    decimal.Decimal
	Rate      decimal.Decimal
	Result    decimal.Decimal
	UpdatedAt time.Time
}

// Convert prices amount of from in to using the cached rate.
func (s *Service) Convert(amount decimal.Decimal, from, to string, maxAge time.Duration) (Conversion, error) {
	if !amount.IsPositive() {
		return Conversion{}, &domain.ValidationError{Field: "amount", Value: amount.String(), Reason: "must be positive"}
	}

	f, err := domain.GetCurrency(from)
	if err != nil {
		return Conversion{}, err
	}
	t, err := domain.GetCurrency(to)
	if err != nil {
		return Conversion{}, err
	}

	if f.Code == t.Code {
		return Conversion{
			From:      f.Code,
			To:        t.Code,
			Amount:    amount,
			Rate:      decimal.NewFromInt(1),
			Result:    amount,
			UpdatedAt: domain.TruncateTimestamp(s.now()),
		}, nil
	}

	q, err := s.GetRateWithCache(f.Code, t.Code, maxAge)
	if err != nil {
		return Conversion{}, err
	}

	return Conversion{
		From:      f.Code,
		To:        t.Code,
		Amount:    amount,
		Rate:      q.Rate,
		Result:    amount.Mul(q.Rate),
		UpdatedAt: q.UpdatedAt,
	}, nil
}

// ListOptions filters the rate listing.
type ListOptions struct {
	// Currency keeps pairs with this code on either side.
	Currency string
	// Top keeps the N crypto pairs with the highest rate.
	Top int
	// Base re-denominates native-base pairs into this currency.
	Base string
}

// RateRow is one line of the listing.
type RateRow struct {
	Pair      domain.Pair
	Rate      decimal.Decimal
	UpdatedAt time.Time
	Source    string
}

// Listing is the result of ListRates.
type Listing struct {
	Base        string
	Rows        []RateRow
	LastRefresh *time.Time
}

// ListRates returns the cached rates, optionally re-denominated, filtered
// and ranked.
func (s *Service) ListRates(opts ListOptions) (Listing, error) {
	if opts.Top < 0 {
		return Listing{}, &domain.ValidationError{Field: "top", Value: strconv.Itoa(opts.Top), Reason: "must not be negative"}
	}

	base := s.nativeBase
	if opts.Base != "" {
		c, err := domain.GetCurrency(opts.Base)
		if err != nil {
			return Listing{}, err
		}
		base = c.Code
	}

	var filter string
	if opts.Currency != "" {
		c, err := domain.GetCurrency(opts.Currency)
		if err != nil {
			return Listing{}, err
		}
		filter = c.Code
	}

	snap, err := s.snapshot.Load()
	if err != nil {
		return Listing{}, errors.Wrap(err, "load snapshot")
	}
	if snap.Empty() {
		return Listing{}, domain.ErrCacheEmpty
	}

	rows, err := s.denominate(snap, base)
	if err != nil {
		return Listing{}, err
	}

	if filter != "" {
		kept := rows[:0]
		for _, r := range rows {
			if r.Pair.From == filter || r.Pair.To == filter {
				kept = append(kept, r)
			}
		}
		rows = kept
	}

	if opts.Top > 0 {
		crypto := make([]RateRow, 0, len(rows))
		for _, r := range rows {
			if domain.IsCrypto(r.Pair.From) {
				crypto = append(crypto, r)
			}
		}
		sort.SliceStable(crypto, func(i, j int) bool { return crypto[i].Rate.GreaterThan(crypto[j].Rate) })
		if len(crypto) > opts.Top {
			crypto = crypto[:opts.Top]
		}
		rows = crypto
	} else {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Pair.Key() < rows[j].Pair.Key() })
	}

	return Listing{Base: base, Rows: rows, LastRefresh: snap.LastRefresh}, nil
}

// denominate converts the snapshot into rows. When base differs from the
// native base, pairs quoted in the native base are divided by the
// base_native bridging rate. A pair cached directly against base wins over
// its re-denominated counterpart.
func (s *Service) denominate(snap *domain.Snapshot, base string) ([]RateRow, error) {
	rows := make([]RateRow, 0, len(snap.Pairs))
	redenominate := base != s.nativeBase

	var bridge decimal.Decimal
	if redenominate {
		bridgePair := domain.Pair{From: base, To: s.nativeBase}
		entry, ok := snap.Lookup(bridgePair)
		if !ok || entry.Rate.IsZero() {
			return nil, errors.Wrapf(&domain.RateNotFoundError{Pair: bridgePair},
				"cannot re-denominate rates into %s", base)
		}
		bridge = entry.Rate
	}

	for _, key := range snap.Keys() {
		pair, err := domain.ParsePair(key)
		if err != nil {
			continue
		}
		entry := snap.Pairs[key]
		row := RateRow{Pair: pair, Rate: entry.Rate, UpdatedAt: entry.UpdatedAt, Source: entry.Source}

		if redenominate && pair.To == s.nativeBase {
			if pair.From == base {
				continue
			}
			target := domain.Pair{From: pair.From, To: base}
			if _, cached := snap.Lookup(target); cached {
				continue
			}
			row.Pair = target
			row.Rate = entry.Rate.Div(bridge)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func parsePair(base, quote string) (domain.Pair, error) {
	pair, err := domain.NewPair(base, quote)
	if err != nil {
		return domain.Pair{}, err
	}
	if err := pair.Validate(); err != nil {
		return domain.Pair{}, err
	}

	return pair, nil
}

// invert returns 1/rate, or zero for a zero rate.
func invert(rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return decimal.Zero
	}

	return decimal.NewFromInt(1).Div(rate)
}
