// Package updater runs refresh cycles: fetch from every source, journal the
// observations and merge them into the snapshot.
package updater

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/ratehub/internal/domain"
	"github.com/vadiminshakov/ratehub/internal/metrics"
	"github.com/vadiminshakov/ratehub/internal/services/source"
)

const defaultFetchTimeout = 10 * time.Second

type journalAppender interface {
	Append(entry domain.JournalEntry) (bool, error)
}

type snapshotMerger interface {
	Merge(entries []domain.JournalEntry) (*domain.Snapshot, error)
}

type cycleRecorder interface {
	Save(record domain.CycleRecord) (uint64, error)
}

// Updater coordinates refresh cycles across sources.
type Updater struct {
	sources  []source.Source
	journal  journalAppender
	snapshot snapshotMerger
	cycles   cycleRecorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
	timeout  time.Duration
	now      func() time.Time

	mu       sync.Mutex
	disabled map[string]string
}

// Option configures an Updater.
type Option func(*Updater)

// WithCycleRecorder stores an audit record for every cycle.
func WithCycleRecorder(r cycleRecorder) Option {
	return func(u *Updater) { u.cycles = r }
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(u *Updater) { u.metrics = m }
}

// WithFetchTimeout bounds each source fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(u *Updater) {
		if d > 0 {
			u.timeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(u *Updater) { u.now = now }
}

// New creates an Updater. Results are folded in the order of sources.
func New(sources []source.Source, journal journalAppender, snapshot snapshotMerger, logger *zap.Logger, opts ...Option) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}

	u := &Updater{
		sources:  sources,
		journal:  journal,
		snapshot: snapshot,
		logger:   logger,
		timeout:  defaultFetchTimeout,
		now:      time.Now,
		disabled: make(map[string]string),
	}
	for _, opt := range opts {
		opt(u)
	}

	return u
}

type fetchResult struct {
	rates    map[domain.Pair]decimal.Decimal
	err      error
	status   string
	duration time.Duration
}

// RunUpdate runs one cycle and reports whether it produced at least one
// usable entry. The error is set only when the snapshot cannot be persisted.
func (u *Updater) RunUpdate(ctx context.Context) (bool, error) {
	record, err := u.RunCycle(ctx)
	return record.Success, err
}

// RunCycle runs one cycle and returns its audit record.
func (u *Updater) RunCycle(ctx context.Context) (domain.CycleRecord, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	startedAt := domain.TruncateTimestamp(u.now())
	record := domain.CycleRecord{
		ID:        uuid.NewString(),
		StartedAt: startedAt,
		Sources:   make([]domain.SourceReport, 0, len(u.sources)),
	}
	logger := u.logger.With(zap.String("cycle_id", record.ID))
	logger.Info("update cycle started", zap.Int("sources", len(u.sources)), zap.Time("started_at", startedAt))

	results := u.fetchAll(ctx, logger)

	var entries []domain.JournalEntry
	for i, src := range u.sources {
		res := results[i]
		report := domain.SourceReport{Name: src.Name(), Status: res.status, DurationMs: res.duration.Milliseconds()}
		if res.err != nil {
			report.Error = res.err.Error()
		}

		if res.status == domain.SourceStatusOK {
			added, skipped := u.journalRates(src.Name(), res, startedAt, logger)
			entries = append(entries, added...)
			report.Pairs = len(added)
			report.Skipped = skipped
		}
		record.Sources = append(record.Sources, report)
	}

	record.Entries = len(entries)

	var mergeErr error
	snapshotPairs := -1
	if len(entries) > 0 {
		snap, err := u.snapshot.Merge(entries)
		if err != nil {
			mergeErr = errors.Wrap(err, "merge snapshot")
			logger.Error("snapshot merge failed", zap.Error(err))
		} else {
			record.Success = true
			snapshotPairs = len(snap.Pairs)
		}
	} else {
		logger.Warn("update cycle produced no entries, snapshot left untouched")
	}

	record.FinishedAt = u.now().UTC()
	u.observeCycle(record, mergeErr, snapshotPairs)
	u.saveCycle(record, logger)

	logger.Info("update cycle finished",
		zap.Bool("success", record.Success),
		zap.Int("entries", record.Entries),
		zap.Duration("took", record.FinishedAt.Sub(startedAt)))

	return record, mergeErr
}

// fetchAll queries every active source in parallel. Fatal errors disable
// the source for the lifetime of the Updater.
func (u *Updater) fetchAll(ctx context.Context, logger *zap.Logger) []fetchResult {
	results := make([]fetchResult, len(u.sources))

	var g errgroup.Group
	for i, src := range u.sources {
		if reason, off := u.disabled[src.Name()]; off {
			results[i] = fetchResult{status: domain.SourceStatusDisabled, err: errors.New(reason)}
			logger.Warn("source disabled", zap.String("source", src.Name()), zap.String("reason", reason))
			continue
		}

		g.Go(func() error {
			results[i] = u.fetch(ctx, src, logger)
			return nil
		})
	}
	_ = g.Wait()

	for i, src := range u.sources {
		if results[i].status != domain.SourceStatusDisabled && domain.IsFatal(results[i].err) {
			u.disabled[src.Name()] = results[i].err.Error()
		}
	}

	return results
}

func (u *Updater) fetch(ctx context.Context, src source.Source, logger *zap.Logger) (res fetchResult) {
	name := src.Name()
	logger = logger.With(zap.String("source", name))
	logger.Info("source fetch started")

	fctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	started := time.Now()
	defer func() {
		res.duration = time.Since(started)
		if r := recover(); r != nil {
			res = fetchResult{
				status:   domain.SourceStatusUnexpectedError,
				err:      fmt.Errorf("panic: %v", r),
				duration: time.Since(started),
			}
			logger.Error("source fetch panicked", zap.Any("panic", r))
		}
		u.metrics.ObserveFetch(name, res.status, len(res.rates), res.duration)
	}()

	rates, err := src.Fetch(fctx)
	var fe *domain.ExternalFetchError
	switch {
	case errors.As(err, &fe):
		logger.Warn("source fetch failed", zap.Bool("fatal", fe.Fatal), zap.Error(err))
		return fetchResult{status: domain.SourceStatusError, err: err}
	case err != nil:
		logger.Error("source fetch failed unexpectedly", zap.Error(err))
		return fetchResult{status: domain.SourceStatusUnexpectedError, err: err}
	case len(rates) == 0:
		logger.Warn("source returned no data")
		return fetchResult{status: domain.SourceStatusNoData}
	}

	logger.Info("source fetch succeeded", zap.Int("pairs", len(rates)))

	return fetchResult{status: domain.SourceStatusOK, rates: rates}
}

// journalRates appends one entry per pair in key order. Invalid pairs and
// failed appends are skipped individually.
func (u *Updater) journalRates(name string, res fetchResult, ts time.Time, logger *zap.Logger) ([]domain.JournalEntry, int) {
	pairs := make([]domain.Pair, 0, len(res.rates))
	for p := range res.rates {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key() < pairs[j].Key() })

	meta := map[string]string{
		"client":     name,
		"request_ms": strconv.FormatInt(res.duration.Milliseconds(), 10),
	}

	added := make([]domain.JournalEntry, 0, len(pairs))
	skipped := 0
	for _, pair := range pairs {
		entry, err := domain.NewJournalEntry(pair, res.rates[pair], name, ts, meta)
		if err != nil {
			skipped++
			logger.Warn("skip invalid pair", zap.String("source", name), zap.String("pair", pair.Key()), zap.Error(err))
			continue
		}

		appended, err := u.journal.Append(entry)
		if err != nil {
			skipped++
			u.metrics.ObserveAppend("failed")
			logger.Error("journal append failed", zap.String("source", name), zap.String("id", entry.ID), zap.Error(err))
			continue
		}
		if appended {
			u.metrics.ObserveAppend("appended")
		} else {
			u.metrics.ObserveAppend("duplicate")
		}

		added = append(added, entry)
	}

	return added, skipped
}

func (u *Updater) observeCycle(record domain.CycleRecord, mergeErr error, snapshotPairs int) {
	outcome := "success"
	switch {
	case mergeErr != nil:
		outcome = "merge_failed"
	case !record.Success:
		outcome = "empty"
	}
	u.metrics.ObserveCycle(outcome, snapshotPairs)
}

func (u *Updater) saveCycle(record domain.CycleRecord, logger *zap.Logger) {
	if u.cycles == nil {
		return
	}
	if _, err := u.cycles.Save(record); err != nil {
		logger.Warn("cycle record not saved", zap.Error(err))
	}
}

// Disabled returns the sources disabled by fatal errors with their reason.
func (u *Updater) Disabled() map[string]string {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make(map[string]string, len(u.disabled))
	for k, v := range u.disabled {
		out[k] = v
	}

	return out
}
