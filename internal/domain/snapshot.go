package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// StubRefreshSource marks snapshot entries whose timestamp was bumped on a
// stale read without fetching a new rate.
const StubRefreshSource = "ttl_refresh"

// SnapshotEntry is the latest known rate of one pair.
type SnapshotEntry struct {
	Rate      decimal.Decimal
	UpdatedAt time.Time
	Source    string
}

// Snapshot holds one entry per pair key.
type Snapshot struct {
	Pairs       map[string]SnapshotEntry
	LastRefresh *time.Time
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{Pairs: make(map[string]SnapshotEntry)}
}

// Merge folds entries in input order. An entry replaces the cached one only
// when its timestamp is strictly newer, so ties keep the existing value.
// It returns the number of replaced pairs.
func (s *Snapshot) Merge(entries []JournalEntry) int {
	if s.Pairs == nil {
		s.Pairs = make(map[string]SnapshotEntry)
	}

	replaced := 0
	for _, e := range entries {
		key := e.Pair.Key()
		current, ok := s.Pairs[key]
		if ok && !e.Timestamp.After(current.UpdatedAt) {
			continue
		}

		s.Pairs[key] = SnapshotEntry{Rate: e.Rate, UpdatedAt: e.Timestamp, Source: e.Source}
		replaced++
	}

	s.RecomputeLastRefresh()

	return replaced
}

// Touch sets the updated_at of key to now and marks it as stub-refreshed.
// The rate is left untouched.
func (s *Snapshot) Touch(key string, now time.Time) bool {
	entry, ok := s.Pairs[key]
	if !ok {
		return false
	}

	entry.UpdatedAt = TruncateTimestamp(now)
	entry.Source = StubRefreshSource
	s.Pairs[key] = entry
	s.RecomputeLastRefresh()

	return true
}

// RecomputeLastRefresh sets LastRefresh to the maximum updated_at, or nil.
func (s *Snapshot) RecomputeLastRefresh() {
	var last *time.Time
	for _, e := range s.Pairs {
		if last == nil || e.UpdatedAt.After(*last) {
			t := e.UpdatedAt
			last = &t
		}
	}
	s.LastRefresh = last
}

// Lookup returns the cached entry for pair.
func (s *Snapshot) Lookup(pair Pair) (SnapshotEntry, bool) {
	e, ok := s.Pairs[pair.Key()]
	return e, ok
}

// Keys returns the pair keys in lexicographic order.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.Pairs))
	for k := range s.Pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// Empty reports whether the snapshot has no pairs.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Pairs) == 0
}
