// Package snapshot persists the latest rate per pair derived from the journal.
package snapshot

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ratehub/internal/domain"
	"github.com/vadiminshakov/ratehub/internal/storage/atomicfile"
)

// State is the on-disk form of the snapshot.
type State struct {
	Pairs       map[string]StoredEntry `json:"pairs"`
	LastRefresh *string                `json:"last_refresh"`
}

// StoredEntry is the on-disk form of one snapshot entry.
type StoredEntry struct {
	Rate      json.Number `json:"rate"`
	UpdatedAt string      `json:"updated_at"`
	Source    string      `json:"source"`
}

// NewState converts a snapshot into its stored representation.
func NewState(s *domain.Snapshot) State {
	st := State{Pairs: make(map[string]StoredEntry, len(s.Pairs))}
	for key, e := range s.Pairs {
		st.Pairs[key] = StoredEntry{
			Rate:      json.Number(e.Rate.String()),
			UpdatedAt: domain.FormatTimestamp(e.UpdatedAt),
			Source:    e.Source,
		}
	}
	if s.LastRefresh != nil {
		lr := domain.FormatTimestamp(*s.LastRefresh)
		st.LastRefresh = &lr
	}

	return st
}

// ToSnapshot rebuilds the domain snapshot, skipping malformed entries.
func (st State) ToSnapshot(logger *zap.Logger) *domain.Snapshot {
	s := domain.NewSnapshot()
	for key, e := range st.Pairs {
		pair, err := domain.ParsePair(key)
		if err != nil {
			logger.Warn("skip snapshot entry with invalid pair", zap.String("pair", key), zap.Error(err))
			continue
		}
		rate, err := decimal.NewFromString(e.Rate.String())
		if err != nil {
			logger.Warn("skip snapshot entry with invalid rate", zap.String("pair", key), zap.Error(err))
			continue
		}
		updatedAt, err := domain.ParseTimestamp(e.UpdatedAt)
		if err != nil {
			logger.Warn("skip snapshot entry with invalid updated_at", zap.String("pair", key), zap.Error(err))
			continue
		}
		s.Pairs[pair.Key()] = domain.SnapshotEntry{Rate: rate, UpdatedAt: updatedAt, Source: e.Source}
	}
	s.RecomputeLastRefresh()

	return s
}

// Store owns the snapshot file.
type Store struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewStore creates a snapshot store backed by path.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{path: path, logger: logger}
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the current snapshot. A missing or corrupt file yields an
// empty snapshot.
func (s *Store) Load() (*domain.Snapshot, error) {
	if s == nil || s.path == "" {
		return nil, errors.New("snapshot store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(), nil
}

// Merge folds entries into the snapshot with recency-wins semantics and
// persists the result. It returns the merged snapshot.
func (s *Store) Merge(entries []domain.JournalEntry) (*domain.Snapshot, error) {
	if s == nil || s.path == "" {
		return nil, errors.New("snapshot store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.load()
	snap.Merge(entries)

	if err := s.save(snap); err != nil {
		return nil, err
	}

	return snap, nil
}

// Touch bumps the updated_at of pairKey to now without changing its rate.
// It returns the stored timestamp.
func (s *Store) Touch(pairKey string, now time.Time) (time.Time, error) {
	if s == nil || s.path == "" {
		return time.Time{}, errors.New("snapshot store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.load()
	if !snap.Touch(pairKey, now) {
		return time.Time{}, errors.Errorf("pair %s is not cached", pairKey)
	}

	if err := s.save(snap); err != nil {
		return time.Time{}, err
	}

	return snap.Pairs[pairKey].UpdatedAt, nil
}

func (s *Store) load() *domain.Snapshot {
	var st State
	ok, err := atomicfile.ReadJSON(s.path, &st)
	if err != nil {
		s.logger.Warn("snapshot unreadable, treating as empty", zap.String("path", s.path), zap.Error(err))
		return domain.NewSnapshot()
	}
	if !ok {
		return domain.NewSnapshot()
	}

	return st.ToSnapshot(s.logger)
}

func (s *Store) save(snap *domain.Snapshot) error {
	if err := atomicfile.WriteJSON(s.path, NewState(snap)); err != nil {
		return errors.Wrap(err, "persist snapshot")
	}

	return nil
}
