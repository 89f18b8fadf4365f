// Package cycles keeps an audit log of update cycles in a write-ahead log.
package cycles

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/ratehub/internal/domain"
)

const (
	DefaultDir   = "./data/wal/cycles"
	segmentLimit = 100
	maxSegments  = 10

	cycleKeyPrefix = "cycle_"
)

// WALStore persists cycle records in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed cycle store.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create cycle WAL dir")
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "cycle_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init cycle WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends a cycle record and returns its index.
func (s *WALStore) Save(record domain.CycleRecord) (uint64, error) {
	if s == nil || s.wal == nil {
		return 0, errors.New("cycle store is not initialized")
	}
	if record.ID == "" {
		return 0, errors.New("cycle record id is required")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return 0, errors.Wrap(err, "marshal cycle record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(next, cycleKeyPrefix+record.ID, payload); err != nil {
		return 0, errors.Wrap(err, "write cycle record")
	}

	return next, nil
}

// CyclesAfter returns the records written after index, oldest first.
func (s *WALStore) CyclesAfter(index uint64) ([]domain.CycleRecordAt, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("cycle store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]domain.CycleRecordAt, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, cycleKeyPrefix) {
			continue
		}

		var record domain.CycleRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, errors.Wrap(err, "decode cycle record")
		}
		records = append(records, domain.CycleRecordAt{Index: idx, Cycle: record})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("cycle store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
