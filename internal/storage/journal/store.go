// Package journal persists the append-only log of observed rates as a JSON
// array. Every operation loads the whole file and replaces it atomically.
package journal

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ratehub/internal/domain"
	"github.com/vadiminshakov/ratehub/internal/storage/atomicfile"
)

// Record is the on-disk form of a journal entry.
type Record struct {
	ID           string            `json:"id"`
	FromCurrency string            `json:"from_currency"`
	ToCurrency   string            `json:"to_currency"`
	Rate         json.Number       `json:"rate"`
	Timestamp    string            `json:"timestamp"`
	Source       string            `json:"source"`
	Meta         map[string]string `json:"meta"`
}

// NewRecord converts a journal entry into its stored representation.
func NewRecord(e domain.JournalEntry) Record {
	meta := e.Meta
	if meta == nil {
		meta = map[string]string{}
	}

	return Record{
		ID:           e.ID,
		FromCurrency: e.Pair.From,
		ToCurrency:   e.Pair.To,
		Rate:         json.Number(e.Rate.String()),
		Timestamp:    domain.FormatTimestamp(e.Timestamp),
		Source:       e.Source,
		Meta:         meta,
	}
}

// ToEntry reconstructs the journal entry from stored data.
func (r Record) ToEntry() (domain.JournalEntry, error) {
	rate, err := decimal.NewFromString(r.Rate.String())
	if err != nil {
		return domain.JournalEntry{}, errors.Wrap(err, "decode journal rate")
	}

	ts, err := domain.ParseTimestamp(r.Timestamp)
	if err != nil {
		return domain.JournalEntry{}, errors.Wrap(err, "decode journal timestamp")
	}

	return domain.JournalEntry{
		ID:        r.ID,
		Pair:      domain.Pair{From: r.FromCurrency, To: r.ToCurrency},
		Rate:      rate,
		Timestamp: ts,
		Source:    r.Source,
		Meta:      r.Meta,
	}, nil
}

// Store owns the journal file.
type Store struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewStore creates a journal store backed by path.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{path: path, logger: logger}
}

// Path returns the journal file location.
func (s *Store) Path() string {
	return s.path
}

// Append adds entry unless an entry with the same id is already present.
// It reports whether the journal grew.
func (s *Store) Append(entry domain.JournalEntry) (bool, error) {
	if s == nil || s.path == "" {
		return false, errors.New("journal store is not initialized")
	}
	if entry.ID == "" {
		return false, fmt.Errorf("journal entry id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw := s.load()
	for _, msg := range raw {
		if recordID(msg) == entry.ID {
			return false, nil
		}
	}

	payload, err := json.Marshal(NewRecord(entry))
	if err != nil {
		return false, errors.Wrap(err, "encode journal entry")
	}
	raw = append(raw, payload)

	if err := atomicfile.WriteJSON(s.path, raw); err != nil {
		return false, errors.Wrap(err, "persist journal")
	}

	return true, nil
}

// Entries returns every decodable entry in file order.
func (s *Store) Entries() ([]domain.JournalEntry, error) {
	if s == nil || s.path == "" {
		return nil, errors.New("journal store is not initialized")
	}

	s.mu.Lock()
	raw := s.load()
	s.mu.Unlock()

	entries := make([]domain.JournalEntry, 0, len(raw))
	for i, msg := range raw {
		var rec Record
		if err := json.Unmarshal(msg, &rec); err != nil {
			s.logger.Warn("skip malformed journal record", zap.Int("position", i), zap.Error(err))
			continue
		}
		e, err := rec.ToEntry()
		if err != nil {
			s.logger.Warn("skip malformed journal record", zap.Int("position", i), zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// EntriesFor returns the entries of one pair ordered by timestamp.
func (s *Store) EntriesFor(pair domain.Pair) ([]domain.JournalEntry, error) {
	all, err := s.Entries()
	if err != nil {
		return nil, err
	}

	out := make([]domain.JournalEntry, 0)
	for _, e := range all {
		if e.Pair == pair {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	return out, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	if s == nil || s.path == "" {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.load())
}

// load reads the raw records. A missing or corrupt file is an empty journal.
// Records are kept verbatim so rewriting never alters existing entries.
func (s *Store) load() []json.RawMessage {
	var raw []json.RawMessage
	ok, err := atomicfile.ReadJSON(s.path, &raw)
	if err != nil {
		s.logger.Warn("journal unreadable, treating as empty", zap.String("path", s.path), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	return raw
}

func recordID(msg json.RawMessage) string {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(msg, &head); err != nil {
		return ""
	}

	return head.ID
}
