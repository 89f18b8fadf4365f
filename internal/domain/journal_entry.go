package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is ISO-8601 UTC with second precision and a Z suffix.
const TimestampLayout = "2006-01-02T15:04:05Z"

// JournalEntry is one immutable observation of a rate.
type JournalEntry struct {
	ID        string
	Pair      Pair
	Rate      decimal.Decimal
	Timestamp time.Time
	Source    string
	Meta      map[string]string
}

// NewJournalEntry validates the pair and rate and derives the entry id.
func NewJournalEntry(pair Pair, rate decimal.Decimal, source string, ts time.Time, meta map[string]string) (JournalEntry, error) {
	if err := pair.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if !rate.IsPositive() {
		return JournalEntry{}, &ValidationError{Field: "rate", Value: rate.String(), Reason: "must be positive"}
	}
	if source == "" {
		return JournalEntry{}, &ValidationError{Field: "source", Value: source, Reason: "is required"}
	}

	ts = TruncateTimestamp(ts)

	return JournalEntry{
		ID:        EntryID(pair, ts),
		Pair:      pair,
		Rate:      rate,
		Timestamp: ts,
		Source:    source,
		Meta:      meta,
	}, nil
}

// EntryID derives the idempotency key FROM_TO_<timestamp>.
func EntryID(pair Pair, ts time.Time) string {
	return pair.Key() + "_" + FormatTimestamp(ts)
}

// TruncateTimestamp converts t to UTC with second precision.
func TruncateTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts TimestampLayout and any RFC 3339 value.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err == nil {
		return t, nil
	}

	t, err = time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}

	return TruncateTimestamp(t), nil
}
