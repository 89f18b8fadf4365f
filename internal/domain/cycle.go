package domain

import "time"

// Source statuses reported by an update cycle.
const (
	SourceStatusOK              = "ok"
	SourceStatusNoData          = "no_data"
	SourceStatusError           = "error"
	SourceStatusUnexpectedError = "unexpected_error"
	SourceStatusDisabled        = "disabled"
)

// SourceReport summarizes one source within a cycle.
type SourceReport struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Pairs      int    `json:"pairs"`
	Skipped    int    `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// CycleRecord is the audit record of one update cycle.
type CycleRecord struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Entries    int            `json:"entries"`
	Success    bool           `json:"success"`
	Sources    []SourceReport `json:"sources"`
}

// CycleRecordAt pairs a cycle record with its log index.
type CycleRecordAt struct {
	Index uint64      `json:"index"`
	Cycle CycleRecord `json:"cycle"`
}
