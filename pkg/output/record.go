// Package output provides JSONL export of job status data.
//
// Output is structured as typed record envelopes containing job rows,
// missing jobs, long-running alerts and a closing summary. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: jobscope.<type>.v<version>
const (
	TypeJob         = "jobscope.job.v1"
	TypeMissing     = "jobscope.missing.v1"
	TypeLongRunning = "jobscope.long_running.v1"
	TypeError       = "jobscope.error.v1"
	TypeSummary     = "jobscope.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "jobscope.job.v1").
	Type string `json:"type"`

	TS time.Time `json:"ts"`

	// RunID correlates every line of one export.
	RunID string `json:"run_id"`

	// Store is the record-store dialect the data was read from.
	Store string `json:"store"`

	Data json.RawMessage `json:"data"`
}

// JobRecord is one job's most recent processed row.
type JobRecord struct {
	JobID           string     `json:"job_id"`
	ApplicationCode string     `json:"aplctn_cd"`
	Status          string     `json:"status"`
	RawStatus       string     `json:"job_stts"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`

	// DurationMinutes is null when the start time is unknown.
	DurationMinutes *int `json:"duration_minutes"`
}

// MissingRecord is a job in the waiting set. Values the loader left empty
// encode as null.
type MissingRecord struct {
	JobID           string     `json:"job_id"`
	ApplicationCode string     `json:"aplctn_cd"`
	ExpectedTime    *string    `json:"expected_time"`
	LastRun         *time.Time `json:"last_run"`
	Frequency       *string    `json:"frequency"`
	Priority        string     `json:"priority"`
}

// LongRunningRecord is a running job past the listing threshold.
type LongRunningRecord struct {
	JobID           string `json:"job_id"`
	ApplicationCode string `json:"aplctn_cd"`
	ElapsedMinutes  int    `json:"elapsed_minutes"`
	BaselineMinutes int    `json:"baseline_minutes"`
	OverrunPercent  int    `json:"overrun_percent"`

	// BaselineApproximate marks BaselineMinutes as a configured estimate
	// rather than a measured average.
	BaselineApproximate bool `json:"baseline_approximate"`
}

// ErrorRecord reports a section that could not be exported. The export
// continues with the remaining sections.
type ErrorRecord struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Section names the part of the export that failed.
	Section string `json:"section,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeInternal         = "INTERNAL"
)

// SummaryRecord closes an export. Errors counts sections that failed to
// read; when it is non-zero the export is partial and only the sections
// without an ErrorRecord are complete.
type SummaryRecord struct {
	Jobs          int            `json:"jobs"`
	Missing       int            `json:"missing"`
	LongRunning   int            `json:"long_running"`
	Errors        int            `json:"errors"`
	StatusSummary map[string]int `json:"status_summary"`
	WindowDays    int            `json:"window_days,omitempty"`

	Duration      time.Duration `json:"duration_ns"`
	DurationHuman string        `json:"duration"`
}

// Writer errors.
var (
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
