package jobstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Table names in the job record store.
const (
	TableProcessed = "schedule_processed"
	TableWaiting   = "schedule_waiting"
	TableSkipped   = "schedule_skipped"
)

var (
	// ErrUnavailable matches any StoreError via errors.Is.
	ErrUnavailable = errors.New("record store unavailable")

	// ErrNoRows is returned by single-record lookups that find nothing.
	ErrNoRows = errors.New("record not found")
)

// StoreError wraps a driver failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("record store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrUnavailable
}

// Record is a row from the processed set.
//
// A job_id may appear more than once (historical runs); the row with the most
// recent edl_load_dtm is the current one.
type Record struct {
	JobID           string
	ApplicationCode string
	StatusRaw       string
	StartTime       *time.Time
	EndTime         *time.Time
	LoadTime        *time.Time
}

// WaitingRecord is a row from the waiting set: a job expected but not yet started.
type WaitingRecord struct {
	JobID           string
	ApplicationCode string
	ExpectedTime    string
	LastRun         *time.Time
	Frequency       string
	Priority        string
	LoadTime        *time.Time
}

// SkippedRecord is a row from the skipped set.
type SkippedRecord struct {
	JobID           string
	ApplicationCode string
	Reason          string
	LoadTime        *time.Time
}

var recordTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseRecordTime accepts the timestamp encodings the supported drivers
// produce when scanning into a string. Empty values are nil.
func parseRecordTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	v := strings.TrimSpace(ns.String)
	if v == "" || strings.HasPrefix(v, "0000-00-00") {
		return nil, nil
	}
	for _, layout := range recordTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", v)
}

func nullString(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return strings.TrimSpace(ns.String)
}
