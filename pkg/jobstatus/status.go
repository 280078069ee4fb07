// Package jobstatus resolves the canonical status of a scheduled job.
//
// A job may appear in any of three record sets (processed, waiting, skipped).
// Resolution checks them in that fixed order and the first hit decides:
// a job that was processed and later re-queued reports its processed outcome.
package jobstatus

import (
	"errors"
	"strings"
)

// Status is the canonical status vocabulary exposed to callers.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusWaiting   Status = "WAITING"
	StatusSkipped   Status = "SKIPPED"
	StatusPending   Status = "PENDING"
)

// ErrUnknownStatus is returned by Parse for names outside the enumeration.
var ErrUnknownStatus = errors.New("unknown canonical status")

// All returns every canonical status in display order.
func All() []Status {
	return []Status{
		StatusRunning,
		StatusSucceeded,
		StatusFailed,
		StatusWaiting,
		StatusSkipped,
		StatusPending,
	}
}

// Parse accepts a canonical status name, case-insensitively.
func Parse(s string) (Status, error) {
	want := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range All() {
		if st == want {
			return st, nil
		}
	}
	return "", ErrUnknownStatus
}

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether the job has finished, successfully or not.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}
