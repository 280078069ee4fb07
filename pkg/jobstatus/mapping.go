package jobstatus

import (
	"fmt"
	"sort"
	"strings"
)

// defaultVocabulary lists every raw status string the known schedulers emit.
// Keys are canonical; values are raw spellings, compared case-insensitively.
var defaultVocabulary = map[Status][]string{
	StatusSucceeded: {"COMPLETED", "COMPLETE", "SUCCESS", "SUCCEEDED", "SUCCESSFUL", "DONE", "OK"},
	StatusRunning:   {"RUNNING", "ACTIVE", "IN-PROGRESS", "IN_PROGRESS", "INPROGRESS", "STARTED", "EXECUTING"},
	StatusFailed:    {"FAILED", "FAILURE", "ERROR", "ABORTED", "TERMINATED", "KILLED", "CANCELLED", "CANCELED", "TIMEOUT"},
	StatusWaiting:   {"WAITING", "QUEUED"},
	StatusSkipped:   {"SKIPPED", "BYPASSED"},
	StatusPending:   {"PENDING", "BLOCKED", "SCHEDULED"},
}

// Mapping is the raw→canonical vocabulary table.
//
// Canonical is total: unmapped raw values resolve to StatusPending.
// A Mapping is immutable after construction and safe for concurrent use.
type Mapping struct {
	table map[string]Status
}

// DefaultMapping returns the built-in vocabulary.
func DefaultMapping() *Mapping {
	m, err := NewMapping(nil)
	if err != nil {
		// The built-in table has no conflicts.
		panic(err)
	}
	return m
}

// NewMapping builds the built-in vocabulary extended by extra.
//
// extra is keyed by canonical status name. A raw value already mapped to a
// different canonical status is a conflict and returns an error; repeating
// an existing pair is allowed.
func NewMapping(extra map[string][]string) (*Mapping, error) {
	m := &Mapping{table: make(map[string]Status)}
	for st, raws := range defaultVocabulary {
		for _, raw := range raws {
			if err := m.add(raw, st); err != nil {
				return nil, err
			}
		}
	}

	// Deterministic order so conflict errors are stable.
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		st, err := Parse(k)
		if err != nil {
			return nil, fmt.Errorf("status map key %q: %w", k, err)
		}
		for _, raw := range extra[k] {
			if err := m.add(raw, st); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Mapping) add(raw string, st Status) error {
	key := normalizeRaw(raw)
	if key == "" {
		return fmt.Errorf("empty raw status for %s", st)
	}
	if existing, ok := m.table[key]; ok && existing != st {
		return fmt.Errorf("raw status %q maps to both %s and %s", key, existing, st)
	}
	m.table[key] = st
	return nil
}

// Canonical maps a raw status string to its canonical value.
func (m *Mapping) Canonical(raw string) Status {
	if st, ok := m.table[normalizeRaw(raw)]; ok {
		return st
	}
	return StatusPending
}

// Match reports the canonical value of raw and whether raw is in the table.
// Unlike Canonical it does not fall back to PENDING.
func (m *Mapping) Match(raw string) (Status, bool) {
	st, ok := m.table[normalizeRaw(raw)]
	return st, ok
}

// RawValues lists the raw spellings mapped to st, sorted.
func (m *Mapping) RawValues(st Status) []string {
	var out []string
	for raw, v := range m.table {
		if v == st {
			out = append(out, raw)
		}
	}
	sort.Strings(out)
	return out
}

func normalizeRaw(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
