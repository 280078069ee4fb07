package jobstatus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalIsTotal(t *testing.T) {
	m := DefaultMapping()

	cases := map[string]Status{
		"COMPLETED":   StatusSucceeded,
		"completed":   StatusSucceeded,
		" Success ":   StatusSucceeded,
		"RUNNING":     StatusRunning,
		"in-progress": StatusRunning,
		"Active":      StatusRunning,
		"FAILED":      StatusFailed,
		"error":       StatusFailed,
		"queued":      StatusWaiting,
		"SKIPPED":     StatusSkipped,
		"PENDING":     StatusPending,
		"":            StatusPending,
		"¯\\_(ツ)_/¯":  StatusPending,
		"HALF-DONE":   StatusPending,
	}
	for raw, want := range cases {
		assert.Equal(t, want, m.Canonical(raw), "%q", raw)
	}
}

func TestNewMappingExtends(t *testing.T) {
	m, err := NewMapping(map[string][]string{
		"succeeded": {"FINISHED_OK"},
		"FAILED":    {"rejected", "FAILED"},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, m.Canonical("finished_ok"))
	assert.Equal(t, StatusFailed, m.Canonical("REJECTED"))
	assert.Contains(t, m.RawValues(StatusFailed), "REJECTED")
}

func TestNewMappingRejectsConflicts(t *testing.T) {
	_, err := NewMapping(map[string][]string{"RUNNING": {"completed"}})
	assert.Error(t, err)

	_, err = NewMapping(map[string][]string{"BOGUS": {"X"}})
	assert.ErrorIs(t, err, ErrUnknownStatus)

	_, err = NewMapping(map[string][]string{"FAILED": {"  "}})
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	st, err := Parse(" running ")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, st)

	_, err = Parse("COMPLETED")
	assert.ErrorIs(t, err, ErrUnknownStatus)

	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusWaiting.IsTerminal())
	assert.Len(t, All(), 6)
}
