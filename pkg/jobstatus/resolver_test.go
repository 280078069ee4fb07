package jobstatus

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/jobscope/pkg/jobstore"
)

type fakeLookup struct {
	processed map[string]jobstore.Record
	waiting   map[string]bool
	skipped   map[string]bool

	failOn string
	calls  []string
}

func (f *fakeLookup) LatestProcessed(_ context.Context, jobID string) (*jobstore.Record, error) {
	f.calls = append(f.calls, "processed")
	if f.failOn == "processed" {
		return nil, &jobstore.StoreError{Op: "latest processed", Err: errors.New("connection reset")}
	}
	if rec, ok := f.processed[jobID]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (f *fakeLookup) InWaiting(_ context.Context, jobID string) (bool, error) {
	f.calls = append(f.calls, "waiting")
	if f.failOn == "waiting" {
		return false, &jobstore.StoreError{Op: "waiting lookup", Err: errors.New("connection reset")}
	}
	return f.waiting[jobID], nil
}

func (f *fakeLookup) InSkipped(_ context.Context, jobID string) (bool, error) {
	f.calls = append(f.calls, "skipped")
	return f.skipped[jobID], nil
}

func TestResolvePrecedence(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(nil)
	lookup := &fakeLookup{
		processed: map[string]jobstore.Record{
			"both":  {JobID: "both", StatusRaw: "completed"},
			"three": {JobID: "three", StatusRaw: "ERROR"},
		},
		waiting: map[string]bool{"both": true, "wait": true, "three": true, "ws": true},
		skipped: map[string]bool{"skip": true, "three": true, "ws": true},
	}

	cases := []struct {
		jobID  string
		status Status
		source Source
	}{
		{"both", StatusSucceeded, SourceProcessed},
		{"three", StatusFailed, SourceProcessed},
		{"wait", StatusWaiting, SourceWaiting},
		{"ws", StatusWaiting, SourceWaiting},
		{"skip", StatusSkipped, SourceSkipped},
		{"ghost", StatusPending, SourceNone},
	}
	for _, tc := range cases {
		t.Run(tc.jobID, func(t *testing.T) {
			res, err := r.Resolve(ctx, lookup, tc.jobID)
			require.NoError(t, err)
			assert.Equal(t, tc.status, res.Status)
			assert.Equal(t, tc.source, res.Source)
			if tc.source == SourceProcessed {
				require.NotNil(t, res.Record)
			} else {
				assert.Nil(t, res.Record)
			}
		})
	}
}

func TestResolveStopsAfterFirstHit(t *testing.T) {
	lookup := &fakeLookup{processed: map[string]jobstore.Record{"j": {JobID: "j", StatusRaw: "RUNNING"}}}
	_, err := NewResolver(nil).Resolve(context.Background(), lookup, "j")
	require.NoError(t, err)
	assert.Equal(t, []string{"processed"}, lookup.calls)
}

func TestResolveStoreErrorDoesNotFallThrough(t *testing.T) {
	lookup := &fakeLookup{failOn: "waiting", skipped: map[string]bool{"j": true}}
	_, err := NewResolver(nil).Resolve(context.Background(), lookup, "j")
	require.Error(t, err)
	assert.ErrorIs(t, err, jobstore.ErrUnavailable)
	assert.Equal(t, []string{"processed", "waiting"}, lookup.calls)
}

func TestResolveRejectsInvalidIDBeforeLookup(t *testing.T) {
	for _, id := range []string{"", "   ", "a b", "tab\tid", strings.Repeat("9", MaxJobIDLength+1)} {
		lookup := &fakeLookup{}
		_, err := NewResolver(nil).Resolve(context.Background(), lookup, id)
		assert.ErrorIs(t, err, ErrInvalidJobID, "%q", id)
		assert.Empty(t, lookup.calls)
	}

	// Ids are opaque, not numeric-only.
	assert.NoError(t, ValidateJobID("etl-job_42.v2"))
}

func TestResolveAgainstStore(t *testing.T) {
	ctx := context.Background()
	store, err := jobstore.Open(ctx, jobstore.Config{Path: ":memory:"})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, jobstore.Migrate(ctx, store.DB()))

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	require.NoError(t, jobstore.SeedSample(ctx, store.DB(), now))

	sess, err := store.Acquire(ctx)
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	r := NewResolver(nil)
	want := map[string]Status{
		"7615134444": StatusSucceeded,
		"7615132203": StatusRunning,
		"7615132210": StatusWaiting,
		"761513677":  StatusSkipped,
		"8800100001": StatusSucceeded, // processed and re-queued
		"9900200001": StatusRunning,
		"0000000000": StatusPending,
	}
	for id, st := range want {
		res, err := r.Resolve(ctx, sess, id)
		require.NoError(t, err, id)
		assert.Equal(t, st, res.Status, id)
	}
}
