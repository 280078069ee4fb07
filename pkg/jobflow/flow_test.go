package jobflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/jobscope/pkg/catalog"
	"github.com/3leaps/jobscope/pkg/jobstatus"
	"github.com/3leaps/jobscope/pkg/jobstore"
)

type mapLookup struct {
	processed map[string]string
	waiting   map[string]bool
	skipped   map[string]bool
	fail      string
}

func (m mapLookup) LatestProcessed(_ context.Context, id string) (*jobstore.Record, error) {
	if id == m.fail {
		return nil, &jobstore.StoreError{Op: "latest processed", Err: errors.New("broken pipe")}
	}
	if raw, ok := m.processed[id]; ok {
		return &jobstore.Record{JobID: id, StatusRaw: raw}, nil
	}
	return nil, nil
}

func (m mapLookup) InWaiting(_ context.Context, id string) (bool, error) { return m.waiting[id], nil }
func (m mapLookup) InSkipped(_ context.Context, id string) (bool, error) { return m.skipped[id], nil }

func testFlows() []catalog.Flow {
	return []catalog.Flow{
		{Name: "VBCDF", ApplicationCode: "VBCDF", Stages: []catalog.Stage{
			{JobID: "s1", Name: "First"},
			{JobID: "s2", Name: "Second"},
			{JobID: "s3", Name: "Third"},
			{JobID: "s4", Name: "Fourth"},
		}},
		{ApplicationCode: "CLMS", Stages: []catalog.Stage{{JobID: "c1", Name: "Intake"}}},
	}
}

func TestComposePreservesConfiguredOrder(t *testing.T) {
	b, err := NewBuilder(testFlows())
	require.NoError(t, err)
	c := NewComposer(b, nil)

	lookup := mapLookup{
		processed: map[string]string{"s1": "COMPLETED", "s3": "RUNNING"},
		skipped:   map[string]bool{"s4": true},
	}
	flow, err := c.Compose(context.Background(), lookup, "vbcdf")
	require.NoError(t, err)

	assert.Equal(t, "VBCDF", flow.Name)
	assert.Equal(t, "VBCDF", flow.ApplicationCode)
	assert.Equal(t, []Stage{
		{JobID: "s1", DisplayName: "First", Status: jobstatus.StatusSucceeded},
		{JobID: "s2", DisplayName: "Second", Status: jobstatus.StatusPending},
		{JobID: "s3", DisplayName: "Third", Status: jobstatus.StatusRunning},
		{JobID: "s4", DisplayName: "Fourth", Status: jobstatus.StatusSkipped},
	}, flow.Stages)
}

func TestComposeUnknownFlow(t *testing.T) {
	b, err := NewBuilder(testFlows())
	require.NoError(t, err)

	flow, err := NewComposer(b, nil).Compose(context.Background(), mapLookup{}, "nope")
	assert.ErrorIs(t, err, ErrUnknownFlow)
	assert.Empty(t, flow.Stages)
}

func TestComposeStoreErrorFailsFlow(t *testing.T) {
	b, err := NewBuilder(testFlows())
	require.NoError(t, err)

	_, err = NewComposer(b, nil).Compose(context.Background(), mapLookup{fail: "s2"}, "VBCDF")
	assert.ErrorIs(t, err, jobstore.ErrUnavailable)
}

func TestComposeAll(t *testing.T) {
	b, err := NewBuilder(testFlows())
	require.NoError(t, err)
	assert.Equal(t, []string{"VBCDF", "CLMS"}, b.Names())

	flows, err := NewComposer(b, nil).ComposeAll(context.Background(), mapLookup{waiting: map[string]bool{"c1": true}})
	require.NoError(t, err)
	require.Len(t, flows, 2)
	assert.Equal(t, "CLMS", flows[1].Name)
	assert.Equal(t, jobstatus.StatusWaiting, flows[1].Stages[0].Status)
}

func TestSkeletonIsACopy(t *testing.T) {
	b, err := NewBuilder(testFlows())
	require.NoError(t, err)

	s, err := b.Skeleton("VBCDF")
	require.NoError(t, err)
	s.Stages[0].Status = jobstatus.StatusFailed
	s.Stages[0].DisplayName = "mutated"

	again, err := b.Skeleton("VBCDF")
	require.NoError(t, err)
	assert.Equal(t, jobstatus.Status(""), again.Stages[0].Status)
	assert.Equal(t, "First", again.Stages[0].DisplayName)
}

func TestNewBuilderValidation(t *testing.T) {
	_, err := NewBuilder([]catalog.Flow{{Name: "A", Stages: nil}})
	assert.Error(t, err)

	_, err = NewBuilder([]catalog.Flow{
		{Name: "A", Stages: []catalog.Stage{{JobID: "1"}}},
		{Name: "a", Stages: []catalog.Stage{{JobID: "2"}}},
	})
	assert.Error(t, err)

	_, err = NewBuilder([]catalog.Flow{{Name: "A", Stages: []catalog.Stage{{JobID: ""}}}})
	assert.ErrorIs(t, err, jobstatus.ErrInvalidJobID)

	_, err = NewBuilder([]catalog.Flow{{Stages: []catalog.Stage{{JobID: "1"}}}})
	assert.Error(t, err)
}

func TestComposeDefaultCatalogAgainstSample(t *testing.T) {
	ctx := context.Background()
	store, err := jobstore.Open(ctx, jobstore.Config{Path: ":memory:"})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, jobstore.Migrate(ctx, store.DB()))
	require.NoError(t, jobstore.SeedSample(ctx, store.DB(), time.Now()))

	cat, err := catalog.Default()
	require.NoError(t, err)
	b, err := NewBuilder(cat.Flows)
	require.NoError(t, err)

	sess, err := store.Acquire(ctx)
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	flow, err := NewComposer(b, nil).Compose(ctx, sess, "VBCDF")
	require.NoError(t, err)

	var got []jobstatus.Status
	for _, s := range flow.Stages {
		got = append(got, s.Status)
	}
	assert.Equal(t, []jobstatus.Status{
		jobstatus.StatusSucceeded,
		jobstatus.StatusRunning,
		jobstatus.StatusWaiting,
		jobstatus.StatusSkipped,
	}, got)
}
