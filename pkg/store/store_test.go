package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/bugflow/pkg/series"
	"github.com/Sumatoshi-tech/bugflow/pkg/store"
	"github.com/Sumatoshi-tech/bugflow/pkg/workflow"
)

const runID = "9a3c2e1f-4b5d-5e6f-8a7b-1c2d3e4f5a6b"

// newTestStore opens an in-memory store closed at test end.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err, "failed to open store")

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func sampleResult() *series.Result {
	created := time.Date(2022, 2, 1, 8, 30, 0, 0, time.UTC)

	counts := make(map[workflow.Stage][]int, workflow.StageCount)
	for _, stage := range workflow.Stages() {
		counts[stage] = []int{0, 0, 0}
	}

	counts[workflow.Nothing] = []int{2, 1, 0}
	counts[workflow.Unconfirmed] = []int{0, 1, 1}
	counts[workflow.Assigned] = []int{0, 0, 1}
	counts[workflow.Resolved] = []int{5, 5, 5}

	return &series.Result{
		RunID: runID,
		Series: series.Series{
			Dates:  []string{"2022-02-01", "2022-02-02", "2022-02-04"},
			Counts: counts,
		},
		Timelines: []*workflow.Timeline{
			{RecordID: 10, Transitions: []workflow.Transition{
				{When: created, Stage: workflow.Unconfirmed, Previous: workflow.Nothing},
			}},
			{RecordID: 11, Transitions: []workflow.Transition{
				{When: created.Add(24 * time.Hour), Stage: workflow.Unconfirmed, Previous: workflow.Nothing},
				{When: created.Add(72 * time.Hour), Stage: workflow.Assigned, Previous: workflow.Unconfirmed},
			}},
		},
		Faults: []*workflow.Fault{workflow.NewFault(30, workflow.ErrUnknownStatus)},
		Stats: series.Stats{
			Records: 8, Timelines: 2, Background: 5, Faulted: 1,
			Candidates: 4, Committed: 3, Discarded: 1,
		},
	}
}

func TestOpen_CreatesTables(t *testing.T) {
	t.Parallel()

	// A file database survives reopen; migrations must be idempotent.
	dsn := filepath.Join(t.TempDir(), "runs.db")

	first, err := store.Open(context.Background(), dsn)
	require.NoError(t, err)
	require.NoError(t, first.Save(context.Background(), sampleResult()))
	require.NoError(t, first.Close())

	second, err := store.Open(context.Background(), dsn)
	require.NoError(t, err)

	defer second.Close()

	runs, err := second.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestSave_RoundTripsSeries(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	res := sampleResult()

	require.NoError(t, s.Save(ctx, res))

	got, err := s.Series(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, res.Series, got)

	run, err := s.Run(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 3, run.Days)
	assert.Equal(t, res.Stats, run.Stats)
	assert.WithinDuration(t, time.Now(), run.SavedAt, time.Minute)
}

func TestSave_FaultsAndTransitions(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleResult()))

	faults, err := s.Faults(ctx, runID)
	require.NoError(t, err)
	require.Len(t, faults, 1)
	assert.Equal(t, int64(30), faults[0].RecordID)
	assert.Equal(t, "unknown_status", faults[0].Kind)

	entries, err := s.StageEntries(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, map[workflow.Stage]int{workflow.Unconfirmed: 2, workflow.Assigned: 1}, entries)
}

func TestSave_ReplacesRun(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	res := sampleResult()

	require.NoError(t, s.Save(ctx, res))

	res.Faults = nil
	res.Timelines = res.Timelines[:1]
	require.NoError(t, s.Save(ctx, res))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	faults, err := s.Faults(ctx, runID)
	require.NoError(t, err)
	assert.Empty(t, faults)

	entries, err := s.StageEntries(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, map[workflow.Stage]int{workflow.Unconfirmed: 1}, entries)
}

func TestSave_InvalidRunID(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	err := s.Save(context.Background(), &series.Result{RunID: "not-a-uuid"})
	require.ErrorIs(t, err, store.ErrInvalidRunID)
}

func TestRun_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	_, err := s.Run(context.Background(), runID)
	require.ErrorIs(t, err, store.ErrRunNotFound)

	_, err = s.Series(context.Background(), runID)
	require.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestSave_EmptySeries(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &series.Result{RunID: runID}))

	got, err := s.Series(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}
