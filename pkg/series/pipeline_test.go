package series_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/bugflow/pkg/series"
	"github.com/Sumatoshi-tech/bugflow/pkg/tracker"
	"github.com/Sumatoshi-tech/bugflow/pkg/workflow"
)

func record(t *testing.T, id int64, created, status string, history ...tracker.HistoryEvent) tracker.Record {
	t.Helper()

	rec := tracker.Record{
		ID:             id,
		Type:           "defect",
		Product:        "Core",
		Component:      "DOM",
		Status:         status,
		Severity:       "--",
		CreationTime:   at(t, created),
		LastChangeTime: at(t, created),
		History:        history,
	}

	for _, ev := range history {
		if ev.When.After(rec.LastChangeTime) {
			rec.LastChangeTime = ev.When
		}
	}

	return rec
}

func statusChange(t *testing.T, when, removed, added string) tracker.HistoryEvent {
	t.Helper()

	return tracker.HistoryEvent{
		When:    at(t, when),
		Changes: []tracker.FieldChange{{FieldName: tracker.FieldStatus, Removed: removed, Added: added}},
	}
}

func batch(t *testing.T) []tracker.Record {
	t.Helper()

	return []tracker.Record{
		record(t, 1, "2022-01-02T09:00:00Z", "RESOLVED",
			statusChange(t, "2022-01-05T12:00:00Z", "UNCONFIRMED", "RESOLVED")),
		record(t, 2, "2022-01-03T10:00:00Z", "NEW"),
		record(t, 3, "2021-05-01T00:00:00Z", "VERIFIED",
			statusChange(t, "2021-06-01T00:00:00Z", "NEW", "VERIFIED")),
	}
}

func options(t *testing.T, policy series.FaultPolicy) series.Options {
	t.Helper()

	start := at(t, "2022-01-01T00:00:00Z")

	return series.Options{
		Vocabulary:  workflow.DefaultVocabulary(),
		Background:  tracker.LastChangeBefore(start),
		Start:       start,
		FaultPolicy: policy,
		Logger:      slog.New(slog.DiscardHandler),
	}
}

func TestRun_Series(t *testing.T) {
	t.Parallel()

	res, err := series.Run(context.Background(), batch(t), options(t, series.FaultAbort))
	require.NoError(t, err)

	assert.Equal(t, []string{"2022-01-02", "2022-01-03", "2022-01-05"}, res.Series.Dates)
	assert.Equal(t, []int{2, 1, 0}, res.Series.Counts[workflow.Nothing])
	assert.Equal(t, []int{0, 1, 1}, res.Series.Counts[workflow.Unconfirmed])
	assert.Equal(t, []int{0, 0, 1}, res.Series.Counts[workflow.Confirmed])
	assert.Equal(t, []int{1, 1, 1}, res.Series.Counts[workflow.Resolved])

	assert.Equal(t, 3, res.Stats.Records)
	assert.Equal(t, 2, res.Stats.Timelines)
	assert.Equal(t, 1, res.Stats.Background)
	assert.Equal(t, 3, res.Stats.Committed)
	assert.Zero(t, res.Stats.Faulted)
	assert.Len(t, res.Timelines, 2)
	assert.Empty(t, res.Faults)
}

func TestRun_PopulationConserved(t *testing.T) {
	t.Parallel()

	res, err := series.Run(context.Background(), batch(t), options(t, series.FaultAbort))
	require.NoError(t, err)

	for i := range res.Series.Dates {
		assert.Equal(t, res.Stats.Records-res.Stats.Faulted, res.Series.TotalAt(i), res.Series.Dates[i])
	}
}

func TestRun_Deterministic(t *testing.T) {
	t.Parallel()

	first, err := series.Run(context.Background(), batch(t), options(t, series.FaultAbort))
	require.NoError(t, err)

	second, err := series.Run(context.Background(), batch(t), options(t, series.FaultAbort))
	require.NoError(t, err)

	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, first.Series, second.Series)
	assert.Equal(t, first.Timelines, second.Timelines)

	changed := batch(t)
	changed[1].LastChangeTime = at(t, "2022-02-01T00:00:00Z")

	third, err := series.Run(context.Background(), changed, options(t, series.FaultAbort))
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, third.RunID)
}

func faultyBatch(t *testing.T) []tracker.Record {
	t.Helper()

	return append(batch(t),
		record(t, 4, "2022-01-04T00:00:00Z", "TRIAGE_ME",
			statusChange(t, "2022-01-04T06:00:00Z", "NEW", "TRIAGE_ME")))
}

func TestRun_AbortOnFault(t *testing.T) {
	t.Parallel()

	res, err := series.Run(context.Background(), faultyBatch(t), options(t, series.FaultAbort))
	require.ErrorIs(t, err, workflow.ErrUnknownStatus)
	assert.Nil(t, res)

	var fault *workflow.Fault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, int64(4), fault.RecordID)
}

func TestRun_IsolateFault(t *testing.T) {
	t.Parallel()

	clean, err := series.Run(context.Background(), batch(t), options(t, series.FaultIsolate))
	require.NoError(t, err)

	res, err := series.Run(context.Background(), faultyBatch(t), options(t, series.FaultIsolate))
	require.NoError(t, err)

	require.Len(t, res.Faults, 1)
	assert.Equal(t, int64(4), res.Faults[0].RecordID)
	assert.Equal(t, "unknown_status", res.Faults[0].Kind)
	assert.Equal(t, 1, res.Stats.Faulted)
	assert.Equal(t, clean.Series, res.Series)

	for i := range res.Series.Dates {
		assert.Equal(t, 3, res.Series.TotalAt(i))
	}
}

func TestRun_BackgroundFaultsToo(t *testing.T) {
	t.Parallel()

	records := batch(t)
	records[2].Status = "LIMBO"

	_, err := series.Run(context.Background(), records, options(t, series.FaultAbort))
	require.ErrorIs(t, err, workflow.ErrUnknownStatus)
}

func TestRun_UnknownFaultPolicy(t *testing.T) {
	t.Parallel()

	_, err := series.Run(context.Background(), batch(t), options(t, "retry"))
	require.ErrorIs(t, err, series.ErrUnknownFaultPolicy)
}

func TestParseFaultPolicy(t *testing.T) {
	t.Parallel()

	policy, err := series.ParseFaultPolicy("")
	require.NoError(t, err)
	assert.Equal(t, series.FaultAbort, policy)

	policy, err = series.ParseFaultPolicy("isolate")
	require.NoError(t, err)
	assert.Equal(t, series.FaultIsolate, policy)
}
