package workflow_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/bugflow/pkg/tracker"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()

	parsed, err := time.Parse(time.DateOnly, s)
	require.NoError(t, err)

	return parsed
}

func change(field, removed, added string) tracker.FieldChange {
	return tracker.FieldChange{FieldName: field, Removed: removed, Added: added}
}

func event(when time.Time, changes ...tracker.FieldChange) tracker.HistoryEvent {
	return tracker.HistoryEvent{When: when, Changes: changes}
}

// newRecord returns a defect routed to a real component with no history.
func newRecord(id int64, created time.Time, status string) tracker.Record {
	return tracker.Record{
		ID:             id,
		Type:           "defect",
		Product:        "Core",
		Component:      "DOM",
		Status:         status,
		Severity:       "--",
		CreationTime:   created,
		LastChangeTime: created,
	}
}
