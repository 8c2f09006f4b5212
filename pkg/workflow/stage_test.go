package workflow_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/bugflow/pkg/workflow"
)

func TestStages_OrdinalsAreExplicit(t *testing.T) {
	t.Parallel()

	want := []string{
		"NOTHING", "NO_COMPONENT", "UNCONFIRMED", "CONFIRMED", "PENDING_NEEDINFO",
		"ANSWERED_NEEDINFO", "TRIAGED", "ASSIGNED", "IN_REVIEW", "RESOLVED",
	}

	stages := workflow.Stages()
	require.Len(t, stages, workflow.StageCount)

	for i, stage := range stages {
		assert.Equal(t, i, stage.Ordinal())
		assert.Equal(t, want[i], stage.String())
	}
}

func TestStage_Less(t *testing.T) {
	t.Parallel()

	assert.True(t, workflow.Nothing.Less(workflow.NoComponent))
	assert.True(t, workflow.AnsweredNeedinfo.Less(workflow.Triaged))
	assert.False(t, workflow.Resolved.Less(workflow.InReview))
	assert.False(t, workflow.Triaged.Less(workflow.Triaged))
}

func TestStage_Accepts(t *testing.T) {
	t.Parallel()

	assert.True(t, workflow.Nothing.Accepts(workflow.Unconfirmed))
	assert.True(t, workflow.AnsweredNeedinfo.Accepts(workflow.PendingNeedinfo))
	assert.False(t, workflow.Triaged.Accepts(workflow.PendingNeedinfo))
	assert.False(t, workflow.PendingNeedinfo.Accepts(workflow.PendingNeedinfo))
	assert.False(t, workflow.Resolved.Accepts(workflow.Confirmed))
}

func TestStage_Label(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Pending needinfo", workflow.PendingNeedinfo.Label())
	assert.Equal(t, "Resolved", workflow.Resolved.Label())
}

func TestStage_TextRoundTrip(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(map[workflow.Stage]int{workflow.InReview: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"IN_REVIEW":3}`, string(data))

	var decoded map[workflow.Stage]int

	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 3, decoded[workflow.InReview])
}

func TestParseStage_Unknown(t *testing.T) {
	t.Parallel()

	_, err := workflow.ParseStage("DONE")
	require.ErrorIs(t, err, workflow.ErrUnknownStage)

	_, err = workflow.Stage(42).MarshalText()
	require.ErrorIs(t, err, workflow.ErrUnknownStage)
}
