package model_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scorelab/scorefold/internal/model"
)

func TestRunExecution_StatusTransitions(t *testing.T) {
	run := model.NewRunExecution("r1", model.RunModeParallel, 3, 5)
	assert.Equal(t, model.RunStatusStarting, run.Status)
	assert.False(t, run.Status.IsFinished())

	run.MarkAsStarted()
	assert.Equal(t, model.RunStatusStarted, run.Status)

	run.MarkAsCompleted()
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.True(t, run.Status.IsFinished())
	require.NotNil(t, run.EndTime)
}

func TestRunExecution_MarkAsFailedRecordsCause(t *testing.T) {
	run := model.NewRunExecution("r1", model.RunModeSequential, 1, 5)
	run.MarkAsFailed(errors.New("boom"))

	assert.Equal(t, model.RunStatusFailed, run.Status)
	require.Len(t, run.Failures, 1)
	assert.Equal(t, "boom", run.Failures[0])
	require.NotNil(t, run.EndTime)
}

func TestLaneExecution_Lifecycle(t *testing.T) {
	run := model.NewRunExecution("r1", model.RunModeParallel, 3, 5)
	lane := model.NewLaneExecution(run, 2)

	assert.Equal(t, run.ID, lane.RunID)
	assert.Equal(t, 2, lane.PartitionIndex)
	assert.Equal(t, model.LaneStateIdle, lane.State)
	assert.NotEmpty(t, lane.ID)

	lane.SetState(model.LaneStateReading)
	assert.False(t, lane.State.IsFinished())

	lane.MarkAsDrained()
	assert.Equal(t, model.LaneStateDrained, lane.State)
	assert.True(t, lane.State.IsFinished())
}

func TestRunMode_Valid(t *testing.T) {
	assert.True(t, model.RunModeSequential.Valid())
	assert.True(t, model.RunModeParallel.Valid())
	assert.False(t, model.RunMode("batch").Valid())
	assert.False(t, model.RunMode("").Valid())
}

func TestFailureList_SQLRoundTrip(t *testing.T) {
	fl := model.FailureList{"first", "second"}

	value, err := fl.Value()
	require.NoError(t, err)

	var scanned model.FailureList
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, fl, scanned)
}

func TestFailureList_ScanNilAndEmpty(t *testing.T) {
	var fl model.FailureList
	require.NoError(t, fl.Scan(nil))
	assert.Empty(t, fl)

	require.NoError(t, fl.Scan([]byte("")))
	assert.Empty(t, fl)
}
