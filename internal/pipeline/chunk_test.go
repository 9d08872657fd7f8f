package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scorelab/scorefold/internal/config"
	"github.com/scorelab/scorefold/internal/database"
	"github.com/scorelab/scorefold/internal/metrics"
	"github.com/scorelab/scorefold/internal/model"
	"github.com/scorelab/scorefold/internal/pipeline"
	"github.com/scorelab/scorefold/internal/repository"
	"github.com/scorelab/scorefold/internal/support/exception"
)

// flakyWriter fails its first N writes with a retryable error, then
// delegates to the real writer.
type flakyWriter struct {
	inner    pipeline.ItemWriter
	failures int
	calls    int
}

func (w *flakyWriter) Write(ctx context.Context, tx database.Tx, updates []*model.ScoreUpdate) error {
	w.calls++
	if w.failures > 0 {
		w.failures--
		return exception.NewBatchError("flakyWriter", "transient store failure", nil, true)
	}
	return w.inner.Write(ctx, tx, updates)
}

// fatalWriter always fails without the retryable classification.
type fatalWriter struct{}

func (fatalWriter) Write(ctx context.Context, tx database.Tx, updates []*model.ScoreUpdate) error {
	return exception.NewBatchError("fatalWriter", "store rejected the chunk", nil, false)
}

func newTestLane(t *testing.T, conn database.Connection, ledger repository.ExecutionRepository, writer pipeline.ItemWriter, chunkSize int, retry config.RetryConfig) (*pipeline.Lane, *model.LaneExecution) {
	t.Helper()

	run := model.NewRunExecution(model.NewID(), model.RunModeSequential, 1, chunkSize)
	require.NoError(t, ledger.SaveRun(context.Background(), run))
	exec := model.NewLaneExecution(run, 0)
	require.NoError(t, ledger.SaveLane(context.Background(), exec))

	reader := pipeline.NewActionReader(conn, chunkSize)
	lane := pipeline.NewLane(run, exec, reader, pipeline.NewScoreProcessor(), writer,
		database.NewTxManager(conn), ledger, metrics.NewNoOpMetricRecorder(), chunkSize, retry)
	return lane, exec
}

func TestLane_RetriesTransientWriteFailure(t *testing.T) {
	conn := newStoreConn(t)
	ledger := newLedger(t, conn)
	seedActions(t, conn,
		action(1, 1, model.ActionPlus, "10"),
		action(2, 1, model.ActionMulti, "2"),
	)

	realWriter, err := pipeline.NewScoreWriter(conn)
	require.NoError(t, err)
	writer := &flakyWriter{inner: realWriter, failures: 1}

	lane, exec := newTestLane(t, conn, ledger, writer, 2, config.RetryConfig{MaxAttempts: 2, InitialIntervalMS: 1})
	require.NoError(t, lane.Execute(context.Background()))

	assert.Equal(t, model.LaneStateDrained, exec.State)
	assert.Equal(t, 1, exec.RollbackCount)
	assert.Equal(t, 1, exec.CommitCount)
	assert.Equal(t, 2, writer.calls)

	scores := loadScores(t, conn)
	assertScore(t, scores, 1, "20")
}

func TestLane_ExhaustedRetriesFailTheLane(t *testing.T) {
	conn := newStoreConn(t)
	ledger := newLedger(t, conn)
	seedActions(t, conn, action(1, 1, model.ActionPlus, "10"))

	realWriter, err := pipeline.NewScoreWriter(conn)
	require.NoError(t, err)
	writer := &flakyWriter{inner: realWriter, failures: 10}

	lane, exec := newTestLane(t, conn, ledger, writer, 2, config.RetryConfig{MaxAttempts: 2, InitialIntervalMS: 1})
	err = lane.Execute(context.Background())
	require.Error(t, err)

	assert.Equal(t, model.LaneStateFailed, exec.State)
	// Initial attempt plus two retries, all rolled back.
	assert.Equal(t, 3, exec.RollbackCount)
	assert.Equal(t, int64(0), exec.LastCommittedID)
	assert.Empty(t, loadScores(t, conn))
}

func TestLane_FatalWriteFailureIsNotRetried(t *testing.T) {
	conn := newStoreConn(t)
	ledger := newLedger(t, conn)
	seedActions(t, conn, action(1, 1, model.ActionPlus, "10"))

	lane, exec := newTestLane(t, conn, ledger, fatalWriter{}, 2, config.RetryConfig{MaxAttempts: 3, InitialIntervalMS: 1})
	err := lane.Execute(context.Background())
	require.Error(t, err)

	assert.Equal(t, model.LaneStateFailed, exec.State)
	assert.Equal(t, 1, exec.RollbackCount)
	assert.Empty(t, loadScores(t, conn))
}

func TestLane_CanceledContextFailsWithoutLosingCheckpoint(t *testing.T) {
	conn := newStoreConn(t)
	ledger := newLedger(t, conn)
	seedActions(t, conn, action(1, 1, model.ActionPlus, "10"))

	realWriter, err := pipeline.NewScoreWriter(conn)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lane, exec := newTestLane(t, conn, ledger, realWriter, 2, config.RetryConfig{MaxAttempts: 2, InitialIntervalMS: 1})
	err = lane.Execute(ctx)
	require.Error(t, err)

	assert.Equal(t, model.LaneStateFailed, exec.State)
	assert.Equal(t, int64(0), exec.LastCommittedID)
	assert.Empty(t, loadScores(t, conn))
}
