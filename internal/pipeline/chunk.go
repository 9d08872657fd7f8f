package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/scorelab/scorefold/internal/config"
	"github.com/scorelab/scorefold/internal/database"
	"github.com/scorelab/scorefold/internal/metrics"
	"github.com/scorelab/scorefold/internal/model"
	"github.com/scorelab/scorefold/internal/repository"
	"github.com/scorelab/scorefold/internal/support/exception"
	"github.com/scorelab/scorefold/internal/support/logger"
)

// Lane drives chunk-oriented processing for one partition of a run: read up
// to ChunkSize events, translate them, then write the updates and advance
// the checkpoint in a single transaction. A lane that finds no more events
// drains; a lane that hits a fatal error fails without touching the last
// committed checkpoint.
type Lane struct {
	run       *model.RunExecution
	exec      *model.LaneExecution
	reader    ItemReader
	processor *ScoreProcessor
	writer    ItemWriter
	txManager database.TxManager
	ledger    repository.ExecutionRepository
	recorder  metrics.MetricRecorder
	chunkSize int
	retry     config.RetryConfig
}

// NewLane assembles a lane from its components.
func NewLane(
	run *model.RunExecution,
	exec *model.LaneExecution,
	reader ItemReader,
	processor *ScoreProcessor,
	writer ItemWriter,
	txManager database.TxManager,
	ledger repository.ExecutionRepository,
	recorder metrics.MetricRecorder,
	chunkSize int,
	retry config.RetryConfig,
) *Lane {
	if chunkSize < 1 {
		chunkSize = 1
	}
	return &Lane{
		run:       run,
		exec:      exec,
		reader:    reader,
		processor: processor,
		writer:    writer,
		txManager: txManager,
		ledger:    ledger,
		recorder:  recorder,
		chunkSize: chunkSize,
		retry:     retry,
	}
}

// Execute runs the lane to completion. It resumes strictly after the lane's
// last committed event id, so a restarted lane never re-reads an event whose
// chunk already committed.
func (l *Lane) Execute(ctx context.Context) error {
	const op = "Lane.Execute"

	logger.Infof("Lane %d of run '%s' starting (after id %d).", l.exec.PartitionIndex, l.run.ID, l.exec.LastCommittedID)
	l.recorder.RecordLaneStart(ctx, l.exec)

	if err := l.reader.Open(ctx, l.exec.LastCommittedID); err != nil {
		return l.fail(ctx, exception.NewBatchError(op, "failed to open reader", err, false))
	}
	defer l.reader.Close(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return l.fail(ctx, exception.NewBatchError(op, "lane canceled", err, false))
		}

		actions, eof, err := l.readChunk(ctx)
		if err != nil {
			return l.fail(ctx, err)
		}

		if len(actions) > 0 {
			updates, err := l.translate(ctx, actions)
			if err != nil {
				return l.fail(ctx, err)
			}
			if err := l.commitChunkWithRetry(ctx, actions, updates); err != nil {
				return l.fail(ctx, err)
			}
		}

		if eof {
			break
		}
	}

	l.exec.MarkAsDrained()
	if err := l.ledger.UpdateLane(ctx, l.exec); err != nil {
		return l.fail(ctx, exception.NewBatchError(op, "failed to persist drained lane", err, false))
	}
	l.recorder.RecordLaneEnd(ctx, l.exec)
	logger.Infof("Lane %d of run '%s' drained (read=%d write=%d commit=%d).",
		l.exec.PartitionIndex, l.run.ID, l.exec.ReadCount, l.exec.WriteCount, l.exec.CommitCount)
	return nil
}

// readChunk reads up to chunkSize events. The second return value reports
// end of stream.
func (l *Lane) readChunk(ctx context.Context) ([]*model.SessionAction, bool, error) {
	const op = "Lane.readChunk"

	l.exec.SetState(model.LaneStateReading)

	var actions []*model.SessionAction
	for len(actions) < l.chunkSize {
		action, err := l.reader.Read(ctx)
		if err != nil {
			if isEOF(err) {
				return actions, true, nil
			}
			return nil, false, exception.NewBatchError(op, "failed to read event", err, false)
		}
		actions = append(actions, action)
	}
	return actions, false, nil
}

func (l *Lane) translate(ctx context.Context, actions []*model.SessionAction) ([]*model.ScoreUpdate, error) {
	l.exec.SetState(model.LaneStateTranslating)

	updates := make([]*model.ScoreUpdate, 0, len(actions))
	for _, action := range actions {
		update, err := l.processor.Process(ctx, action)
		if err != nil {
			return nil, err
		}
		updates = append(updates, update)
	}
	return updates, nil
}

// commitChunkWithRetry commits one chunk, re-attempting the whole
// transaction on retryable failures with linear backoff. Data errors and
// other fatal failures surface immediately.
func (l *Lane) commitChunkWithRetry(ctx context.Context, actions []*model.SessionAction, updates []*model.ScoreUpdate) error {
	attempt := 0
	for {
		err := l.commitChunk(ctx, actions, updates)
		if err == nil {
			return nil
		}

		l.exec.RollbackCount++
		l.recorder.RecordRollback(ctx, l.exec.PartitionIndex)

		if !exception.IsRetryable(err) || attempt >= l.retry.MaxAttempts {
			return err
		}
		attempt++
		l.recorder.RecordRetry(ctx, l.exec.PartitionIndex)

		delay := time.Duration(attempt*l.retry.InitialIntervalMS) * time.Millisecond
		logger.Warnf("Lane %d of run '%s': chunk commit failed (attempt %d/%d), retrying in %s: %v",
			l.exec.PartitionIndex, l.run.ID, attempt, l.retry.MaxAttempts, delay, err)
		select {
		case <-ctx.Done():
			return exception.NewBatchError("Lane.commitChunkWithRetry", "lane canceled during backoff", ctx.Err(), false)
		case <-time.After(delay):
		}
	}
}

// commitChunk writes the chunk's updates and the checkpoint advance in one
// transaction. On any failure the transaction is rolled back and the lane's
// in-memory counters and version are restored to the last committed state,
// so a retry starts from a clean slate.
func (l *Lane) commitChunk(ctx context.Context, actions []*model.SessionAction, updates []*model.ScoreUpdate) error {
	const op = "Lane.commitChunk"

	committed := *l.exec

	tx, err := l.txManager.Begin(ctx)
	if err != nil {
		return exception.NewBatchError(op, "failed to begin chunk transaction", err, true)
	}

	l.exec.SetState(model.LaneStateWriting)
	if err := l.writer.Write(ctx, tx, updates); err != nil {
		l.rollback(tx, &committed)
		return err
	}

	l.exec.SetState(model.LaneStateCheckpointing)
	l.exec.ReadCount += len(actions)
	l.exec.WriteCount += len(updates)
	l.exec.CommitCount++
	l.exec.LastCommittedID = actions[len(actions)-1].ID

	if err := l.ledger.UpdateLaneInTx(ctx, tx, l.exec); err != nil {
		l.rollback(tx, &committed)
		return err
	}

	if err := l.txManager.Commit(tx); err != nil {
		l.restore(&committed)
		return exception.NewBatchError(op, "failed to commit chunk transaction", err, true)
	}

	l.recorder.RecordRead(ctx, l.exec.PartitionIndex, len(actions))
	l.recorder.RecordWrite(ctx, l.exec.PartitionIndex, len(updates))
	l.recorder.RecordCommit(ctx, l.exec.PartitionIndex)
	logger.Debugf("Lane %d of run '%s': committed chunk of %d (checkpoint id %d).",
		l.exec.PartitionIndex, l.run.ID, len(updates), l.exec.LastCommittedID)
	return nil
}

func (l *Lane) rollback(tx database.Tx, committed *model.LaneExecution) {
	if err := l.txManager.Rollback(tx); err != nil {
		logger.Errorf("Lane %d of run '%s': rollback failed: %v", l.exec.PartitionIndex, l.run.ID, err)
	}
	l.restore(committed)
}

// restore resets checkpoint, counters and version to the last committed
// snapshot. State and failure fields are kept as-is.
func (l *Lane) restore(committed *model.LaneExecution) {
	l.exec.LastCommittedID = committed.LastCommittedID
	l.exec.ReadCount = committed.ReadCount
	l.exec.WriteCount = committed.WriteCount
	l.exec.CommitCount = committed.CommitCount
	l.exec.Version = committed.Version
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

// fail marks the lane FAILED and persists it on its own connection, outside
// any chunk transaction. The checkpoint keeps its last committed value.
func (l *Lane) fail(ctx context.Context, cause error) error {
	l.exec.MarkAsFailed(cause)
	if err := l.ledger.UpdateLane(context.WithoutCancel(ctx), l.exec); err != nil {
		logger.Errorf("Lane %d of run '%s': failed to persist FAILED state: %v", l.exec.PartitionIndex, l.run.ID, err)
	}
	l.recorder.RecordLaneEnd(ctx, l.exec)
	return fmt.Errorf("lane %d of run %s failed: %w", l.exec.PartitionIndex, l.run.ID, cause)
}
