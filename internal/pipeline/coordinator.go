package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/scorelab/scorefold/internal/config"
	"github.com/scorelab/scorefold/internal/database"
	"github.com/scorelab/scorefold/internal/metrics"
	"github.com/scorelab/scorefold/internal/model"
	"github.com/scorelab/scorefold/internal/repository"
	"github.com/scorelab/scorefold/internal/support/exception"
	"github.com/scorelab/scorefold/internal/support/logger"
)

// Coordinator owns run lifecycles: it creates or resumes the run ledger
// entry, lays out one lane per partition, executes the lanes, and settles
// the run's terminal status. Sequential runs use a single lane over the
// whole stream; parallel runs use one lane per user-id partition, which
// keeps each user's events in a single lane and therefore in order.
type Coordinator struct {
	cfg       config.PipelineConfig
	storeConn database.Connection
	txManager database.TxManager
	ledger    repository.ExecutionRepository
	recorder  metrics.MetricRecorder

	mu     sync.Mutex
	active map[string]struct{}
}

// NewCoordinator creates a Coordinator. The transaction manager must run on
// the same connection as the score store and the ledger tables, or the
// checkpoint advance cannot commit atomically with the chunk's writes.
func NewCoordinator(
	cfg config.PipelineConfig,
	storeConn database.Connection,
	txManager database.TxManager,
	ledger repository.ExecutionRepository,
	recorder metrics.MetricRecorder,
) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		storeConn: storeConn,
		txManager: txManager,
		ledger:    ledger,
		recorder:  recorder,
		active:    make(map[string]struct{}),
	}
}

// ErrRunAlreadyCompleted is returned when a completed run id is launched
// again. Completed runs never re-apply events.
var ErrRunAlreadyCompleted = errors.New("run already completed")

// ErrRunAlreadyRunning is returned when a run id is launched while a run
// under the same id is still executing in this process. A STARTED run left
// behind by a crashed process is not in-flight and resumes normally.
var ErrRunAlreadyRunning = errors.New("run already running")

// acquire reserves a run id for the duration of its execution.
func (c *Coordinator) acquire(runID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[runID]; ok {
		return false
	}
	c.active[runID] = struct{}{}
	return true
}

func (c *Coordinator) release(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, runID)
}

// Run executes the aggregation pipeline for the given run id and blocks
// until every lane settles. An empty run id starts a fresh run under a new
// id; a known run id resumes the interrupted run with its original mode and
// partition layout, each lane continuing strictly after its last committed
// event id.
func (c *Coordinator) Run(ctx context.Context, runID string, mode model.RunMode) (*model.RunExecution, error) {
	const op = "Coordinator.Run"

	if !mode.Valid() {
		return nil, exception.NewBatchError(op, fmt.Sprintf("invalid run mode '%s'", mode), nil, false)
	}

	if runID == "" {
		runID = model.NewID()
	}
	if !c.acquire(runID) {
		return nil, fmt.Errorf("%w: %s", ErrRunAlreadyRunning, runID)
	}
	defer c.release(runID)

	run, err := c.prepareRun(ctx, runID, mode)
	if err != nil {
		return nil, err
	}

	run.MarkAsStarted()
	if err := c.ledger.UpdateRun(ctx, run); err != nil {
		return run, exception.NewBatchError(op, "failed to persist STARTED run", err, false)
	}
	c.recorder.RecordRunStart(ctx, run)
	logger.Infof("Run '%s' started (mode=%s, partitions=%d, chunk=%d).", run.ID, run.Mode, run.PartitionCount, run.ChunkSize)

	execErr := c.executeLanes(ctx, run)

	if execErr != nil {
		run.MarkAsFailed(execErr)
	} else {
		run.MarkAsCompleted()
	}
	if err := c.ledger.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Errorf("Run '%s': failed to persist terminal status %s: %v", run.ID, run.Status, err)
		if execErr == nil {
			execErr = exception.NewBatchError(op, "failed to persist COMPLETED run", err, false)
		}
	}
	c.recorder.RecordRunEnd(ctx, run)
	logger.Infof("Run '%s' finished with status %s.", run.ID, run.Status)
	return run, execErr
}

// prepareRun loads an interrupted run or creates a fresh one with its lanes.
func (c *Coordinator) prepareRun(ctx context.Context, runID string, mode model.RunMode) (*model.RunExecution, error) {
	const op = "Coordinator.prepareRun"

	run, err := c.ledger.FindRun(ctx, runID)
	if errors.Is(err, repository.ErrRunNotFound) {
		return c.newRun(ctx, runID, mode)
	}
	if err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to look up run '%s'", runID), err, false)
	}

	if run.Status == model.RunStatusCompleted {
		return nil, fmt.Errorf("%w: %s", ErrRunAlreadyCompleted, runID)
	}
	if run.Mode != mode {
		logger.Warnf("Run '%s' resumes with stored mode %s; requested mode %s is ignored.", run.ID, run.Mode, mode)
	}

	// The stored partition layout is authoritative on resume: routing must
	// match the original run or per-user order breaks across lanes.
	lanes, err := c.ledger.FindLanes(ctx, run.ID)
	if err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to load lanes of run '%s'", runID), err, false)
	}
	if len(lanes) == 0 {
		return nil, exception.NewBatchError(op, fmt.Sprintf("run '%s' has no lanes", runID), nil, false)
	}
	for _, lane := range lanes {
		run.AddLane(lane)
	}
	logger.Infof("Run '%s' resuming with %d lanes.", run.ID, len(lanes))
	return run, nil
}

func (c *Coordinator) newRun(ctx context.Context, runID string, mode model.RunMode) (*model.RunExecution, error) {
	const op = "Coordinator.newRun"

	partitionCount := 1
	if mode == model.RunModeParallel {
		partitionCount = c.cfg.PartitionCount
	}
	partitioner := NewPartitioner(partitionCount)

	run := model.NewRunExecution(runID, mode, partitioner.PartitionCount, c.cfg.ChunkSize)
	if err := c.ledger.SaveRun(ctx, run); err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to save run '%s'", runID), err, false)
	}

	for _, p := range partitioner.Plan() {
		lane := model.NewLaneExecution(run, p.Index)
		if err := c.ledger.SaveLane(ctx, lane); err != nil {
			return nil, exception.NewBatchError(op, fmt.Sprintf("failed to save lane %d of run '%s'", p.Index, runID), err, false)
		}
		run.AddLane(lane)
	}
	return run, nil
}

// executeLanes runs every unfinished lane, in parallel for parallel runs.
// The first lane failure cancels the shared context; the other lanes stop at
// their next chunk boundary without losing committed work.
func (c *Coordinator) executeLanes(ctx context.Context, run *model.RunExecution) error {
	writer, err := NewScoreWriter(c.storeConn)
	if err != nil {
		return exception.NewBatchError("Coordinator.executeLanes", "failed to build score writer", err, false)
	}
	processor := NewScoreProcessor()

	laneCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errChan := make(chan error, len(run.Lanes))

	for _, exec := range run.Lanes {
		if exec.State == model.LaneStateDrained {
			logger.Infof("Run '%s': lane %d already drained, skipping.", run.ID, exec.PartitionIndex)
			continue
		}

		var reader ItemReader
		if run.PartitionCount > 1 {
			reader = NewPartitionReader(c.storeConn, c.cfg.EffectivePageSize(), run.PartitionCount, exec.PartitionIndex)
		} else {
			reader = NewActionReader(c.storeConn, c.cfg.EffectivePageSize())
		}

		lane := NewLane(run, exec, reader, processor, writer, c.txManager, c.ledger, c.recorder, run.ChunkSize, c.cfg.WriteRetry)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lane.Execute(laneCtx); err != nil {
				errChan <- err
				cancel()
			}
		}()
	}

	wg.Wait()
	close(errChan)

	var combined *multierror.Error
	for err := range errChan {
		combined = multierror.Append(combined, err)
	}
	return combined.ErrorOrNil()
}
