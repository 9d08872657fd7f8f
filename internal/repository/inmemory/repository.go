// Package inmemory implements the execution ledger repository in process
// memory. It backs unit tests and local experiments; transactional pairing
// with the score store is only provided by the sql implementation.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/scorelab/scorefold/internal/database"
	"github.com/scorelab/scorefold/internal/model"
	"github.com/scorelab/scorefold/internal/repository"
)

// ExecutionRepository is a map-backed repository.ExecutionRepository.
type ExecutionRepository struct {
	mu    sync.RWMutex
	runs  map[string]model.RunExecution
	lanes map[string]model.LaneExecution
}

// NewExecutionRepository creates an empty in-memory ledger.
func NewExecutionRepository() *ExecutionRepository {
	return &ExecutionRepository{
		runs:  make(map[string]model.RunExecution),
		lanes: make(map[string]model.LaneExecution),
	}
}

var _ repository.ExecutionRepository = (*ExecutionRepository)(nil)

// SaveRun implements repository.ExecutionRepository.
func (r *ExecutionRepository) SaveRun(ctx context.Context, run *model.RunExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	r.runs[run.ID] = snapshotRun(run)
	return nil
}

// UpdateRun implements repository.ExecutionRepository.
func (r *ExecutionRepository) UpdateRun(ctx context.Context, run *model.RunExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.runs[run.ID]
	if !ok {
		return repository.ErrRunNotFound
	}
	if stored.Version != run.Version {
		return fmt.Errorf("%w: run %s at version %d", repository.ErrOptimisticLock, run.ID, run.Version)
	}
	run.Version++
	r.runs[run.ID] = snapshotRun(run)
	return nil
}

// FindRun implements repository.ExecutionRepository.
func (r *ExecutionRepository) FindRun(ctx context.Context, id string) (*model.RunExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.runs[id]
	if !ok {
		return nil, repository.ErrRunNotFound
	}
	out := stored
	return &out, nil
}

// SaveLane implements repository.ExecutionRepository.
func (r *ExecutionRepository) SaveLane(ctx context.Context, lane *model.LaneExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.lanes[lane.ID]; exists {
		return fmt.Errorf("lane %s already exists", lane.ID)
	}
	r.lanes[lane.ID] = snapshotLane(lane)
	return nil
}

// UpdateLane implements repository.ExecutionRepository.
func (r *ExecutionRepository) UpdateLane(ctx context.Context, lane *model.LaneExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.lanes[lane.ID]
	if !ok {
		return repository.ErrLaneNotFound
	}
	if stored.Version != lane.Version {
		return fmt.Errorf("%w: lane %s at version %d", repository.ErrOptimisticLock, lane.ID, lane.Version)
	}
	lane.Version++
	r.lanes[lane.ID] = snapshotLane(lane)
	return nil
}

// UpdateLaneInTx implements repository.ExecutionRepository. The in-memory
// ledger has no transactions; the update is applied directly.
func (r *ExecutionRepository) UpdateLaneInTx(ctx context.Context, _ database.Tx, lane *model.LaneExecution) error {
	return r.UpdateLane(ctx, lane)
}

// FindLanes implements repository.ExecutionRepository.
func (r *ExecutionRepository) FindLanes(ctx context.Context, runID string) ([]*model.LaneExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var lanes []*model.LaneExecution
	for id := range r.lanes {
		stored := r.lanes[id]
		if stored.RunID == runID {
			out := stored
			lanes = append(lanes, &out)
		}
	}
	sort.Slice(lanes, func(i, j int) bool {
		return lanes[i].PartitionIndex < lanes[j].PartitionIndex
	})
	return lanes, nil
}

func snapshotRun(run *model.RunExecution) model.RunExecution {
	out := *run
	out.Lanes = nil
	out.Failures = append(model.FailureList{}, run.Failures...)
	return out
}

func snapshotLane(lane *model.LaneExecution) model.LaneExecution {
	out := *lane
	out.Failures = append(model.FailureList{}, lane.Failures...)
	return out
}
