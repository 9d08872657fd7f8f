// Package repository defines persistence for the run/lane execution ledger.
// The ledger is what makes a crashed run restartable: each lane's
// last-committed event id is advanced in the same transaction as the chunk's
// score writes, so on restart a lane resumes strictly after it.
package repository

import (
	"context"
	"errors"

	"github.com/scorelab/scorefold/internal/database"
	"github.com/scorelab/scorefold/internal/model"
)

// ErrRunNotFound is returned when no run execution exists for an id.
var ErrRunNotFound = errors.New("run execution not found")

// ErrLaneNotFound is returned when no lane execution exists for an id.
var ErrLaneNotFound = errors.New("lane execution not found")

// ErrOptimisticLock is returned when an update races with a concurrent
// writer: the row's version no longer matches the in-memory one.
var ErrOptimisticLock = errors.New("optimistic locking failure")

// ExecutionRepository persists run and lane ledger entries.
type ExecutionRepository interface {
	SaveRun(ctx context.Context, run *model.RunExecution) error
	UpdateRun(ctx context.Context, run *model.RunExecution) error
	FindRun(ctx context.Context, id string) (*model.RunExecution, error)

	SaveLane(ctx context.Context, lane *model.LaneExecution) error
	UpdateLane(ctx context.Context, lane *model.LaneExecution) error
	// UpdateLaneInTx persists a lane row inside the caller's transaction.
	// The chunk engine uses it to pair the checkpoint advance with the
	// chunk's score upserts in one commit.
	UpdateLaneInTx(ctx context.Context, tx database.Tx, lane *model.LaneExecution) error
	// FindLanes returns the lanes of a run ordered by partition index.
	FindLanes(ctx context.Context, runID string) ([]*model.LaneExecution, error)
}
