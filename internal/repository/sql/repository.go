// Package sql implements the execution ledger repository on a relational
// database through the gorm connection layer.
package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/scorelab/scorefold/internal/database"
	"github.com/scorelab/scorefold/internal/model"
	"github.com/scorelab/scorefold/internal/repository"
	"github.com/scorelab/scorefold/internal/support/exception"
)

// ExecutionRepository is the gorm implementation of
// repository.ExecutionRepository.
type ExecutionRepository struct {
	conn database.Connection
}

// NewExecutionRepository creates a ledger repository on the given connection.
func NewExecutionRepository(conn database.Connection) *ExecutionRepository {
	return &ExecutionRepository{conn: conn}
}

var _ repository.ExecutionRepository = (*ExecutionRepository)(nil)

// EnsureSchema creates the ledger tables if they do not exist. Schema
// migration proper is out of scope; this covers local and test databases.
func (r *ExecutionRepository) EnsureSchema(ctx context.Context) error {
	return r.conn.DB().WithContext(ctx).AutoMigrate(
		&RunExecutionEntity{},
		&LaneExecutionEntity{},
	)
}

// SaveRun implements repository.ExecutionRepository.
func (r *ExecutionRepository) SaveRun(ctx context.Context, run *model.RunExecution) error {
	const op = "ExecutionRepository.SaveRun"
	entity := fromDomainRun(run)
	if err := r.conn.DB().WithContext(ctx).Create(entity).Error; err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save run (ID: %s)", run.ID), err, true)
	}
	return nil
}

// UpdateRun implements repository.ExecutionRepository with optimistic
// locking on the version column.
func (r *ExecutionRepository) UpdateRun(ctx context.Context, run *model.RunExecution) error {
	const op = "ExecutionRepository.UpdateRun"

	originalVersion := run.Version
	run.Version++
	run.LastUpdated = time.Now()
	entity := fromDomainRun(run)

	res := r.conn.DB().WithContext(ctx).
		Model(&RunExecutionEntity{}).
		Where("id = ? AND version = ?", run.ID, originalVersion).
		Select("*").
		Updates(entity)
	if res.Error != nil {
		run.Version = originalVersion
		return exception.NewBatchError(op, fmt.Sprintf("failed to update run (ID: %s)", run.ID), res.Error, true)
	}
	if res.RowsAffected == 0 {
		run.Version = originalVersion
		return fmt.Errorf("%w: run %s at version %d", repository.ErrOptimisticLock, run.ID, originalVersion)
	}
	return nil
}

// FindRun implements repository.ExecutionRepository.
func (r *ExecutionRepository) FindRun(ctx context.Context, id string) (*model.RunExecution, error) {
	const op = "ExecutionRepository.FindRun"

	var entity RunExecutionEntity
	err := r.conn.DB().WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrRunNotFound
	}
	if err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find run (ID: %s)", id), err, true)
	}
	return toDomainRun(&entity), nil
}

// SaveLane implements repository.ExecutionRepository.
func (r *ExecutionRepository) SaveLane(ctx context.Context, lane *model.LaneExecution) error {
	const op = "ExecutionRepository.SaveLane"
	entity := fromDomainLane(lane)
	if err := r.conn.DB().WithContext(ctx).Create(entity).Error; err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save lane (ID: %s)", lane.ID), err, true)
	}
	return nil
}

// UpdateLane implements repository.ExecutionRepository.
func (r *ExecutionRepository) UpdateLane(ctx context.Context, lane *model.LaneExecution) error {
	return r.updateLane(ctx, r.conn.DB(), lane)
}

// UpdateLaneInTx implements repository.ExecutionRepository. The update runs
// on the caller's transaction, so the checkpoint advance commits atomically
// with whatever else that transaction wrote.
func (r *ExecutionRepository) UpdateLaneInTx(ctx context.Context, tx database.Tx, lane *model.LaneExecution) error {
	return r.updateLane(ctx, tx.DB(), lane)
}

func (r *ExecutionRepository) updateLane(ctx context.Context, db *gorm.DB, lane *model.LaneExecution) error {
	const op = "ExecutionRepository.UpdateLane"

	originalVersion := lane.Version
	lane.Version++
	lane.LastUpdated = time.Now()
	entity := fromDomainLane(lane)

	res := db.WithContext(ctx).
		Model(&LaneExecutionEntity{}).
		Where("id = ? AND version = ?", lane.ID, originalVersion).
		Select("*").
		Updates(entity)
	if res.Error != nil {
		lane.Version = originalVersion
		return exception.NewBatchError(op, fmt.Sprintf("failed to update lane (ID: %s)", lane.ID), res.Error, true)
	}
	if res.RowsAffected == 0 {
		lane.Version = originalVersion
		return fmt.Errorf("%w: lane %s at version %d", repository.ErrOptimisticLock, lane.ID, originalVersion)
	}
	return nil
}

// FindLanes implements repository.ExecutionRepository.
func (r *ExecutionRepository) FindLanes(ctx context.Context, runID string) ([]*model.LaneExecution, error) {
	const op = "ExecutionRepository.FindLanes"

	var entities []LaneExecutionEntity
	err := r.conn.DB().WithContext(ctx).
		Where("run_id = ?", runID).
		Order("partition_index ASC").
		Find(&entities).Error
	if err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find lanes for run %s", runID), err, true)
	}

	lanes := make([]*model.LaneExecution, 0, len(entities))
	for i := range entities {
		lanes = append(lanes, toDomainLane(&entities[i]))
	}
	return lanes, nil
}
