package sql

import (
	"time"

	"github.com/scorelab/scorefold/internal/model"
)

// RunExecutionEntity is the persistence schema for a run ledger entry.
type RunExecutionEntity struct {
	ID             string            `gorm:"column:id;primaryKey"`
	Mode           string            `gorm:"column:mode"`
	PartitionCount int               `gorm:"column:partition_count"`
	ChunkSize      int               `gorm:"column:chunk_size"`
	StartTime      time.Time         `gorm:"column:start_time"`
	EndTime        *time.Time        `gorm:"column:end_time"`
	Status         string            `gorm:"column:status"`
	Failures       model.FailureList `gorm:"column:failures;type:text"`
	Version        int               `gorm:"column:version"`
	LastUpdated    time.Time         `gorm:"column:last_updated"`
}

// TableName implements the gorm table naming convention.
func (RunExecutionEntity) TableName() string {
	return "score_run"
}

// LaneExecutionEntity is the persistence schema for a lane ledger entry.
// LastCommittedID is the lane's checkpoint.
type LaneExecutionEntity struct {
	ID              string            `gorm:"column:id;primaryKey"`
	RunID           string            `gorm:"column:run_id;index"`
	PartitionIndex  int               `gorm:"column:partition_index"`
	State           string            `gorm:"column:state"`
	LastCommittedID int64             `gorm:"column:last_committed_id"`
	ReadCount       int               `gorm:"column:read_count"`
	WriteCount      int               `gorm:"column:write_count"`
	CommitCount     int               `gorm:"column:commit_count"`
	RollbackCount   int               `gorm:"column:rollback_count"`
	Failures        model.FailureList `gorm:"column:failures;type:text"`
	Version         int               `gorm:"column:version"`
	LastUpdated     time.Time         `gorm:"column:last_updated"`
}

// TableName implements the gorm table naming convention.
func (LaneExecutionEntity) TableName() string {
	return "score_lane"
}
