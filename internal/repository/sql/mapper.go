package sql

import "github.com/scorelab/scorefold/internal/model"

func fromDomainRun(run *model.RunExecution) *RunExecutionEntity {
	return &RunExecutionEntity{
		ID:             run.ID,
		Mode:           string(run.Mode),
		PartitionCount: run.PartitionCount,
		ChunkSize:      run.ChunkSize,
		StartTime:      run.StartTime,
		EndTime:        run.EndTime,
		Status:         string(run.Status),
		Failures:       run.Failures,
		Version:        run.Version,
		LastUpdated:    run.LastUpdated,
	}
}

func toDomainRun(e *RunExecutionEntity) *model.RunExecution {
	return &model.RunExecution{
		ID:             e.ID,
		Mode:           model.RunMode(e.Mode),
		PartitionCount: e.PartitionCount,
		ChunkSize:      e.ChunkSize,
		StartTime:      e.StartTime,
		EndTime:        e.EndTime,
		Status:         model.RunStatus(e.Status),
		Failures:       e.Failures,
		Version:        e.Version,
		LastUpdated:    e.LastUpdated,
	}
}

func fromDomainLane(lane *model.LaneExecution) *LaneExecutionEntity {
	return &LaneExecutionEntity{
		ID:              lane.ID,
		RunID:           lane.RunID,
		PartitionIndex:  lane.PartitionIndex,
		State:           string(lane.State),
		LastCommittedID: lane.LastCommittedID,
		ReadCount:       lane.ReadCount,
		WriteCount:      lane.WriteCount,
		CommitCount:     lane.CommitCount,
		RollbackCount:   lane.RollbackCount,
		Failures:        lane.Failures,
		Version:         lane.Version,
		LastUpdated:     lane.LastUpdated,
	}
}

func toDomainLane(e *LaneExecutionEntity) *model.LaneExecution {
	return &model.LaneExecution{
		ID:              e.ID,
		RunID:           e.RunID,
		PartitionIndex:  e.PartitionIndex,
		State:           model.LaneState(e.State),
		LastCommittedID: e.LastCommittedID,
		ReadCount:       e.ReadCount,
		WriteCount:      e.WriteCount,
		CommitCount:     e.CommitCount,
		RollbackCount:   e.RollbackCount,
		Failures:        e.Failures,
		Version:         e.Version,
		LastUpdated:     e.LastUpdated,
	}
}
