// Package model defines the domain objects of the scorefold pipeline: the
// session action event stream, the score updates derived from it, and the
// run/lane execution ledger used for checkpointing and restart.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActionKind is the closed set of session action types. Adding a kind is a
// compile-time visible change: the translator switches exhaustively over it.
type ActionKind string

const (
	// ActionPlus adds the action amount to the user's score.
	ActionPlus ActionKind = "plus"
	// ActionMulti multiplies the user's score by the action amount.
	ActionMulti ActionKind = "multi"
)

// SessionAction is one immutable event from the append-only source table.
// Events are totally ordered by ID; for a fixed UserID the subsequence of
// that user's events in ID order is the authoritative application order.
type SessionAction struct {
	ID         int64           `gorm:"column:id;primaryKey"`
	UserID     int64           `gorm:"column:user_id"`
	ActionType ActionKind      `gorm:"column:action_type"`
	Amount     decimal.Decimal `gorm:"column:amount;type:numeric(10,2)"`
}

// TableName returns the source table name.
func (SessionAction) TableName() string {
	return "session_action"
}

// ScoreUpdate is the operation derived one-to-one from a SessionAction.
// It is applied to the score store as score := score*Multiply + Add, with a
// missing row treated as score 0.
type ScoreUpdate struct {
	UserID   int64
	Add      decimal.Decimal
	Multiply decimal.Decimal
}

// UserScore is the target aggregate row, owned by the score store. The core
// never reads it back; it is mutated only through the upsert writer.
type UserScore struct {
	UserID int64           `gorm:"column:user_id;primaryKey"`
	Score  decimal.Decimal `gorm:"column:score;type:numeric(10,2)"`
}

// TableName returns the score store table name.
func (UserScore) TableName() string {
	return "user_score"
}

// RunMode selects how the chunk execution engine schedules lanes.
type RunMode string

const (
	// RunModeSequential runs a single lane over the whole stream (P=1).
	RunModeSequential RunMode = "sequential"
	// RunModeParallel runs one lane per user-id partition.
	RunModeParallel RunMode = "parallel"
)

// Valid reports whether m is a recognized run mode.
func (m RunMode) Valid() bool {
	return m == RunModeSequential || m == RunModeParallel
}

// RunStatus represents the state of a run execution.
type RunStatus string

const (
	RunStatusStarting  RunStatus = "STARTING"
	RunStatusStarted   RunStatus = "STARTED"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// IsFinished reports whether the status is terminal.
func (s RunStatus) IsFinished() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// LaneState is the per-lane state machine of the chunk execution engine.
type LaneState string

const (
	LaneStateIdle          LaneState = "IDLE"
	LaneStateReading       LaneState = "READING"
	LaneStateTranslating   LaneState = "TRANSLATING"
	LaneStateWriting       LaneState = "WRITING"
	LaneStateCheckpointing LaneState = "CHECKPOINTING"
	LaneStateDrained       LaneState = "DRAINED"
	LaneStateFailed        LaneState = "FAILED"
)

// IsFinished reports whether the lane has stopped processing.
func (s LaneState) IsFinished() bool {
	return s == LaneStateDrained || s == LaneStateFailed
}

// FailureList collects failure messages for persistence on run and lane rows.
type FailureList []string

// Value implements driver.Valuer, serializing the list as JSON.
func (fl FailureList) Value() (driver.Value, error) {
	if fl == nil {
		return "[]", nil
	}
	data, err := json.Marshal(fl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (fl *FailureList) Scan(value interface{}) error {
	if value == nil {
		*fl = FailureList{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for FailureList: %T", value)
	}
	if len(b) == 0 {
		*fl = FailureList{}
		return nil
	}
	return json.Unmarshal(b, fl)
}

// RunExecution is the ledger entry for one run of the aggregation pipeline.
// It is created at run start, updated as lanes progress, consulted once on
// restart, and discarded from memory at terminal state.
type RunExecution struct {
	ID             string
	Mode           RunMode
	PartitionCount int
	ChunkSize      int
	StartTime      time.Time
	EndTime        *time.Time
	Status         RunStatus
	Failures       FailureList
	Version        int
	LastUpdated    time.Time

	// Lanes are attached in memory for the duration of a run; persistence
	// is per-row through the repository.
	Lanes []*LaneExecution
}

// NewRunExecution creates a STARTING run ledger entry.
func NewRunExecution(id string, mode RunMode, partitionCount, chunkSize int) *RunExecution {
	now := time.Now()
	return &RunExecution{
		ID:             id,
		Mode:           mode,
		PartitionCount: partitionCount,
		ChunkSize:      chunkSize,
		StartTime:      now,
		Status:         RunStatusStarting,
		Failures:       FailureList{},
		LastUpdated:    now,
	}
}

// MarkAsStarted transitions the run to STARTED.
func (re *RunExecution) MarkAsStarted() {
	re.Status = RunStatusStarted
	re.LastUpdated = time.Now()
}

// MarkAsCompleted transitions the run to COMPLETED and stamps the end time.
func (re *RunExecution) MarkAsCompleted() {
	now := time.Now()
	re.Status = RunStatusCompleted
	re.EndTime = &now
	re.LastUpdated = now
}

// MarkAsFailed transitions the run to FAILED, recording the error.
func (re *RunExecution) MarkAsFailed(err error) {
	now := time.Now()
	re.Status = RunStatusFailed
	re.EndTime = &now
	re.LastUpdated = now
	if err != nil {
		re.Failures = append(re.Failures, err.Error())
	}
}

// AddLane attaches a lane to the in-memory run.
func (re *RunExecution) AddLane(le *LaneExecution) {
	re.Lanes = append(re.Lanes, le)
}

// LaneExecution is the ledger entry for one partition lane of a run.
// LastCommittedID is the lane's checkpoint: the highest event id whose chunk
// has been durably applied. It advances in the same transaction as the
// chunk's score writes, so a restarted lane resumes strictly after it.
type LaneExecution struct {
	ID             string
	RunID          string
	PartitionIndex int
	State          LaneState

	LastCommittedID int64

	ReadCount     int
	WriteCount    int
	CommitCount   int
	RollbackCount int

	Failures    FailureList
	Version     int
	LastUpdated time.Time
}

// NewLaneExecution creates an IDLE lane for the given run and partition.
func NewLaneExecution(run *RunExecution, partitionIndex int) *LaneExecution {
	return &LaneExecution{
		ID:             NewID(),
		RunID:          run.ID,
		PartitionIndex: partitionIndex,
		State:          LaneStateIdle,
		Failures:       FailureList{},
		LastUpdated:    time.Now(),
	}
}

// SetState moves the lane state machine without persisting; callers persist
// through the repository at chunk boundaries.
func (le *LaneExecution) SetState(s LaneState) {
	le.State = s
	le.LastUpdated = time.Now()
}

// MarkAsDrained transitions the lane to DRAINED after end of stream.
func (le *LaneExecution) MarkAsDrained() {
	le.SetState(LaneStateDrained)
}

// MarkAsFailed transitions the lane to FAILED, recording the error.
func (le *LaneExecution) MarkAsFailed(err error) {
	le.SetState(LaneStateFailed)
	if err != nil {
		le.Failures = append(le.Failures, err.Error())
	}
}

// NewID returns a new unique identifier for ledger entities.
func NewID() string {
	return uuid.New().String()
}
