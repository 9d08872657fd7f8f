// Package metrics defines the metric recording abstraction for the scorefold
// pipeline and its Prometheus implementation. The engine records through the
// MetricRecorder interface; tests and metric-less deployments use the no-op.
package metrics

import (
	"context"

	"github.com/scorelab/scorefold/internal/model"
)

// MetricRecorder records pipeline execution metrics.
type MetricRecorder interface {
	RecordRunStart(ctx context.Context, run *model.RunExecution)
	RecordRunEnd(ctx context.Context, run *model.RunExecution)

	RecordLaneStart(ctx context.Context, lane *model.LaneExecution)
	RecordLaneEnd(ctx context.Context, lane *model.LaneExecution)

	RecordRead(ctx context.Context, partitionIndex int, count int)
	RecordWrite(ctx context.Context, partitionIndex int, count int)
	RecordCommit(ctx context.Context, partitionIndex int)
	RecordRollback(ctx context.Context, partitionIndex int)
	RecordRetry(ctx context.Context, partitionIndex int)
}

// NoOpMetricRecorder is a MetricRecorder that records nothing. It is the
// fallback when no real recorder is wired and the default in tests.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

// RecordRunStart does nothing.
func (r *NoOpMetricRecorder) RecordRunStart(ctx context.Context, run *model.RunExecution) {}

// RecordRunEnd does nothing.
func (r *NoOpMetricRecorder) RecordRunEnd(ctx context.Context, run *model.RunExecution) {}

// RecordLaneStart does nothing.
func (r *NoOpMetricRecorder) RecordLaneStart(ctx context.Context, lane *model.LaneExecution) {}

// RecordLaneEnd does nothing.
func (r *NoOpMetricRecorder) RecordLaneEnd(ctx context.Context, lane *model.LaneExecution) {}

// RecordRead does nothing.
func (r *NoOpMetricRecorder) RecordRead(ctx context.Context, partitionIndex int, count int) {}

// RecordWrite does nothing.
func (r *NoOpMetricRecorder) RecordWrite(ctx context.Context, partitionIndex int, count int) {}

// RecordCommit does nothing.
func (r *NoOpMetricRecorder) RecordCommit(ctx context.Context, partitionIndex int) {}

// RecordRollback does nothing.
func (r *NoOpMetricRecorder) RecordRollback(ctx context.Context, partitionIndex int) {}

// RecordRetry does nothing.
func (r *NoOpMetricRecorder) RecordRetry(ctx context.Context, partitionIndex int) {}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)
