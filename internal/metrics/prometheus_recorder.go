package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/scorelab/scorefold/internal/model"
	"github.com/scorelab/scorefold/internal/support/logger"
)

// PrometheusRecorder is a Prometheus implementation of MetricRecorder.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	runDurationSeconds *prometheus.HistogramVec
	runStatusCounter   *prometheus.CounterVec

	laneDurationSeconds *prometheus.HistogramVec
	laneStateCounter    *prometheus.CounterVec

	readCount     *prometheus.CounterVec
	writeCount    *prometheus.CounterVec
	commitCount   *prometheus.CounterVec
	rollbackCount *prometheus.CounterVec
	retryCount    *prometheus.CounterVec

	laneStartTimes laneClock
}

// NewPrometheusRecorder creates a PrometheusRecorder with its own registry.
// Go runtime and process collectors are registered alongside the pipeline
// metrics so the /metrics endpoint exposes both.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scorefold_run_duration_seconds",
			Help:    "Duration of aggregation runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode", "status"}),
		runStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scorefold_run_status_total",
			Help: "Total number of aggregation runs by status.",
		}, []string{"mode", "status"}),
		laneDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scorefold_lane_duration_seconds",
			Help:    "Duration of partition lane executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"partition", "state"}),
		laneStateCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scorefold_lane_state_total",
			Help: "Total number of lane executions by terminal state.",
		}, []string{"partition", "state"}),
		readCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scorefold_events_read_total",
			Help: "Total session action events read, by partition.",
		}, []string{"partition"}),
		writeCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scorefold_updates_written_total",
			Help: "Total score updates written, by partition.",
		}, []string{"partition"}),
		commitCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scorefold_chunk_commits_total",
			Help: "Total chunk commits, by partition.",
		}, []string{"partition"}),
		rollbackCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scorefold_chunk_rollbacks_total",
			Help: "Total chunk rollbacks, by partition.",
		}, []string{"partition"}),
		retryCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scorefold_chunk_write_retries_total",
			Help: "Total chunk write retries, by partition.",
		}, []string{"partition"}),
	}

	registry.MustRegister(r.runDurationSeconds)
	registry.MustRegister(r.runStatusCounter)
	registry.MustRegister(r.laneDurationSeconds)
	registry.MustRegister(r.laneStateCounter)
	registry.MustRegister(r.readCount)
	registry.MustRegister(r.writeCount)
	registry.MustRegister(r.commitCount)
	registry.MustRegister(r.rollbackCount)
	registry.MustRegister(r.retryCount)

	return r
}

// Registry returns the Prometheus registry backing the recorder. The HTTP
// layer serves it on /metrics.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordRunStart implements MetricRecorder.
func (r *PrometheusRecorder) RecordRunStart(ctx context.Context, run *model.RunExecution) {
	r.runStatusCounter.WithLabelValues(string(run.Mode), string(run.Status)).Inc()
	logger.Debugf("Metrics: run '%s' started.", run.ID)
}

// RecordRunEnd implements MetricRecorder.
func (r *PrometheusRecorder) RecordRunEnd(ctx context.Context, run *model.RunExecution) {
	r.runStatusCounter.WithLabelValues(string(run.Mode), string(run.Status)).Inc()
	if run.EndTime == nil {
		return
	}
	duration := run.EndTime.Sub(run.StartTime).Seconds()
	r.runDurationSeconds.WithLabelValues(string(run.Mode), string(run.Status)).Observe(duration)
	logger.Debugf("Metrics: run '%s' ended. Duration: %.3fs", run.ID, duration)
}

// RecordLaneStart implements MetricRecorder.
func (r *PrometheusRecorder) RecordLaneStart(ctx context.Context, lane *model.LaneExecution) {
	r.laneStartTimes.start(lane.ID)
}

// RecordLaneEnd implements MetricRecorder.
func (r *PrometheusRecorder) RecordLaneEnd(ctx context.Context, lane *model.LaneExecution) {
	partition := strconv.Itoa(lane.PartitionIndex)
	r.laneStateCounter.WithLabelValues(partition, string(lane.State)).Inc()
	if elapsed, ok := r.laneStartTimes.stop(lane.ID); ok {
		r.laneDurationSeconds.WithLabelValues(partition, string(lane.State)).Observe(elapsed.Seconds())
	}
}

// RecordRead implements MetricRecorder.
func (r *PrometheusRecorder) RecordRead(ctx context.Context, partitionIndex int, count int) {
	r.readCount.WithLabelValues(strconv.Itoa(partitionIndex)).Add(float64(count))
}

// RecordWrite implements MetricRecorder.
func (r *PrometheusRecorder) RecordWrite(ctx context.Context, partitionIndex int, count int) {
	r.writeCount.WithLabelValues(strconv.Itoa(partitionIndex)).Add(float64(count))
}

// RecordCommit implements MetricRecorder.
func (r *PrometheusRecorder) RecordCommit(ctx context.Context, partitionIndex int) {
	r.commitCount.WithLabelValues(strconv.Itoa(partitionIndex)).Inc()
}

// RecordRollback implements MetricRecorder.
func (r *PrometheusRecorder) RecordRollback(ctx context.Context, partitionIndex int) {
	r.rollbackCount.WithLabelValues(strconv.Itoa(partitionIndex)).Inc()
}

// RecordRetry implements MetricRecorder.
func (r *PrometheusRecorder) RecordRetry(ctx context.Context, partitionIndex int) {
	r.retryCount.WithLabelValues(strconv.Itoa(partitionIndex)).Inc()
}

var _ MetricRecorder = (*PrometheusRecorder)(nil)
