package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tigerroll/bulkload/pkg/batch/core/domain/model"
	"github.com/tigerroll/bulkload/pkg/batch/core/metrics"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Run Metrics
	runStatusCounter   *prometheus.CounterVec
	runDurationSeconds *prometheus.HistogramVec

	// Batch Metrics
	batchCommitCounter   *prometheus.CounterVec
	rowsCommittedCounter *prometheus.CounterVec
	batchFailureCounter  *prometheus.CounterVec
	batchDurationSeconds *prometheus.HistogramVec
	loadersActive        prometheus.Gauge

	operationDurationSeconds *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		runStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkload_run_status_total",
			Help: "Total number of ingestion runs by state.",
		}, []string{"dataset", "state"}),
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bulkload_run_duration_seconds",
			Help:    "Duration of ingestion runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"dataset", "state"}),
		batchCommitCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkload_batch_commit_total",
			Help: "Total committed batches.",
		}, []string{"dataset"}),
		rowsCommittedCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkload_rows_committed_total",
			Help: "Total rows committed.",
		}, []string{"dataset"}),
		batchFailureCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkload_batch_failure_total",
			Help: "Total failed or rejected batches by reason.",
		}, []string{"dataset", "reason"}),
		batchDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bulkload_batch_duration_seconds",
			Help:    "Time to load and commit one batch.",
			Buckets: prometheus.DefBuckets,
		}, []string{"dataset"}),
		loadersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bulkload_loaders_active",
			Help: "Loaders currently holding a database connection.",
		}),
		operationDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bulkload_operation_duration_seconds",
			Help:    "Duration of named operations such as HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"name", "status"}),
	}

	registry.MustRegister(
		r.runStatusCounter,
		r.runDurationSeconds,
		r.batchCommitCounter,
		r.rowsCommittedCounter,
		r.batchFailureCounter,
		r.batchDurationSeconds,
		r.loadersActive,
		r.operationDurationSeconds,
	)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// RecordRunStart records the start of an IngestionRun.
func (r *PrometheusRecorder) RecordRunStart(ctx context.Context, run *model.IngestionRun) {
	r.runStatusCounter.WithLabelValues(run.Dataset, model.RunStatePreparing.String()).Inc()
	logger.Debugf("Metrics: Run '%s' started.", run.ID)
}

// RecordRunEnd records the end of an IngestionRun.
func (r *PrometheusRecorder) RecordRunEnd(ctx context.Context, run *model.IngestionRun) {
	state := run.State().String()
	duration := run.Elapsed().Seconds()
	r.runStatusCounter.WithLabelValues(run.Dataset, state).Inc()
	r.runDurationSeconds.WithLabelValues(run.Dataset, state).Observe(duration)
	logger.Debugf("Metrics: Run '%s' ended in %s. Duration: %.3fs", run.ID, state, duration)
}

func (r *PrometheusRecorder) RecordBatchCommit(ctx context.Context, dataset string, rows int, duration time.Duration) {
	r.batchCommitCounter.WithLabelValues(dataset).Inc()
	r.rowsCommittedCounter.WithLabelValues(dataset).Add(float64(rows))
	r.batchDurationSeconds.WithLabelValues(dataset).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) RecordBatchFailure(ctx context.Context, dataset string, reason string) {
	r.batchFailureCounter.WithLabelValues(dataset, reason).Inc()
}

func (r *PrometheusRecorder) RecordLoaderActive(ctx context.Context, delta int) {
	r.loadersActive.Add(float64(delta))
}

// RecordDuration records a named duration. Only the "status" tag becomes a label.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationDurationSeconds.WithLabelValues(name, tags["status"]).Observe(duration.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
