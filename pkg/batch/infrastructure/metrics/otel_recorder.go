package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/tigerroll/bulkload/pkg/batch/core/domain/model"
	"github.com/tigerroll/bulkload/pkg/batch/core/metrics"
)

const instrumentationName = "github.com/tigerroll/bulkload"

// OpenTelemetryRecorder is an OpenTelemetry metrics implementation of metrics.MetricRecorder.
type OpenTelemetryRecorder struct {
	runs          otelmetric.Int64Counter
	runDuration   otelmetric.Float64Histogram
	batchCommits  otelmetric.Int64Counter
	rowsCommitted otelmetric.Int64Counter
	batchFailures otelmetric.Int64Counter
	batchDuration otelmetric.Float64Histogram
	loadersActive otelmetric.Int64UpDownCounter
	operations    otelmetric.Float64Histogram
}

// NewOpenTelemetryRecorder creates the instruments on a meter from mp.
func NewOpenTelemetryRecorder(mp otelmetric.MeterProvider) (*OpenTelemetryRecorder, error) {
	m := mp.Meter(instrumentationName)
	r := &OpenTelemetryRecorder{}
	var err error
	if r.runs, err = m.Int64Counter("bulkload.run.count", otelmetric.WithDescription("Ingestion runs by state.")); err != nil {
		return nil, err
	}
	if r.runDuration, err = m.Float64Histogram("bulkload.run.duration", otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.batchCommits, err = m.Int64Counter("bulkload.batch.commits", otelmetric.WithDescription("Committed batches.")); err != nil {
		return nil, err
	}
	if r.rowsCommitted, err = m.Int64Counter("bulkload.rows.committed", otelmetric.WithDescription("Committed rows.")); err != nil {
		return nil, err
	}
	if r.batchFailures, err = m.Int64Counter("bulkload.batch.failures", otelmetric.WithDescription("Failed or rejected batches.")); err != nil {
		return nil, err
	}
	if r.batchDuration, err = m.Float64Histogram("bulkload.batch.duration", otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.loadersActive, err = m.Int64UpDownCounter("bulkload.loaders.active"); err != nil {
		return nil, err
	}
	if r.operations, err = m.Float64Histogram("bulkload.operation.duration", otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OpenTelemetryRecorder) RecordRunStart(ctx context.Context, run *model.IngestionRun) {
	r.runs.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("dataset", run.Dataset),
		attribute.String("state", model.RunStatePreparing.String()),
	))
}

func (r *OpenTelemetryRecorder) RecordRunEnd(ctx context.Context, run *model.IngestionRun) {
	attrs := otelmetric.WithAttributes(
		attribute.String("dataset", run.Dataset),
		attribute.String("state", run.State().String()),
	)
	r.runs.Add(ctx, 1, attrs)
	r.runDuration.Record(ctx, run.Elapsed().Seconds(), attrs)
}

func (r *OpenTelemetryRecorder) RecordBatchCommit(ctx context.Context, dataset string, rows int, duration time.Duration) {
	attrs := otelmetric.WithAttributes(attribute.String("dataset", dataset))
	r.batchCommits.Add(ctx, 1, attrs)
	r.rowsCommitted.Add(ctx, int64(rows), attrs)
	r.batchDuration.Record(ctx, duration.Seconds(), attrs)
}

func (r *OpenTelemetryRecorder) RecordBatchFailure(ctx context.Context, dataset string, reason string) {
	r.batchFailures.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("dataset", dataset),
		attribute.String("reason", reason),
	))
}

func (r *OpenTelemetryRecorder) RecordLoaderActive(ctx context.Context, delta int) {
	r.loadersActive.Add(ctx, int64(delta))
}

func (r *OpenTelemetryRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("name", name))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operations.Record(ctx, duration.Seconds(), otelmetric.WithAttributes(attrs...))
}

var _ metrics.MetricRecorder = (*OpenTelemetryRecorder)(nil)
