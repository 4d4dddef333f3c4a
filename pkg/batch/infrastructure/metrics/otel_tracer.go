package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tigerroll/bulkload/pkg/batch/core/domain/model"
	"github.com/tigerroll/bulkload/pkg/batch/core/metrics"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
)

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a tracer on tp.
func NewOpenTelemetryTracer(tp trace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: tp.Tracer(instrumentationName)}
}

// StartRunSpan starts a new span for an IngestionRun. The span's status reflects the run's
// terminal state when the returned function is called.
func (t *OpenTelemetryTracer) StartRunSpan(ctx context.Context, run *model.IngestionRun) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "ingest "+run.Dataset, trace.WithAttributes(
		attribute.String("bulkload.run_id", run.ID),
		attribute.String("bulkload.dataset", run.Dataset),
		attribute.Int("bulkload.batch_size", run.BatchSize),
		attribute.Int("bulkload.workers", run.Workers),
	))
	return ctx, func() {
		state := run.State()
		span.SetAttributes(attribute.String("bulkload.state", state.String()))
		if state == model.RunStateFailed {
			span.SetStatus(codes.Error, fmt.Sprintf("%d failures", len(run.Failures())))
		}
		span.End()
	}
}

// StartBatchSpan starts a new span for one batch.
func (t *OpenTelemetryTracer) StartBatchSpan(ctx context.Context, batch *model.Batch) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("batch %d", batch.Index), trace.WithAttributes(
		attribute.Int("bulkload.batch_index", batch.Index),
		attribute.Int64("bulkload.first_line", batch.FirstLine),
		attribute.Int("bulkload.rows", batch.Rows),
	))
	return ctx, func() { span.End() }
}

// RecordError records an error in the current span.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(
		attribute.String("bulkload.module", module),
		attribute.String("bulkload.error_kind", string(exception.KindOf(err))),
	))
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent records an event in the current span.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)
