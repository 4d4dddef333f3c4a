package metrics

import (
	"context"

	"github.com/tigerroll/bulkload/pkg/batch/core/domain/model"
)

// Tracer is an abstract interface for distributed tracing of runs and batches.
type Tracer interface {
	// StartRunSpan starts a span for an IngestionRun.
	//
	// Returns: A context with the new span set, and a function to end the span.
	StartRunSpan(ctx context.Context, run *model.IngestionRun) (context.Context, func())

	// StartBatchSpan starts a span for one batch, as a child of the span in ctx.
	StartBatchSpan(ctx context.Context, batch *model.Batch) (context.Context, func())

	// RecordError records an error in the current span.
	//
	// module: The component where the error occurred (e.g., "reader", "loader").
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records an event in the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
