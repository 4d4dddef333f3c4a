package metrics

import (
	"context"
	"time"

	"github.com/tigerroll/bulkload/pkg/batch/core/domain/model"
)

// MetricRecorder is an abstract interface for recording ingestion metrics.
//
// This facilitates integration with different metrics backends (e.g., Prometheus, OpenTelemetry Metrics).
type MetricRecorder interface {
	// RecordRunStart records the start of an IngestionRun.
	RecordRunStart(ctx context.Context, run *model.IngestionRun)

	// RecordRunEnd records the terminal state and duration of an IngestionRun.
	RecordRunEnd(ctx context.Context, run *model.IngestionRun)

	// RecordBatchCommit records a committed batch.
	//
	// dataset: The dataset the batch came from.
	// rows: The number of rows committed.
	// duration: Time from dispatch to commit.
	RecordBatchCommit(ctx context.Context, dataset string, rows int, duration time.Duration)

	// RecordBatchFailure records a failed or rejected batch.
	//
	// reason: The failure kind (e.g. "parse", "transactional", "connection").
	RecordBatchFailure(ctx context.Context, dataset string, reason string)

	// RecordLoaderActive adjusts the number of loaders currently holding a connection.
	RecordLoaderActive(ctx context.Context, delta int)

	// RecordDuration records the execution time of a specific operation.
	//
	// name: The name of the duration to record (e.g., "http_request", "bulk_insert").
	// tags: Additional labels. Example: `{"route": "/items/bulk/", "status": "201"}`
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
