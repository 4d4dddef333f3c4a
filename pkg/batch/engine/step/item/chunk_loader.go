// Package item loads one batch of records into the sink as a single transaction.
package item

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/database/tuning"
	"github.com/tigerroll/bulkload/pkg/batch/component/step/writer"
	"github.com/tigerroll/bulkload/pkg/batch/core/domain/model"
	"github.com/tigerroll/bulkload/pkg/batch/core/metrics"
	"github.com/tigerroll/bulkload/pkg/batch/core/tx"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

const moduleName = "loader"

// LoaderOption configures a ChunkLoader.
type LoaderOption func(*loaderOptions)

type loaderOptions struct {
	dataset  string
	tuner    tuning.Tuner
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
}

// WithDataset labels metrics with the dataset name.
func WithDataset(name string) LoaderOption {
	return func(o *loaderOptions) { o.dataset = name }
}

// WithTuner applies the tuner's bulk session profile to every connection the loader uses and
// restores the safe profile before the connection goes back to the pool.
func WithTuner(t tuning.Tuner) LoaderOption {
	return func(o *loaderOptions) { o.tuner = t }
}

// WithMetrics sets the recorder and tracer.
func WithMetrics(r metrics.MetricRecorder, t metrics.Tracer) LoaderOption {
	return func(o *loaderOptions) {
		o.recorder = r
		o.tracer = t
	}
}

// ChunkLoader writes a batch on one dedicated connection inside one transaction. Either every
// row of the batch is committed or none is. Failed batches are not retried.
//
// A ChunkLoader is safe for concurrent use; each Load checks out its own connection.
type ChunkLoader[T any] struct {
	conn   database.DBConnection
	writer *writer.SqlBulkWriter[T]
	mapper func(model.Record) T
	opts   loaderOptions
}

// NewChunkLoader creates a ChunkLoader writing through w, converting records with mapper.
func NewChunkLoader[T any](conn database.DBConnection, w *writer.SqlBulkWriter[T], mapper func(model.Record) T, opts ...LoaderOption) *ChunkLoader[T] {
	o := loaderOptions{
		recorder: metrics.NewNoOpMetricRecorder(),
		tracer:   metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &ChunkLoader[T]{conn: conn, writer: w, mapper: mapper, opts: o}
}

// Load writes batch and reports the outcome. A rejected batch is reported failed without
// touching the database.
func (l *ChunkLoader[T]) Load(ctx context.Context, batch model.Batch) model.BatchResult {
	start := time.Now()
	res := model.BatchResult{Index: batch.Index, FirstLine: batch.FirstLine, Rows: batch.Rows}
	if batch.Rejected() {
		res.Err = batch.Err
		return res
	}

	ctx, end := l.opts.tracer.StartBatchSpan(ctx, &batch)
	defer end()
	l.opts.recorder.RecordLoaderActive(ctx, 1)
	defer l.opts.recorder.RecordLoaderActive(ctx, -1)

	rows := make([]T, len(batch.Records))
	for i, rec := range batch.Records {
		rows[i] = l.mapper(rec)
	}

	err := l.conn.WithSession(ctx, func(s database.Session) error {
		if l.opts.tuner != nil {
			if err := tuning.ApplySession(ctx, l.opts.tuner, s, tuning.BulkMode); err != nil {
				return err
			}
			defer l.restoreSession(ctx, s, batch.Index)
		}
		return s.Transaction(ctx, func(t tx.Tx) error {
			_, err := l.writer.Write(ctx, t, rows)
			return err
		})
	})
	res.Duration = time.Since(start)

	if err != nil {
		res.Err = database.ClassifyError(moduleName, fmt.Sprintf("batch %d (line %d, %d rows) rolled back", batch.Index, batch.FirstLine, batch.Rows), err)
		l.opts.recorder.RecordBatchFailure(ctx, l.opts.dataset, string(exception.KindOf(res.Err)))
		l.opts.tracer.RecordError(ctx, moduleName, res.Err)
		logger.Errorf("ChunkLoader: %v", res.Err)
		return res
	}

	res.Committed = true
	l.opts.recorder.RecordBatchCommit(ctx, l.opts.dataset, batch.Rows, res.Duration)
	l.opts.tracer.RecordEvent(ctx, "committed", map[string]interface{}{"rows": batch.Rows})
	logger.Debugf("ChunkLoader: Batch %d committed %d rows into %s in %s.", batch.Index, batch.Rows, l.writer.GetResourcePath(), res.Duration)
	return res
}

// restoreSession puts the session back in safe mode. A failure here cannot undo the commit, so it
// is logged and the batch outcome stands.
func (l *ChunkLoader[T]) restoreSession(ctx context.Context, s database.Session, index int) {
	if err := tuning.ApplySession(context.WithoutCancel(ctx), l.opts.tuner, s, tuning.SafeMode); err != nil {
		logger.Errorf("ChunkLoader: Failed to restore safe session after batch %d: %v", index, err)
	}
}
