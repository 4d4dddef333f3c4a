// Package partition drives an ingestion run: it reads batches on one goroutine and fans them out
// to a bounded pool of loaders.
package partition

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/tigerroll/bulkload/pkg/batch/adapter/database/tuning"
	"github.com/tigerroll/bulkload/pkg/batch/core/domain/model"
	"github.com/tigerroll/bulkload/pkg/batch/core/metrics"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

const moduleName = "coordinator"

// BatchSource yields batches in dataset order and io.EOF once exhausted.
type BatchSource interface {
	Next(ctx context.Context) (model.Batch, error)
	Close() error
}

// BatchLoader writes one batch and reports its outcome.
type BatchLoader interface {
	Load(ctx context.Context, batch model.Batch) model.BatchResult
}

// Job is everything one run needs.
type Job struct {
	Run *model.IngestionRun
	// Prepare makes the sink ready (e.g. creates the target table). Optional.
	Prepare func(ctx context.Context) error
	// Open opens the dataset and validates its header.
	Open   func(ctx context.Context) (BatchSource, error)
	Loader BatchLoader
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTuner switches the engine into bulk mode for the duration of each run.
// engine names the process-wide guard; runs sharing it never overlap.
func WithTuner(engine string, t tuning.Tuner) Option {
	return func(c *Coordinator) {
		c.engine = engine
		c.tuner = t
	}
}

// WithMetrics sets the recorder and tracer.
func WithMetrics(r metrics.MetricRecorder, t metrics.Tracer) Option {
	return func(c *Coordinator) {
		c.recorder = r
		c.tracer = t
	}
}

// Coordinator runs ingestion jobs with at most workers batches loading at once.
type Coordinator struct {
	workers  int
	engine   string
	tuner    tuning.Tuner
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
}

// NewCoordinator creates a Coordinator. Without WithTuner, runs still serialize on a default
// engine name but no settings change.
func NewCoordinator(workers int, opts ...Option) (*Coordinator, error) {
	if workers <= 0 {
		return nil, exception.NewBatchErrorf(moduleName, exception.KindConfig, "workers must be positive, got %d", workers)
	}
	c := &Coordinator{
		workers:  workers,
		engine:   "default",
		tuner:    tuning.NopTuner{},
		recorder: metrics.NewNoOpMetricRecorder(),
		tracer:   metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run executes job to a terminal state and returns the run's aggregated error (nil iff DONE).
//
// Cancelling ctx is the stop signal: it is checked between dispatches, after which no new batch
// is dispatched, in-flight batches finish, and the run ends FAILED. Safe mode is restored on
// every path once bulk mode was entered.
func (c *Coordinator) Run(ctx context.Context, job Job) error {
	run := job.Run
	c.recorder.RecordRunStart(ctx, run)
	ctx, endSpan := c.tracer.StartRunSpan(ctx, run)
	defer endSpan()
	defer c.recorder.RecordRunEnd(ctx, run)

	c.transition(run, model.RunStatePreparing)
	logger.Infof("Run %s: preparing %s (batch size %d, workers %d).", run.ID, run.Dataset, run.BatchSize, c.workers)

	if job.Prepare != nil {
		if err := job.Prepare(ctx); err != nil {
			return c.fail(run, err)
		}
	}

	release, err := tuning.Acquire(ctx, c.engine, c.tuner)
	if err != nil {
		return c.fail(run, err)
	}
	// finalize releases and records the error; this covers panics before it gets there.
	defer func() { _ = release() }()
	if d, err := c.tuner.Diagnostics(ctx); err != nil {
		logger.Warnf("Run %s: could not read engine diagnostics: %v", run.ID, err)
	} else {
		logger.Infof("Run %s: %s", run.ID, d)
	}

	src, err := job.Open(ctx)
	if err != nil {
		run.AddFailure(err)
		c.transition(run, model.RunStateFinalizing)
		return c.finalize(run, release, nil)
	}

	c.transition(run, model.RunStateRunning)
	g := c.dispatch(ctx, run, src, job.Loader)

	c.transition(run, model.RunStateDraining)
	_ = g.Wait()

	c.transition(run, model.RunStateFinalizing)
	return c.finalize(run, release, src)
}

// dispatch reads every batch and hands it to the pool, blocking while the pool is full.
func (c *Coordinator) dispatch(ctx context.Context, run *model.IngestionRun, src BatchSource, loader BatchLoader) *errgroup.Group {
	g := new(errgroup.Group)
	g.SetLimit(c.workers)
	// In-flight batches run to completion after a stop.
	loadCtx := context.WithoutCancel(ctx)

	for {
		if err := ctx.Err(); err != nil {
			run.AddFailure(exception.NewBatchError(moduleName, exception.KindStopped, "run stopped before the dataset was exhausted", err))
			logger.Warnf("Run %s: stop requested, no further batches will be dispatched.", run.ID)
			return g
		}
		batch, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return g
		}
		if err != nil {
			run.AddFailure(err)
			if exception.IsFatal(err) {
				logger.Warnf("Run %s: reading aborted, no further batches will be dispatched: %v", run.ID, err)
			} else {
				logger.Errorf("Run %s: dataset became unreadable after %d batches: %v", run.ID, len(run.Results()), err)
			}
			return g
		}
		if batch.Rejected() {
			run.RecordBatch(model.BatchResult{Index: batch.Index, FirstLine: batch.FirstLine, Rows: batch.Rows, Err: batch.Err})
			c.recorder.RecordBatchFailure(ctx, run.Dataset, string(exception.KindOf(batch.Err)))
			continue
		}
		g.Go(func() error {
			run.RecordBatch(loader.Load(loadCtx, batch))
			return nil
		})
	}
}

// finalize restores safe mode, closes the source and settles the terminal state.
func (c *Coordinator) finalize(run *model.IngestionRun, release tuning.Release, src BatchSource) error {
	if err := release(); err != nil {
		run.AddFailure(err)
	}
	if src != nil {
		if err := src.Close(); err != nil {
			logger.Warnf("Run %s: closing dataset: %v", run.ID, err)
		}
	}

	final := model.RunStateDone
	if run.Err() != nil {
		final = model.RunStateFailed
	}
	c.transition(run, final)

	s := run.Summary()
	if final == model.RunStateDone {
		logger.Infof("Run %s: DONE. %d batches, %d rows committed in %.2fs.", run.ID, s.Batches, s.RowsCommitted, s.ElapsedSeconds)
	} else {
		logger.Errorf("Run %s: FAILED. %d of %d batches committed (%d rows); failed batches %v.", run.ID, s.CommittedBatches, s.Batches, s.RowsCommitted, s.FailedBatches)
	}
	return run.Err()
}

// fail ends a run that never entered bulk mode.
func (c *Coordinator) fail(run *model.IngestionRun, err error) error {
	run.AddFailure(err)
	c.transition(run, model.RunStateFailed)
	logger.Errorf("Run %s: FAILED during preparation: %v", run.ID, err)
	return run.Err()
}

// transition panics on an invalid transition; the coordinator only makes legal ones.
func (c *Coordinator) transition(run *model.IngestionRun, next model.RunState) {
	if err := run.TransitionTo(next); err != nil {
		panic(err)
	}
}
