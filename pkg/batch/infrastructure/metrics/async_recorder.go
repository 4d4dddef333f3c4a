package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/tigerroll/bulkload/pkg/batch/core/domain/model"
	"github.com/tigerroll/bulkload/pkg/batch/core/metrics"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

// DefaultAsyncBufferSize is used when a non-positive buffer size is requested.
const DefaultAsyncBufferSize = 100

// MetricEvent is a metric call queued for the worker goroutine.
type MetricEvent struct {
	Type     string
	Run      *model.IngestionRun
	Dataset  string
	Name     string
	Rows     int
	Delta    int
	Reason   string
	Duration time.Duration
	Tags     map[string]string
}

// Metric event types.
const (
	MetricEventTypeRunStart       = "run_start"
	MetricEventTypeRunEnd         = "run_end"
	MetricEventTypeBatchCommit    = "batch_commit"
	MetricEventTypeBatchFailure   = "batch_failure"
	MetricEventTypeLoaderActive   = "loader_active"
	MetricEventTypeRecordDuration = "record_duration"
)

// AsyncMetricRecorder hands metric calls to a single worker goroutine so loaders never block on
// a metrics backend. Events that do not fit in the queue are dropped with a warning.
type AsyncMetricRecorder struct {
	eventQueue   chan MetricEvent
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	syncRecorder metrics.MetricRecorder
}

// NewAsyncMetricRecorder starts a worker recording through syncRec.
func NewAsyncMetricRecorder(bufferSize int, syncRec metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = DefaultAsyncBufferSize
	}
	r := &AsyncMetricRecorder{
		eventQueue:   make(chan MetricEvent, bufferSize),
		stopCh:       make(chan struct{}),
		syncRecorder: syncRec,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncMetricRecorder: Worker goroutine started (buffer size: %d).", bufferSize)
	return r
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.eventQueue:
			r.processEvent(event)
		case <-r.stopCh:
			remaining := 0
			for {
				select {
				case event := <-r.eventQueue:
					r.processEvent(event)
					remaining++
				default:
					logger.Debugf("AsyncMetricRecorder: Worker goroutine stopped. Processed %d remaining events.", remaining)
					return
				}
			}
		}
	}
}

func (r *AsyncMetricRecorder) processEvent(event MetricEvent) {
	// The caller's context may be gone by now.
	ctx := context.Background()
	switch event.Type {
	case MetricEventTypeRunStart:
		r.syncRecorder.RecordRunStart(ctx, event.Run)
	case MetricEventTypeRunEnd:
		r.syncRecorder.RecordRunEnd(ctx, event.Run)
	case MetricEventTypeBatchCommit:
		r.syncRecorder.RecordBatchCommit(ctx, event.Dataset, event.Rows, event.Duration)
	case MetricEventTypeBatchFailure:
		r.syncRecorder.RecordBatchFailure(ctx, event.Dataset, event.Reason)
	case MetricEventTypeLoaderActive:
		r.syncRecorder.RecordLoaderActive(ctx, event.Delta)
	case MetricEventTypeRecordDuration:
		r.syncRecorder.RecordDuration(ctx, event.Name, event.Duration, event.Tags)
	default:
		logger.Warnf("AsyncMetricRecorder: Unknown metric event type: %s", event.Type)
	}
}

// Close stops the worker after it has recorded every queued event. It is safe to call twice.
func (r *AsyncMetricRecorder) Close() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()
		logger.Debugf("AsyncMetricRecorder: Shutdown complete.")
	})
}

func (r *AsyncMetricRecorder) sendEvent(event MetricEvent) {
	select {
	case r.eventQueue <- event:
	default:
		logger.Warnf("AsyncMetricRecorder: Event queue is full (type: %s). Event discarded.", event.Type)
	}
}

func (r *AsyncMetricRecorder) RecordRunStart(ctx context.Context, run *model.IngestionRun) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRunStart, Run: run})
}

func (r *AsyncMetricRecorder) RecordRunEnd(ctx context.Context, run *model.IngestionRun) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRunEnd, Run: run})
}

func (r *AsyncMetricRecorder) RecordBatchCommit(ctx context.Context, dataset string, rows int, duration time.Duration) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeBatchCommit, Dataset: dataset, Rows: rows, Duration: duration})
}

func (r *AsyncMetricRecorder) RecordBatchFailure(ctx context.Context, dataset string, reason string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeBatchFailure, Dataset: dataset, Reason: reason})
}

func (r *AsyncMetricRecorder) RecordLoaderActive(ctx context.Context, delta int) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeLoaderActive, Delta: delta})
}

func (r *AsyncMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRecordDuration, Name: name, Duration: duration, Tags: tags})
}

var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)
