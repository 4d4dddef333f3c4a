package model

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
)

// RunState is the lifecycle state of an IngestionRun.
type RunState string

const (
	RunStateIdle       RunState = "IDLE"
	RunStatePreparing  RunState = "PREPARING"
	RunStateRunning    RunState = "RUNNING"
	RunStateDraining   RunState = "DRAINING"
	RunStateFinalizing RunState = "FINALIZING"
	RunStateDone       RunState = "DONE"
	RunStateFailed     RunState = "FAILED"
)

// String returns the string representation of the RunState.
func (s RunState) String() string {
	return string(s)
}

// IsFinished reports whether s is terminal.
func (s RunState) IsFinished() bool {
	return s == RunStateDone || s == RunStateFailed
}

// isValidRunTransition encodes the run lifecycle:
//
//	IDLE -> PREPARING -> RUNNING -> DRAINING -> FINALIZING -> DONE | FAILED
//
// PREPARING may also go straight to FINALIZING (setup failed after tuning was applied)
// or FAILED (setup failed before anything needed undoing).
func isValidRunTransition(current, next RunState) bool {
	switch current {
	case RunStateIdle:
		return next == RunStatePreparing
	case RunStatePreparing:
		return next == RunStateRunning || next == RunStateFinalizing || next == RunStateFailed
	case RunStateRunning:
		return next == RunStateDraining
	case RunStateDraining:
		return next == RunStateFinalizing
	case RunStateFinalizing:
		return next == RunStateDone || next == RunStateFailed
	default:
		return false
	}
}

// BatchResult is the outcome of one batch.
type BatchResult struct {
	Index     int
	FirstLine int64
	Rows      int
	Committed bool
	Err       error
	Duration  time.Duration
}

// FailureList holds failure messages in the order they were recorded.
type FailureList []string

// IngestionRun tracks one execution of the pipeline. Batch results may be recorded from
// several goroutines; everything else is driven by the coordinating goroutine.
type IngestionRun struct {
	ID        string
	Dataset   string
	BatchSize int
	Workers   int
	StartTime time.Time
	EndTime   *time.Time

	mu       sync.Mutex
	state    RunState
	results  []BatchResult
	failures FailureList
	errs     *multierror.Error
}

// NewID returns a new random identifier.
func NewID() string {
	return uuid.NewString()
}

// NewIngestionRun creates an IDLE run.
func NewIngestionRun(dataset string, batchSize, workers int) *IngestionRun {
	return &IngestionRun{
		ID:        NewID(),
		Dataset:   dataset,
		BatchSize: batchSize,
		Workers:   workers,
		state:     RunStateIdle,
	}
}

// State returns the current state.
func (r *IngestionRun) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// TransitionTo moves the run to next, rejecting transitions the lifecycle does not allow.
// Entering PREPARING stamps StartTime; entering a terminal state stamps EndTime.
func (r *IngestionRun) TransitionTo(next RunState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !isValidRunTransition(r.state, next) {
		return fmt.Errorf("IngestionRun (ID: %s): invalid state transition: %s -> %s", r.ID, r.state, next)
	}
	r.state = next
	now := time.Now()
	if next == RunStatePreparing {
		r.StartTime = now
	}
	if next.IsFinished() {
		r.EndTime = &now
	}
	return nil
}

// RecordBatch stores the outcome of a batch.
func (r *IngestionRun) RecordBatch(res BatchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	if res.Err != nil {
		r.addFailureLocked(fmt.Errorf("batch %d (line %d): %w", res.Index, res.FirstLine, res.Err))
	}
}

// AddFailure records a run-level failure that is not tied to a single batch.
func (r *IngestionRun) AddFailure(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addFailureLocked(err)
}

func (r *IngestionRun) addFailureLocked(err error) {
	r.errs = multierror.Append(r.errs, err)
	r.failures = append(r.failures, exception.ExtractErrorMessage(err))
}

// Err aggregates every recorded failure, or returns nil when there were none.
func (r *IngestionRun) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs.ErrorOrNil()
}

// Failures returns the recorded failure messages.
func (r *IngestionRun) Failures() FailureList {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(FailureList(nil), r.failures...)
}

// Results returns every batch outcome ordered by batch index.
func (r *IngestionRun) Results() []BatchResult {
	r.mu.Lock()
	out := append([]BatchResult(nil), r.results...)
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// FailedBatches returns the outcomes of batches that did not commit, ordered by index.
func (r *IngestionRun) FailedBatches() []BatchResult {
	var failed []BatchResult
	for _, res := range r.Results() {
		if !res.Committed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Elapsed returns the wall time of the run so far, or its total once finished.
func (r *IngestionRun) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StartTime.IsZero() {
		return 0
	}
	if r.EndTime != nil {
		return r.EndTime.Sub(r.StartTime)
	}
	return time.Since(r.StartTime)
}

// RunSummary is a point-in-time view of a run suitable for logging or JSON output.
type RunSummary struct {
	ID               string      `json:"id"`
	Dataset          string      `json:"dataset"`
	State            RunState    `json:"state"`
	BatchSize        int         `json:"batch_size"`
	Workers          int         `json:"workers"`
	Batches          int         `json:"batches"`
	CommittedBatches int         `json:"committed_batches"`
	FailedBatches    []int       `json:"failed_batches,omitempty"`
	RowsRead         int64       `json:"rows_read"`
	RowsCommitted    int64       `json:"rows_committed"`
	ElapsedSeconds   float64     `json:"elapsed_seconds"`
	Failures         FailureList `json:"failures,omitempty"`
}

// Summary builds a RunSummary.
func (r *IngestionRun) Summary() RunSummary {
	s := RunSummary{
		ID:             r.ID,
		Dataset:        r.Dataset,
		State:          r.State(),
		BatchSize:      r.BatchSize,
		Workers:        r.Workers,
		ElapsedSeconds: r.Elapsed().Seconds(),
		Failures:       r.Failures(),
	}
	for _, res := range r.Results() {
		s.Batches++
		s.RowsRead += int64(res.Rows)
		if res.Committed {
			s.CommittedBatches++
			s.RowsCommitted += int64(res.Rows)
		} else {
			s.FailedBatches = append(s.FailedBatches, res.Index)
		}
	}
	return s
}
