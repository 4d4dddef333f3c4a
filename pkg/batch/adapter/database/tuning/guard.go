package tuning

import (
	"context"
	"sync"
	"time"

	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

// restoreTimeout bounds RestoreSafeMode during release.
const restoreTimeout = 30 * time.Second

// Release restores safe mode and frees the engine guard. It is safe to call more than once.
type Release func() error

var (
	guardsMu sync.Mutex
	guards   = map[string]chan struct{}{}
)

func guardFor(name string) chan struct{} {
	guardsMu.Lock()
	defer guardsMu.Unlock()
	g, ok := guards[name]
	if !ok {
		g = make(chan struct{}, 1)
		guards[name] = g
	}
	return g
}

// Acquire takes the process-wide guard for the engine name, waiting while another run holds it,
// and puts the engine into bulk mode. The returned Release must be called on every exit path.
// If bulk mode cannot be entered, safe mode is restored and the guard freed before returning.
func Acquire(ctx context.Context, name string, t Tuner) (Release, error) {
	g := guardFor(name)
	select {
	case g <- struct{}{}:
	case <-ctx.Done():
		return nil, exception.NewBatchErrorf(moduleName, exception.KindStopped, "stopped while waiting for engine %q", name, ctx.Err())
	}

	var once sync.Once
	var releaseErr error
	release := func() error {
		once.Do(func() {
			defer func() { <-g }()
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
			defer cancel()
			if err := t.RestoreSafeMode(rctx); err != nil {
				logger.Errorf("Failed to restore safe mode on %q: %v", name, err)
				releaseErr = err
				return
			}
			logger.Infof("Engine %q restored to safe mode.", name)
		})
		return releaseErr
	}

	if err := t.EnterBulkMode(ctx); err != nil {
		_ = release()
		return nil, err
	}
	logger.Infof("Engine %q switched to bulk mode (%s).", name, t.Engine())
	return release, nil
}
