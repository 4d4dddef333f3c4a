package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/tigerroll/bulkload/pkg/batch/core/config"
	"github.com/tigerroll/bulkload/pkg/batch/core/metrics"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

// RecorderResult carries the selected recorder and the gatherer served on the metrics path.
// Backends other than Prometheus expose an empty registry.
type RecorderResult struct {
	fx.Out

	Recorder metrics.MetricRecorder
	Gatherer prometheus.Gatherer
}

// NewRecorder selects the MetricRecorder named by metrics.backend and, when
// metrics.async_buffer_size is positive, moves recording off the caller's goroutine.
func NewRecorder(lc fx.Lifecycle, cfg *config.Config) (RecorderResult, error) {
	res, err := newBackendRecorder(lc, cfg)
	if err != nil {
		return res, err
	}
	if size := cfg.Bulkload.Observability.Metrics.AsyncBufferSize; size > 0 {
		async := NewAsyncMetricRecorder(size, res.Recorder)
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			async.Close()
			return nil
		}})
		logger.Debugf("MetricRecorder decorated with asynchronous wrapper.")
		res.Recorder = async
	}
	return res, nil
}

func newBackendRecorder(lc fx.Lifecycle, cfg *config.Config) (RecorderResult, error) {
	obs := cfg.Bulkload.Observability
	switch obs.Metrics.Backend {
	case "prometheus", "":
		r := NewPrometheusRecorder()
		return RecorderResult{Recorder: r, Gatherer: r.GetRegistry()}, nil
	case "otel":
		mp, err := NewMeterProvider(context.Background(), obs.Metrics, obs.Tracing.ServiceName)
		if err != nil {
			return RecorderResult{}, err
		}
		lc.Append(fx.Hook{OnStop: mp.Shutdown})
		r, err := NewOpenTelemetryRecorder(mp)
		if err != nil {
			return RecorderResult{}, exception.NewBatchError(moduleName, exception.KindConfig, "failed to create OTel instruments", err)
		}
		return RecorderResult{Recorder: r, Gatherer: prometheus.NewRegistry()}, nil
	case "noop":
		return RecorderResult{Recorder: metrics.NewNoOpMetricRecorder(), Gatherer: prometheus.NewRegistry()}, nil
	default:
		return RecorderResult{}, exception.NewBatchErrorf(moduleName, exception.KindConfig, "unknown metrics backend %q", obs.Metrics.Backend)
	}
}

// NewTracer returns an OTLP-exporting tracer when tracing is enabled, and a no-op tracer otherwise.
func NewTracer(lc fx.Lifecycle, cfg *config.Config) (metrics.Tracer, error) {
	tcfg := cfg.Bulkload.Observability.Tracing
	if !tcfg.Enabled {
		return metrics.NewNoOpTracer(), nil
	}
	tp, err := NewTracerProvider(context.Background(), tcfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warnf("Tracer shutdown: %v", err)
		}
		return nil
	}})
	logger.Infof("Tracing enabled, exporting to %q over %s.", tcfg.Endpoint, tcfg.Protocol)
	return NewOpenTelemetryTracer(tp), nil
}

// Module provides the configured MetricRecorder, Prometheus gatherer and Tracer.
var Module = fx.Options(
	fx.Provide(NewRecorder, NewTracer),
)
