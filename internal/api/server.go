package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tigerroll/bulkload/pkg/batch/core/config"
	"github.com/tigerroll/bulkload/pkg/batch/core/metrics"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

// Options are the optional collaborators of the router.
type Options struct {
	Health      HealthCheck
	Recorder    metrics.MetricRecorder
	Gatherer    prometheus.Gatherer
	MetricsPath string
	// MaxBodyBytes bounds request bodies; zero means unbounded.
	MaxBodyBytes int64
}

// NewRouter mounts every endpoint on a ServeMux and wraps it with request accounting.
func NewRouter(items *ItemHandler, movies *MovieHandler, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /items/{$}", items.List)
	mux.HandleFunc("GET /listitems/{$}", items.List)
	mux.HandleFunc("POST /items/bulk/{$}", items.BulkCreate)
	mux.HandleFunc("POST /bulkinsert/{$}", items.BulkCreate)

	mux.HandleFunc("GET /movies/{$}", movies.List)
	mux.HandleFunc("POST /movies/{$}", movies.Create)
	mux.HandleFunc("GET /movies/{id}/{$}", movies.Get)
	mux.HandleFunc("PUT /movies/{id}/{$}", movies.Update(false))
	mux.HandleFunc("PATCH /movies/{id}/{$}", movies.Update(true))
	mux.HandleFunc("DELETE /movies/{id}/{$}", movies.Delete)

	mux.HandleFunc("GET /healthz", healthHandler(opts.Health))
	if opts.Gatherer != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return instrument(mux, recorder, opts.MaxBodyBytes)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func instrument(next http.Handler, recorder metrics.MetricRecorder, maxBody int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if maxBody > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		elapsed := time.Since(start)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		recorder.RecordDuration(r.Context(), "http_request", elapsed, map[string]string{
			"route":  route,
			"status": strconv.Itoa(sw.status),
		})
		logger.Debugf("%s %s -> %d (%s)", r.Method, r.URL.Path, sw.status, elapsed)
	})
}

// Server runs the API over HTTP.
type Server struct {
	srv *http.Server
}

// NewServer creates a Server for handler from the server settings.
func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}}
}

// Start binds the listener and serves in the background. Bind errors are returned.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	logger.Infof("API listening on %s", ln.Addr())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server stopped: %v", err)
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Infof("Shutting down API server.")
	return s.srv.Shutdown(ctx)
}
