// Package statusserver exposes run state over HTTP: JSON views of the
// run records for dashboards and scripts, and Prometheus metrics fed by
// the monitor.
package statusserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/events"
	"github.com/polonav/igpctl/internal/health"
	"github.com/polonav/igpctl/internal/logging"
	"github.com/polonav/igpctl/internal/runner"
)

// Metrics holds the Prometheus instruments the monitor feeds.
type Metrics struct {
	// Running is the number of records currently marked running.
	Running prometheus.Gauge

	// Finished and Failed count observed terminal transitions.
	Finished prometheus.Counter
	Failed   prometheus.Counter

	// Restarted counts observed auto-restarts.
	Restarted prometheus.Counter

	// Duration is the wall-clock duration of completed runs.
	Duration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "igpctl_runs_running",
			Help: "Number of runs currently marked running.",
		}),
		Finished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "igpctl_runs_finished_total",
			Help: "Runs observed transitioning to finished.",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "igpctl_runs_failed_total",
			Help: "Runs observed transitioning to failed.",
		}),
		Restarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "igpctl_runs_restarted_total",
			Help: "Observed automatic run restarts.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "igpctl_run_duration_seconds",
			Help: "Wall-clock duration of completed runs.",
			// 1 minute up to roughly 34 hours; trainings run long.
			Buckets: prometheus.ExponentialBuckets(60, 2, 12),
		}),
	}
	reg.MustRegister(m.Running, m.Finished, m.Failed, m.Restarted, m.Duration)
	return m
}

// Server serves run state and metrics.
type Server struct {
	paths    *config.Paths
	checker  *health.Checker
	events   *events.Logger
	registry *prometheus.Registry
	metrics  *Metrics
}

// New creates a Server over the given layout and runner.
func New(paths *config.Paths, run runner.Runner) *Server {
	registry := prometheus.NewRegistry()
	return &Server{
		paths:    paths,
		checker:  health.NewChecker(paths, run),
		events:   events.NewLogger(paths),
		registry: registry,
		metrics:  newMetrics(registry),
	}
}

// Metrics returns the server's instruments for the monitor to feed.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// runView is the JSON shape served for a run: the record plus its
// current health summary.
type runView struct {
	*config.RunRecord
	Health health.Status `json:"health"`
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/runs", s.handleRuns)
	r.Get("/runs/{name}", s.handleRun)
	r.Get("/runs/{name}/events", s.handleRunEvents)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return r
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	records, err := config.ListRuns(s.paths.RunsDir)
	if err != nil {
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}

	views := make([]runView, 0, len(records))
	for _, rec := range records {
		views = append(views, runView{RunRecord: rec, Health: s.checker.Summary(rec)})
	}
	writeJSON(w, views)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rec, err := config.LoadRunRecord(s.paths.RunsDir, name)
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, runView{RunRecord: rec, Health: s.checker.Summary(rec)})
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !config.RunExists(s.paths.RunsDir, name) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	evts, err := s.events.Events(name)
	if err != nil {
		http.Error(w, "failed to read events", http.StatusInternalServerError)
		return
	}
	if evts == nil {
		evts = []events.Event{}
	}
	writeJSON(w, evts)
}

// ListenAndServe serves until the context is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	logging.Info("status server listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errc
		return nil
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response", "error", err)
	}
}
