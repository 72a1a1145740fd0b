// Package metrics exposes Prometheus metrics for the HTTP surface and for activity
// syncs and sweeps.
package metrics

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/runclub/clubsync/internal/models"
)

const namespace = "clubsync"

// Collector owns a private registry so tests and multiple instances never collide.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	syncRuns       *prometheus.CounterVec
	syncDuration   *prometheus.HistogramVec
	upserted       prometheus.Counter
	rejected       prometheus.Counter
	pagesFetched   prometheus.Counter
	sweepCompleted prometheus.Gauge
	sweepFailed    prometheus.Gauge
	sweepDuration  prometheus.Histogram
}

// New constructs a collector with HTTP and sync metrics registered.
func New() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "User sync runs by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Wall time of user sync runs.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		upserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "activities_upserted_total",
			Help:      "Activities written to the store.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "activities_rejected_total",
			Help:      "Provider records outside the tracked disciplines.",
		}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pages_fetched_total",
			Help:      "Activity pages fetched from the provider.",
		}),
		sweepCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "last_completed_timestamp_seconds",
			Help:      "Unix time the last sweep finished.",
		}),
		sweepFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "failed_users",
			Help:      "Users whose sync failed in the last sweep.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Wall time of sweeps across all users.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	for _, collector := range []prometheus.Collector{
		c.requestDuration,
		c.requestTotal,
		c.syncRuns,
		c.syncDuration,
		c.upserted,
		c.rejected,
		c.pagesFetched,
		c.sweepCompleted,
		c.sweepFailed,
		c.sweepDuration,
	} {
		if err := c.registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// WatchDB exports the pool statistics of db (open, in use, idle, waits) under the
// given database name.
func (c *Collector) WatchDB(db *sql.DB, name string) error {
	return c.registry.Register(collectors.NewDBStatsCollector(db, name))
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics. When next is
// a ServeMux the matched route pattern is used as the path label.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.Pattern
		if path == "" {
			path = r.URL.Path
		}

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// Report records one user sync run.
func (c *Collector) Report(_ context.Context, result models.SyncResult) error {
	c.syncRuns.WithLabelValues(string(result.Trigger), string(result.Outcome)).Inc()
	c.syncDuration.WithLabelValues(string(result.Outcome)).Observe(result.Duration().Seconds())
	c.upserted.Add(float64(result.Upserted))
	c.rejected.Add(float64(result.Rejected))
	c.pagesFetched.Add(float64(result.PagesFetched))
	return nil
}

// ObserveSweep records the end of a sweep.
func (c *Collector) ObserveSweep(report models.SweepReport) {
	c.sweepCompleted.Set(float64(report.FinishedAt.Unix()))
	c.sweepFailed.Set(float64(report.Failures))
	c.sweepDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
