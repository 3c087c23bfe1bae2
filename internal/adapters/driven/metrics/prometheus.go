package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.MetricsRecorder = (*PrometheusRecorder)(nil)

// PrometheusRecorder is a Prometheus implementation of driven.MetricsRecorder.
// It owns its registry so tests and embedded servers do not share global state.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	rowsTotal   *prometheus.CounterVec
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	activeRuns  prometheus.Gauge
}

// NewPrometheusRecorder creates a recorder with Go runtime and process
// collectors registered alongside the sync metrics.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		rowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "es_sync_rows_total",
			Help: "Rows handed to the search index by source, strategy and result.",
		}, []string{"source", "strategy", "result"}), // result: indexed, failed
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "es_sync_runs_total",
			Help: "Finished sync runs by source and terminal status.",
		}, []string{"source", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "es_sync_run_duration_seconds",
			Help:    "Duration of sync runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"source"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "es_sync_active_runs",
			Help: "Sync runs currently in progress.",
		}),
	}

	registry.MustRegister(r.rowsTotal, r.runsTotal, r.runDuration, r.activeRuns)
	return r
}

// Registry returns the Prometheus registry.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordRows adds one batch's indexed and failed row counts
func (r *PrometheusRecorder) RecordRows(sourceID string, strategy domain.StrategyKind, indexed, failed int) {
	if indexed > 0 {
		r.rowsTotal.WithLabelValues(sourceID, string(strategy), "indexed").Add(float64(indexed))
	}
	if failed > 0 {
		r.rowsTotal.WithLabelValues(sourceID, string(strategy), "failed").Add(float64(failed))
	}
}

// RunStarted marks a run as active
func (r *PrometheusRecorder) RunStarted(sourceID string) {
	r.activeRuns.Inc()
}

// RunFinished records the terminal status and duration of a run
func (r *PrometheusRecorder) RunFinished(sourceID string, status domain.SyncStatus, elapsed time.Duration) {
	r.activeRuns.Dec()
	r.runsTotal.WithLabelValues(sourceID, string(status)).Inc()
	r.runDuration.WithLabelValues(sourceID).Observe(elapsed.Seconds())
}
