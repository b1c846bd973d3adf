package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every Prometheus collector the pipeline and API emit.
// ⭐ SSOT: metric names are declared only here
type Registry struct {
	reg *prometheus.Registry

	StageDuration  *prometheus.HistogramVec
	PipelineRuns   *prometheus.CounterVec
	RollingCutoffs prometheus.Counter
	RollingRows    prometheus.Gauge
	TargetedCount  *prometheus.GaugeVec
	PreventedLoss  *prometheus.GaugeVec
	FeatureDrift   *prometheus.GaugeVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	RateLimited    prometheus.Counter
}

// New creates a registry with all collectors registered
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clv_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"stage", "result"},
		),

		PipelineRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clv_pipeline_runs_total",
				Help: "Pipeline runs by final status",
			},
			[]string{"status"},
		),

		RollingCutoffs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clv_rolling_cutoffs_total",
				Help: "Cutoff partitions built by the rolling assembler",
			},
		),

		RollingRows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "clv_rolling_rows",
				Help: "Rows in the most recently assembled rolling dataset",
			},
		),

		TargetedCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "clv_targeted_customers",
				Help: "Customers selected by the latest targeting run",
			},
			[]string{"strategy"},
		),

		PreventedLoss: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "clv_expected_prevented_loss",
				Help: "Expected prevented loss of the latest targeting run",
			},
			[]string{"strategy"},
		),

		FeatureDrift: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "clv_feature_psi",
				Help: "Population stability index of monitored features, latest vs training",
			},
			[]string{"feature"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clv_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clv_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clv_http_rate_limited_total",
				Help: "Requests rejected by the API rate limiter",
			},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.StageDuration,
		r.PipelineRuns,
		r.RollingCutoffs,
		r.RollingRows,
		r.TargetedCount,
		r.PreventedLoss,
		r.FeatureDrift,
		r.HTTPRequests,
		r.HTTPDuration,
		r.RateLimited,
	)

	return r
}

// ObserveStage records one stage execution
func (r *Registry) ObserveStage(stage string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.StageDuration.WithLabelValues(stage, result).Observe(time.Since(started).Seconds())
}

// Handler exposes the registry in the Prometheus text format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry for tests and pushers
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
