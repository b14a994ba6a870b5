// Package metricsvc exposes Prometheus metrics for the background jobs and the HTTP API.
package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NickGuerrero/cti-sys/core"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Manager owns the metrics of the service and the registry they are exposed from.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	// jobs
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobProcessed   *prometheus.CounterVec
	jobLastSuccess *prometheus.GaugeVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var _ core.JobRecorder = (*Manager)(nil) // interface compliance check

// NewManager creates a metrics manager. Unless WithRegistry is given, metrics live in a private
// registry so that the default Go collectors are not exposed.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "cti",
		subsystem:        "accelerate",
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.jobRuns = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "job_runs_total",
			Help:      "Total number of background job runs by job and outcome",
		},
		[]string{"job", "outcome"},
	)
	m.jobDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "job_duration_seconds",
			Help:      "Background job run duration in seconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"job"},
	)
	m.jobProcessed = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "job_students_processed_total",
			Help:      "Total number of students processed by background jobs",
		},
		[]string{"job"},
	)
	m.jobLastSuccess = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run of each job",
		},
		[]string{"job"},
	)

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"route", "method"},
	)
}

// ObserveJob records the outcome of a job run.
func (m *Manager) ObserveJob(job string, seconds float64, processed int, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(seconds)
	if processed > 0 {
		m.jobProcessed.WithLabelValues(job).Add(float64(processed))
	}
	if err == nil {
		m.jobLastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
}

// Middleware records every request handled by the echo app.
// Errors are handed to the app's HTTPErrorHandler here so that the final status code is known.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			if err := next(ctx); err != nil {
				ctx.Error(err)
			}

			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			method := ctx.Request().Method
			status := strconv.Itoa(ctx.Response().Status)

			m.httpRequests.WithLabelValues(route, method, status).Inc()
			m.httpRequestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry the metrics are registered on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}
