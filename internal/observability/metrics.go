package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	jobmetrics "github.com/odyssey-erp/odyssey-books/internal/jobs"
)

// Metrics owns one process's Prometheus registry and every collector on it.
// Both processes carry runtime stats and the recompute counters; the API adds
// request metrics and the worker adds job metrics.
type Metrics struct {
	registry *prometheus.Registry
	scrape   http.Handler
	balances *balances.Metrics
	jobs     *jobmetrics.Metrics
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry: registry,
		scrape:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		balances: balances.NewMetrics(registry),
	}
}

// NewMetrics builds the API server registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_books_http_requests_total",
		Help: "HTTP requests by route pattern and status code.",
	}, []string{"route", "code"})
	m.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_books_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	m.registry.MustRegister(m.requests, m.latency)
	return m
}

// NewWorkerMetrics builds the worker registry, which serves no API routes.
func NewWorkerMetrics() *Metrics {
	m := newMetrics()
	m.jobs = jobmetrics.NewMetrics(m.registry)
	return m
}

// Balances returns the recompute counters for the dispatcher.
func (m *Metrics) Balances() *balances.Metrics {
	if m == nil {
		return nil
	}
	return m.balances
}

// Jobs returns the job run and drift metrics. It is nil outside the worker.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Handler serves /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.scrape
}

// Middleware records one sample per request, labelled by the chi route
// pattern so ids never explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil || m.requests == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.requests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
