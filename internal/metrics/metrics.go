// Package metrics exposes the service's Prometheus metrics on a private
// registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "schemabridge"

// Resolve results.
const (
	ResolveHit      = "hit"
	ResolveFallback = "fallback"
	ResolveMiss     = "miss"
)

type Metrics struct {
	registry *prometheus.Registry

	probes        *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	resolves      *prometheus.CounterVec
	documentLoads prometheus.Counter
	mappingWrites *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
}

// New registers every collector on a fresh registry, plus the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Connectivity and mapping probes by engine, kind and outcome.",
		}, []string{"engine", "kind", "outcome"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Probe latency by engine.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		}, []string{"engine"}),
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mapping_resolves_total",
			Help:      "Mapping resolutions by result (hit, fallback, miss).",
		}, []string{"result"}),
		documentLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mapping_document_loads_total",
			Help:      "Mapping documents loaded from the store (cache misses).",
		}),
		mappingWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mapping_writes_total",
			Help:      "Mapping document writes by operation.",
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.probes, m.probeDuration, m.resolves, m.documentLoads, m.mappingWrites, m.httpRequests,
	)
	return m
}

// ObserveProbe records one adapter call. kind is "liveness" or "mapping".
func (m *Metrics) ObserveProbe(engine, kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(engine, kind, outcome).Inc()
	m.probeDuration.WithLabelValues(engine).Observe(elapsed.Seconds())
}

func (m *Metrics) Resolve(result string) {
	if m == nil {
		return
	}
	m.resolves.WithLabelValues(result).Inc()
}

func (m *Metrics) DocumentLoaded() {
	if m == nil {
		return
	}
	m.documentLoads.Inc()
}

func (m *Metrics) MappingWritten(operation string) {
	if m == nil {
		return
	}
	m.mappingWrites.WithLabelValues(operation).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
