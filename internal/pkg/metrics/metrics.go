// Package metrics exposes Prometheus collectors for swaps, bulk plans,
// reconciliation and HTTP traffic.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"squadkeeper.io/keeper/internal/pkg/worker"
)

const namespace = "squadkeeper"

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	swapTotal      *prometheus.CounterVec
	swapDuration   *prometheus.HistogramVec
	deleteFailures prometheus.Counter
	planEntries    *prometheus.CounterVec
	reconcileFound *prometheus.GaugeVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates collectors on a dedicated registry, plus the Go and process
// collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.swapTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swaps_total",
		Help:      "Resource swaps by kind and outcome",
	}, []string{"kind", "outcome"})
	m.swapDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "swap_duration_seconds",
		Help:      "Wall time of a resource swap including external calls",
		Buckets:   histogramBuckets,
	}, []string{"kind"})
	m.deleteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resource_delete_failures_total",
		Help:      "Old resources whose delete failed and were left as stale handles",
	})
	m.planEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "plan_entries_total",
		Help:      "Executed bulk plan entries by final status",
	}, []string{"status"})
	m.reconcileFound = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reconcile_mismatches",
		Help:      "Mismatches found by the last reconciliation scan",
	}, []string{"kind"})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "route", "status"})
	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   histogramBuckets,
	}, []string{"method", "route", "status"})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.swapTotal, m.swapDuration, m.deleteFailures, m.planEntries,
		m.reconcileFound, m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterPools exports worker pool occupancy as gauges.
func (m *Metrics) RegisterPools(pools *worker.Pools) error {
	if m == nil || pools == nil {
		return nil
	}
	named := map[string]*worker.Pool{"tenant": pools.Tenant}
	for name, pool := range named {
		for _, stat := range []string{"running", "free", "cap"} {
			g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "worker",
				Name:        "pool_" + stat,
				Help:        "Worker pool " + stat + " goroutines",
				ConstLabels: prometheus.Labels{"pool": name},
			}, func() float64 { return float64(pool.Stats()[stat]) })
			if err := m.registry.Register(g); err != nil {
				var already prometheus.AlreadyRegisteredError
				if !errors.As(err, &already) {
					return err
				}
			}
		}
	}
	return nil
}

// ObserveSwap records one swap outcome.
func (m *Metrics) ObserveSwap(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.swapTotal.WithLabelValues(kind, outcome).Inc()
	m.swapDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// IncDeleteFailure counts an old resource left behind.
func (m *Metrics) IncDeleteFailure() {
	if m == nil {
		return
	}
	m.deleteFailures.Inc()
}

// ObservePlanEntry counts one executed bulk entry.
func (m *Metrics) ObservePlanEntry(status string) {
	if m == nil {
		return
	}
	m.planEntries.WithLabelValues(status).Inc()
}

// SetReconcile publishes the last scan's mismatch counts.
func (m *Metrics) SetReconcile(orphanedResources, orphanedDeployments, staleHandles int) {
	if m == nil {
		return
	}
	m.reconcileFound.WithLabelValues("orphaned_resources").Set(float64(orphanedResources))
	m.reconcileFound.WithLabelValues("orphaned_deployments").Set(float64(orphanedDeployments))
	m.reconcileFound.WithLabelValues("stale_handles").Set(float64(staleHandles))
}

// ObserveHTTP records one handled request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"method": method, "route": route, "status": strconv.Itoa(status)}
	m.httpRequests.With(labels).Inc()
	m.httpDuration.With(labels).Observe(d.Seconds())
}
