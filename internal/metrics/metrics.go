// Package metrics exposes the finder's Prometheus collectors on a private
// registry. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "pharmacy_finder"

// Collector holds the application metrics.
type Collector struct {
	registry *prometheus.Registry

	SearchTiers    *prometheus.CounterVec
	SearchDuration prometheus.Histogram
	Geocode        *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	Imported       *prometheus.CounterVec
}

// New registers the collectors under namespace on a fresh registry.
func New(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		SearchTiers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_tier_total",
				Help:      "Search tiers attempted, by tier and outcome",
			},
			[]string{"tier", "outcome"},
		),
		SearchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "End-to-end path search duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		Geocode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "geocode_requests_total",
				Help:      "Reverse geocoding lookups by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Imported: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imported_records_total",
				Help:      "Records written to the graph store by entity",
			},
			[]string{"entity"},
		),
	}

	registry.MustRegister(
		c.SearchTiers,
		c.SearchDuration,
		c.Geocode,
		c.HTTPRequests,
		c.HTTPDuration,
		c.Imported,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveTier counts one tier attempt.
func (c *Collector) ObserveTier(tier, outcome string) {
	if c == nil {
		return
	}
	c.SearchTiers.WithLabelValues(tier, outcome).Inc()
}

// ObserveSearch records the duration of a full search.
func (c *Collector) ObserveSearch(d time.Duration) {
	if c == nil {
		return
	}
	c.SearchDuration.Observe(d.Seconds())
}

// ObserveGeocode counts a reverse geocoding outcome (hit, miss, error, open).
func (c *Collector) ObserveGeocode(outcome string) {
	if c == nil {
		return
	}
	c.Geocode.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// AddImported counts records written for entity.
func (c *Collector) AddImported(entity string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.Imported.WithLabelValues(entity).Add(float64(n))
}
