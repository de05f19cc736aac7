package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "user_service"

// Metrics holds the service's Prometheus collectors.
// All recording methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	JWKSFetchesTotal    *prometheus.CounterVec
	KeyLookupsTotal     *prometheus.CounterVec
	AuthRequestsTotal   *prometheus.CounterVec
	UsersProvisioned    prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry together
// with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		JWKSFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jwks_fetches_total",
				Help:      "Upstream key set fetches by result",
			},
			[]string{"result"},
		),
		KeyLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signing_key_lookups_total",
				Help:      "Signing key cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		AuthRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_requests_total",
				Help:      "Authenticated request outcomes",
			},
			[]string{"result"},
		),
		UsersProvisioned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "users_provisioned_total",
				Help:      "Local user records created on first authentication",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Histogram of HTTP request latency",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.JWKSFetchesTotal,
		m.KeyLookupsTotal,
		m.AuthRequestsTotal,
		m.UsersProvisioned,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) JWKSFetch(result string) {
	if m == nil {
		return
	}
	m.JWKSFetchesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) KeyLookup(outcome string) {
	if m == nil {
		return
	}
	m.KeyLookupsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AuthResult(result string) {
	if m == nil {
		return
	}
	m.AuthRequestsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) UserProvisioned() {
	if m == nil {
		return
	}
	m.UsersProvisioned.Inc()
}

// ObserveHTTP records one finished request. route is the matched mux pattern.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
