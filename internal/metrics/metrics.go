// Package metrics holds the Prometheus collectors the service exports at /metrics.
//
// Every recording method is safe on a nil *Metrics, so packages can take an
// optional *Metrics without guarding each call.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// OTPOutcomesTotal counts sign-in operations by operation and outcome
	// (success, failure, rate_limited, rejected).
	OTPOutcomesTotal *prometheus.CounterVec

	// AdmissionsTotal counts gate decisions by route class and decision.
	AdmissionsTotal *prometheus.CounterVec

	CatalogCacheTotal *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snuffspec_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snuffspec_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		OTPOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snuffspec_otp_outcomes_total",
				Help: "One-time-code sign-in operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		AdmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snuffspec_route_admissions_total",
				Help: "Route admission decisions",
			},
			[]string{"class", "decision"},
		),
		CatalogCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snuffspec_catalog_cache_total",
				Help: "Catalog cache lookups by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OTPOutcomesTotal,
		m.AdmissionsTotal,
		m.CatalogCacheTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished request. route is the matched route
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ObserveOTP(operation, outcome string) {
	if m == nil {
		return
	}
	m.OTPOutcomesTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveAdmission(class, decision string) {
	if m == nil {
		return
	}
	m.AdmissionsTotal.WithLabelValues(class, decision).Inc()
}

func (m *Metrics) CatalogCacheHit() {
	if m == nil {
		return
	}
	m.CatalogCacheTotal.WithLabelValues("hit").Inc()
}

func (m *Metrics) CatalogCacheMiss() {
	if m == nil {
		return
	}
	m.CatalogCacheTotal.WithLabelValues("miss").Inc()
}
