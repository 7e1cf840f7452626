// Package metrics exposes Prometheus instruments for the fetch pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "offerscrape"

// Metrics holds every collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	products       *prometheus.CounterVec
	urlFetches     *prometheus.CounterVec
	captchaResults *prometheus.CounterVec
	sessionsActive prometheus.Gauge
	fetchDuration  prometheus.Histogram
	cacheLookups   *prometheus.CounterVec
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		products: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "product_requests_total",
			Help:      "Product fetches by outcome code.",
		}, []string{"outcome"}),
		urlFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "url_fetches_total",
			Help:      "Per URL type fetches by outcome.",
		}, []string{"url_type", "outcome"}),
		captchaResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captcha_attempts_total",
			Help:      "Slider solve attempts by result.",
		}, []string{"result"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Live browser sessions.",
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "product_fetch_duration_seconds",
			Help:      "Wall time of one product fetch.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 180},
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.products,
		m.urlFetches,
		m.captchaResults,
		m.sessionsActive,
		m.fetchDuration,
		m.cacheLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ProductFetched records the outcome of one product fetch. outcome is
// "success" or an error code.
func (m *Metrics) ProductFetched(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.products.WithLabelValues(outcome).Inc()
	m.fetchDuration.Observe(took.Seconds())
}

// URLFetched records the outcome of one URL type within a fetch.
func (m *Metrics) URLFetched(urlType, outcome string) {
	if m == nil {
		return
	}
	m.urlFetches.WithLabelValues(urlType, outcome).Inc()
}

// CaptchaAttempt records one slider attempt: "solved", "rejected" or "fault".
func (m *Metrics) CaptchaAttempt(result string) {
	if m == nil {
		return
	}
	m.captchaResults.WithLabelValues(result).Inc()
}

// SetSessionsActive sets the live session gauge.
func (m *Metrics) SetSessionsActive(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

// CacheLookup records a cache "hit" or "miss".
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
