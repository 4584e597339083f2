// Package metrics collects and exposes Prometheus metrics for the site.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowweave/flowweave-web/internal/signup"
)

// Collector implements signup.Recorder and records HTTP traffic.
type Collector struct {
	submissions *prometheus.CounterVec
	oauth       *prometheus.CounterVec
	transitions *prometheus.CounterVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

var _ signup.Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowweave_signup_submissions_total",
			Help: "Password form submissions by mode and outcome.",
		}, []string{"mode", "outcome"}),
		oauth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowweave_oauth_flows_total",
			Help: "OAuth sign-in flows by provider and outcome.",
		}, []string{"provider", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowweave_modal_transitions_total",
			Help: "Sign-up modal state transitions.",
		}, []string{"from", "to"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowweave_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowweave_identity_request_duration_seconds",
			Help:    "Latency of identity provider calls in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(
		c.submissions,
		c.oauth,
		c.transitions,
		c.requests,
		c.latency,
	)

	return c
}

func (c *Collector) RecordTransition(from, to signup.State) {
	c.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (c *Collector) RecordSubmission(mode signup.Mode, outcome string) {
	c.submissions.WithLabelValues(string(mode), outcome).Inc()
}

func (c *Collector) RecordOAuth(provider, outcome string) {
	if provider == "" {
		provider = "unknown"
	}
	c.oauth.WithLabelValues(provider, outcome).Inc()
}

func (c *Collector) RecordProviderLatency(operation string, d time.Duration) {
	c.latency.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordHTTPRequest counts a served request. route should be the router
// pattern rather than the raw path to keep label cardinality bounded.
func (c *Collector) RecordHTTPRequest(method, route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
