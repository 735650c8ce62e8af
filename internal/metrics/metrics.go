// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jacentio/squares/board"
)

// Collector implements board.Recorder on Prometheus metrics.
type Collector struct {
	claims           *prometheus.CounterVec
	claimLatency     prometheus.Histogram
	squaresRequested prometheus.Histogram
	provisions       *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
}

var _ board.Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "squares_claims_total",
			Help: "Claim attempts by outcome.",
		}, []string{"outcome"}),
		claimLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "squares_claim_duration_seconds",
			Help:    "Claim latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		squaresRequested: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "squares_claim_squares_requested",
			Help:    "Squares named per claim request.",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50, 100},
		}),
		provisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "squares_provisions_total",
			Help: "Board provisioning attempts by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "squares_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by route.",
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.claims,
		c.claimLatency,
		c.squaresRequested,
		c.provisions,
		c.rateLimited,
	)

	return c
}

// RecordClaim records one claim attempt.
func (c *Collector) RecordClaim(outcome string, squares int, d time.Duration) {
	c.claims.WithLabelValues(outcome).Inc()
	c.claimLatency.Observe(d.Seconds())
	c.squaresRequested.Observe(float64(squares))
}

// RecordProvision records one provisioning attempt.
func (c *Collector) RecordProvision(outcome string) {
	c.provisions.WithLabelValues(outcome).Inc()
}

// RecordRateLimited records a request rejected by the rate limiter.
func (c *Collector) RecordRateLimited(route string) {
	c.rateLimited.WithLabelValues(route).Inc()
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
