// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Vote rejection reasons
const (
	ReasonInvalid   = "invalid"
	ReasonClosed    = "closed"
	ReasonFull      = "full"
	ReasonDuplicate = "duplicate"
)

// Metrics holds the application's collectors on a private registry, so
// several instances (one per test server) can coexist.
type Metrics struct {
	registry *prometheus.Registry

	Requests      *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	VotesAccepted *prometheus.CounterVec
	VotesRejected *prometheus.CounterVec
	PollsCreated  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by method, route pattern and status",
			},
			[]string{"method", "route", "status"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency by method and route pattern",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		VotesAccepted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "votes_submitted_total",
				Help: "Accepted vote submissions by poll type",
			},
			[]string{"type"},
		),
		VotesRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "votes_rejected_total",
				Help: "Rejected vote submissions by reason",
			},
			[]string{"reason"},
		),
		PollsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polls_created_total",
				Help: "Created polls by type",
			},
			[]string{"type"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
