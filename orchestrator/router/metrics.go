// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package router

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics
var (
	routeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyroute_route_requests_total",
			Help: "Total routed requests by final provider and status",
		},
		[]string{"provider", "status"},
	)
	routeAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyroute_route_attempts_total",
			Help: "Individual provider attempts made during routing cascades",
		},
		[]string{"provider", "outcome"},
	)
	routeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polyroute_route_provider_duration_milliseconds",
			Help:    "Latency of successful provider calls in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(routeRequests)
	prometheus.MustRegister(routeAttempts)
	prometheus.MustRegister(routeDuration)
}
