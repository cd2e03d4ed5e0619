// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package fanout

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics
var (
	fanoutRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "polyroute_fanout_requests_total",
			Help: "Total fan-out operations",
		},
	)
	fanoutResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyroute_fanout_provider_results_total",
			Help: "Per-provider results collected across fan-outs",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(fanoutRequests)
	prometheus.MustRegister(fanoutResults)
}
