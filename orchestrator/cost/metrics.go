// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package cost

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics
var (
	costSpentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyroute_cost_spent_usd_total",
			Help: "Cumulative LLM spend in USD",
		},
		[]string{"provider"},
	)
	budgetUtilization = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "polyroute_budget_utilization_ratio",
			Help: "Fraction of the monthly budget ceiling spent",
		},
	)
	budgetPressure = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "polyroute_budget_pressure",
			Help: "Current budget pressure level (1 for the active level, 0 otherwise)",
		},
		[]string{"level"},
	)
)

func init() {
	prometheus.MustRegister(costSpentTotal)
	prometheus.MustRegister(budgetUtilization)
	prometheus.MustRegister(budgetPressure)
}

// setPressureGauge marks exactly one pressure level as active
func setPressureGauge(active Pressure) {
	for _, level := range []Pressure{PressureNormal, PressureWarning, PressureCritical} {
		value := 0.0
		if level == active {
			value = 1.0
		}
		budgetPressure.WithLabelValues(string(level)).Set(value)
	}
}
