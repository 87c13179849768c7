package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	calculationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "petroflow_calculation_duration_seconds",
			Help:    "Duration of uncached calculations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
		[]string{"type"},
	)

	calculationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petroflow_calculations_total",
			Help: "Total calculations by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	workflowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petroflow_workflows_total",
			Help: "Total finished workflow runs by final status.",
		},
		[]string{"status"},
	)

	workflowsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "petroflow_workflows_active",
			Help: "Number of workflows currently running.",
		},
	)
)

func init() {
	prometheus.MustRegister(calculationDuration, calculationsTotal, workflowsTotal, workflowsActive)
}
