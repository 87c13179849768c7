package fault

import "github.com/prometheus/client_golang/prometheus"

var errorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "petroflow_errors_total",
		Help: "Total number of handled errors by category and severity.",
	},
	[]string{"category", "severity"},
)

func init() {
	prometheus.MustRegister(errorsTotal)

	for _, c := range Categories() {
		for _, s := range Severities() {
			errorsTotal.WithLabelValues(string(c), string(s))
		}
	}
}
