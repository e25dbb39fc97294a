// Package metrics exposes Prometheus instrumentation for detection runs.
package metrics

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	axisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gnsschange_axis_sampling_duration_seconds",
		Help:    "Time to sample and summarise one axis",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"axis"})

	axisOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnsschange_axis_results_total",
		Help: "Per-axis detection outcomes",
	}, []string{"axis", "outcome"})

	convergenceWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnsschange_convergence_warnings_total",
		Help: "Parameters failing the R-hat or ESS thresholds",
	}, []string{"axis", "param"})

	displacementAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnsschange_displacement_alerts_total",
		Help: "Axes whose estimated displacement reached the alert threshold",
	}, []string{"axis"})

	maxRHat = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gnsschange_axis_max_r_hat",
		Help: "Largest split R-hat of the most recent run per axis",
	}, []string{"axis"})

	runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnsschange_runs_total",
		Help: "Detection runs by result",
	}, []string{"result"})
)

// Outcome labels
const (
	OutcomeOK        = "ok"
	OutcomeNumerical = "numerical_error"
	OutcomeCanceled  = "canceled"
	OutcomeFailed    = "failed"
)

// ObserveAxis records the duration and outcome of one axis
func ObserveAxis(axis, outcome string, d time.Duration) {
	axisDuration.WithLabelValues(axis).Observe(d.Seconds())
	axisOutcomes.WithLabelValues(axis, outcome).Inc()
}

// ObserveDiagnostics records convergence statistics for one axis
func ObserveDiagnostics(axis string, rHat float64, warnedParams []string) {
	if !math.IsNaN(rHat) {
		maxRHat.WithLabelValues(axis).Set(rHat)
	}
	for _, p := range warnedParams {
		convergenceWarnings.WithLabelValues(axis, p).Inc()
	}
}

// ObserveAlert counts a displacement alert
func ObserveAlert(axis string) {
	displacementAlerts.WithLabelValues(axis).Inc()
}

// ObserveRun counts a finished run
func ObserveRun(ok bool) {
	if ok {
		runs.WithLabelValues(OutcomeOK).Inc()
		return
	}
	runs.WithLabelValues(OutcomeFailed).Inc()
}
