package synthesis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "licenseiq",
		Subsystem: "synthesis",
		Name:      "runs_total",
		Help:      "Synthesis runs by generation mode.",
	}, []string{"mode"})

	rulesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "licenseiq",
		Subsystem: "synthesis",
		Name:      "rules_persisted_total",
		Help:      "Persisted rules by generation mode and validation status.",
	}, []string{"mode", "status"})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "licenseiq",
		Subsystem: "synthesis",
		Name:      "unit_failures_total",
		Help:      "Units of work that produced no persisted rule, by stage.",
	}, []string{"stage"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "licenseiq",
		Subsystem: "synthesis",
		Name:      "run_duration_seconds",
		Help:      "Wall time of synthesis runs.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"mode"})
)
