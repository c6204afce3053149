// Package observability holds process-wide Prometheus metrics for the
// entry store and goal tracker.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	entriesAddedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "entries",
		Name:      "added_total",
		Help:      "Number of entries stored, labeled by kind.",
	}, []string{"kind"})

	entriesDeletedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "entries",
		Name:      "deleted_total",
		Help:      "Number of entries deleted.",
	})

	entryPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fittrack",
		Subsystem: "entries",
		Name:      "last_entry_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent entry stored.",
	})

	goalEvaluationsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "goals",
		Name:      "evaluations_total",
		Help:      "Number of goal evaluations, labeled by goal type and outcome.",
	}, []string{"goal_type", "met"})

	goalProgressGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fittrack",
		Subsystem: "goals",
		Name:      "progress_ratio",
		Help:      "Current value divided by target value from the latest evaluation of each goal type.",
	}, []string{"goal_type"})
)

func init() {
	prometheus.MustRegister(entriesAddedCounter, entriesDeletedCounter, entryPersistGauge, goalEvaluationsCounter, goalProgressGauge)
}

// RecordEntryAdded counts a stored entry and moves the persistence watermark.
func RecordEntryAdded(kind string, ts time.Time) {
	entriesAddedCounter.WithLabelValues(kind).Inc()
	if ts.IsZero() {
		return
	}
	entryPersistGauge.Set(float64(ts.Unix()))
}

// RecordEntryDeleted counts a deleted entry.
func RecordEntryDeleted() {
	entriesDeletedCounter.Inc()
}

// RecordGoalEvaluated counts an evaluation and exports its progress.
func RecordGoalEvaluated(goalType string, met bool, progress float64) {
	outcome := "false"
	if met {
		outcome = "true"
	}
	goalEvaluationsCounter.WithLabelValues(goalType, outcome).Inc()
	goalProgressGauge.WithLabelValues(goalType).Set(progress)
}
