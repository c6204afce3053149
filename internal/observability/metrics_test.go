package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordEntryAdded(t *testing.T) {
	before := testutil.ToFloat64(entriesAddedCounter.WithLabelValues("activity"))
	ts := time.Date(2025, time.March, 7, 9, 0, 0, 0, time.UTC)

	RecordEntryAdded("activity", ts)

	require.InDelta(t, before+1, testutil.ToFloat64(entriesAddedCounter.WithLabelValues("activity")), 0.0001)
	require.InDelta(t, float64(ts.Unix()), testutil.ToFloat64(entryPersistGauge), 0.0001)

	// A zero timestamp leaves the watermark alone.
	RecordEntryAdded("activity", time.Time{})
	require.InDelta(t, float64(ts.Unix()), testutil.ToFloat64(entryPersistGauge), 0.0001)
}

func TestRecordGoalEvaluated(t *testing.T) {
	metBefore := testutil.ToFloat64(goalEvaluationsCounter.WithLabelValues("daily-calorie-limit", "true"))
	missBefore := testutil.ToFloat64(goalEvaluationsCounter.WithLabelValues("daily-calorie-limit", "false"))

	RecordGoalEvaluated("daily-calorie-limit", true, 0.6)
	RecordGoalEvaluated("daily-calorie-limit", false, 1.1)

	require.InDelta(t, metBefore+1, testutil.ToFloat64(goalEvaluationsCounter.WithLabelValues("daily-calorie-limit", "true")), 0.0001)
	require.InDelta(t, missBefore+1, testutil.ToFloat64(goalEvaluationsCounter.WithLabelValues("daily-calorie-limit", "false")), 0.0001)
	require.InDelta(t, 1.1, testutil.ToFloat64(goalProgressGauge.WithLabelValues("daily-calorie-limit")), 0.0001)
}
