// Package slo tracks service level objectives for the batch worker: whether
// a run completed successfully, how long it took, and what fraction of its
// analysis sub-tasks failed. Unlike a long-running API server, this process
// runs once and exits, so these gauges describe the run just finished rather
// than a rolling window; a scraper sitting between runs and /metrics can
// still chart them over time.
package slo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Targets for the batch run. These are documentation, not enforcement: no
// component pages on a miss, but cmd/worker logs a warning when a run falls
// short so the targets stay visible in the logs alongside the metrics.
const (
	// BatchSuccessRatioTarget is the fraction of runs expected to complete
	// without a fatal analysis error (99% = roughly 3 failed days a year).
	BatchSuccessRatioTarget = 0.99

	// BatchDurationP95Target is the target 95th-percentile wall clock time
	// for a full fetch+analyze run, in seconds.
	BatchDurationP95Target = 300.0

	// BatchDurationP99Target is the target 99th-percentile wall clock time
	// for a full fetch+analyze run, in seconds.
	BatchDurationP99Target = 600.0

	// SubtaskErrorRateTarget is the maximum acceptable fraction of analysis
	// sub-tasks (categorization, insights, summaries) failing within a run.
	SubtaskErrorRateTarget = 0.05
)

var (
	// BatchSuccess records 1 if the most recent run completed without a
	// fatal analysis error, 0 otherwise.
	BatchSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_run_success",
			Help: "1 if the most recent batch run succeeded, 0 otherwise",
		},
	)

	// BatchDurationSeconds records the most recent run's total wall clock
	// time, from ingestion through analysis.
	BatchDurationSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_run_duration_seconds",
			Help: "Wall clock duration of the most recent batch run, target p95 300s / p99 600s",
		},
	)

	// SubtaskErrorRate records the fraction of analysis sub-tasks that
	// failed in the most recent run.
	SubtaskErrorRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_subtask_error_ratio",
			Help: "Fraction of analysis sub-tasks that failed in the most recent run, target: 0.05",
		},
	)
)

// RecordBatchOutcome updates BatchSuccess and BatchDurationSeconds for a run
// that just finished.
func RecordBatchOutcome(success bool, duration float64) {
	if success {
		BatchSuccess.Set(1)
	} else {
		BatchSuccess.Set(0)
	}
	BatchDurationSeconds.Set(duration)
}

// RecordSubtaskErrorRate updates SubtaskErrorRate from a count of failed and
// total sub-tasks in the most recent run. A zero total records a 0 rate.
func RecordSubtaskErrorRate(failed, total int) {
	if total == 0 {
		SubtaskErrorRate.Set(0)
		return
	}
	SubtaskErrorRate.Set(float64(failed) / float64(total))
}
