package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of sync runs by final status",
		},
		[]string{"status"},
	)

	syncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_run_duration_seconds",
			Help:    "Wall-clock duration of sync runs",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 240},
		},
	)

	stageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_stage_failures_total",
			Help: "Total number of sync stages that exhausted their retries",
		},
		[]string{"stage"},
	)

	recordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_records_total",
			Help: "Lead records processed per store and outcome",
		},
		[]string{"store", "outcome"},
	)

	retryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Retried operations by final outcome",
		},
		[]string{"operation", "outcome"},
	)

	watchdogTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchdog_ticks_total",
			Help: "Watchdog ticks by resulting overall status",
		},
		[]string{"overall"},
	)
)

// Recorder forwards domain events to the process-wide Prometheus collectors.
// The zero value is ready to use.
type Recorder struct{}

func NewRecorder() *Recorder { return &Recorder{} }

func (Recorder) RecordSyncRun(status string, seconds float64) {
	syncRuns.WithLabelValues(status).Inc()
	syncRunDuration.Observe(seconds)
}

func (Recorder) RecordStageFailure(stage string) {
	stageFailures.WithLabelValues(stage).Inc()
}

func (Recorder) RecordRecords(store, outcome string, n int) {
	if n <= 0 {
		return
	}
	recordsProcessed.WithLabelValues(store, outcome).Add(float64(n))
}

func (Recorder) RecordRetry(operation, outcome string) {
	retryAttempts.WithLabelValues(operation, outcome).Inc()
}

func (Recorder) RecordWatchdogTick(overall string) {
	watchdogTicks.WithLabelValues(overall).Inc()
}
