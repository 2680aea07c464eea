package metrics

import (
	"time"

	"github.com/tootfill/tootfill/internal/observability"
)

// Backfill metrics following Prometheus conventions
var (
	RecordsTotal       = "tootfill_records_total"
	FeedbackTotal      = "tootfill_feedback_total"
	ThrottleWaitMillis = "tootfill_throttle_wait_ms"
	BucketCapacity     = "tootfill_bucket_capacity"
	RunAbortedTotal    = "tootfill_run_aborted_total"
)

// RecordOutcome counts one processed record by outcome and reason.
func RecordOutcome(outcome string, reason string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RecordsTotal,
			1,
			map[string]string{
				"outcome": outcome,
				"reason":  reason,
			},
		)
	}
}

// RecordFeedback counts a bucket adjustment driven by server headers.
func RecordFeedback(kind string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			FeedbackTotal,
			1,
			map[string]string{"kind": kind},
		)
	}
}

// RecordThrottleWait records time spent waiting for admission.
func RecordThrottleWait(host string, waited time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(
			ThrottleWaitMillis,
			waited,
			map[string]string{"host": host},
		)
	}
}

// SetBucketCapacity publishes the current capacity of a host's bucket.
func SetBucketCapacity(host string, capacity int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			BucketCapacity,
			float64(capacity),
			map[string]string{"host": host},
		)
	}
}

// RecordRunAborted counts a run stopped before its input was exhausted.
func RecordRunAborted(errorCode string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RunAbortedTotal,
			1,
			map[string]string{"error_code": errorCode},
		)
	}
}
