package metrics

import (
	"strconv"
	"time"

	"github.com/ratewatch/ratewatch/internal/observability"
)

// Rate limit pipeline metrics following Prometheus conventions
const (
	DetectionsTotal           = "ratewatch_detections_total"
	IngestTotal               = "ratewatch_ingest_total"
	LiveRecords               = "ratewatch_live_records"
	SweepEvictionsTotal       = "ratewatch_sweep_evictions_total"
	StorageErrorsTotal        = "ratewatch_storage_errors_total"
	CollectorSubmissionsTotal = "ratewatch_collector_submissions_total"
	CollectorDuration         = "ratewatch_collector_duration_ms"
	DeliveryFailuresTotal     = "ratewatch_delivery_failures_total"
	SubscribersActive         = "ratewatch_subscribers_active"
	InterceptDropsTotal       = "ratewatch_intercept_drops_total"

	ServerStartTime = "app_server_start_time_seconds"
)

// RecordDetection counts a 429 seen by the interception layer.
func RecordDetection(family string, source string, resetKnown bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	reset := "known"
	if !resetKnown {
		reset = "unknown"
	}
	_ = observability.TelemetrySystem.Counter(
		DetectionsTotal,
		1,
		map[string]string{
			"family": family,
			"source": source,
			"reset":  reset,
		},
	)
}

// RecordIngest counts detection events handled by the tracker.
// outcome is one of stored, broadcast_only.
func RecordIngest(outcome string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		IngestTotal,
		1,
		map[string]string{"outcome": outcome},
	)
}

// SetLiveRecords sets the number of records currently tracked.
func SetLiveRecords(count int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(LiveRecords, float64(count), nil)
}

// RecordSweep records records evicted by an expiry sweep.
func RecordSweep(evicted int) {
	if observability.TelemetrySystem == nil || evicted <= 0 {
		return
	}
	_ = observability.TelemetrySystem.Counter(SweepEvictionsTotal, float64(evicted), nil)
}

// RecordStorageError counts durable storage failures by operation.
func RecordStorageError(operation string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		StorageErrorsTotal,
		1,
		map[string]string{"operation": operation},
	)
}

// RecordCollectorSubmission records a finished collector submission.
func RecordCollectorSubmission(state string, attempts int, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	labels := map[string]string{
		"state":    state,
		"attempts": strconv.Itoa(attempts),
	}
	_ = observability.TelemetrySystem.Counter(CollectorSubmissionsTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(
		CollectorDuration,
		duration,
		map[string]string{"state": state},
	)
}

// RecordDeliveryFailure counts notifications a subscriber could not take.
func RecordDeliveryFailure(reason string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		DeliveryFailuresTotal,
		1,
		map[string]string{"reason": reason},
	)
}

// SetSubscribersActive sets the number of connected notification subscribers.
func SetSubscribersActive(count int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(SubscribersActive, float64(count), nil)
}

// RecordInterceptDrop counts detections dropped because the dispatch queue was full.
func RecordInterceptDrop() {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(InterceptDropsTotal, 1, nil)
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
}
