package metrics

import (
	"strconv"

	"github.com/ratewatch/ratewatch/internal/observability"
)

// Error metrics emitted by the error envelope writer and panic recovery.
const (
	ErrorsTotal = "ratewatch_api_errors_total"
	PanicsTotal = "ratewatch_panics_total"
)

// RecordError counts an error response by envelope code, status and route
// pattern. route must be a pattern, never a raw path.
func RecordError(errorCode string, httpStatus int, route string) {
	if observability.TelemetrySystem == nil {
		return
	}
	if route == "" {
		route = "none"
	}
	_ = observability.TelemetrySystem.Counter(
		ErrorsTotal,
		1,
		map[string]string{
			"error_code":  errorCode,
			"http_status": strconv.Itoa(httpStatus),
			"route":       route,
		},
	)
}

// RecordPanic counts a recovered handler panic.
func RecordPanic() {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(PanicsTotal, 1, nil)
}
