package metrics

import (
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratewatch/ratewatch/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{
		Enabled: true,
		Emitter: collector,
	})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() {
		observability.TelemetrySystem = original
	})

	return collector
}

func TestPipelineMetrics(t *testing.T) {
	collector := setupTelemetry(t)

	RecordDetection("vendor-chat", "transport", true)
	RecordIngest("stored")
	SetLiveRecords(3)
	RecordSweep(2)
	RecordStorageError("put")
	RecordCollectorSubmission("success", 1, 15*time.Millisecond)
	RecordDeliveryFailure("busy")
	SetSubscribersActive(1)
	RecordInterceptDrop()
	RecordError("NOT_FOUND", 404, "/api/v1/ratelimits/{domain}")
	RecordPanic()

	for _, name := range []string{
		DetectionsTotal,
		IngestTotal,
		LiveRecords,
		SweepEvictionsTotal,
		StorageErrorsTotal,
		CollectorSubmissionsTotal,
		CollectorDuration,
		DeliveryFailuresTotal,
		SubscribersActive,
		InterceptDropsTotal,
		ErrorsTotal,
		PanicsTotal,
	} {
		assert.Greater(t, collector.CountMetricsByName(name), 0, name)
	}
}

func TestSweepWithoutEvictionsIsSilent(t *testing.T) {
	collector := setupTelemetry(t)

	RecordSweep(0)
	assert.Equal(t, 0, collector.CountMetricsByName(SweepEvictionsTotal))
}

func TestMetricsWithoutTelemetry(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = original })

	require.NotPanics(t, func() {
		RecordDetection("unknown", "client", false)
		RecordCollectorSubmission("failure", 3, time.Second)
		SetServerStartTime(time.Now().Unix())
	})
}
