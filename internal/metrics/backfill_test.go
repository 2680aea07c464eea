package metrics

import (
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/stretchr/testify/require"

	"github.com/tootfill/tootfill/internal/observability"
)

func emitAll() {
	RecordOutcome("content", "")
	RecordFeedback("capacity_lowered")
	RecordThrottleWait("https://a.example/", 1500*time.Millisecond)
	SetBucketCapacity("https://a.example/", 40)
	RecordRunAborted("THROTTLE_TIMEOUT")
}

func TestEmissionWithoutTelemetryIsNoop(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = original })

	require.NotPanics(t, emitAll)
}

func TestEmissionWithDisabledSystem(t *testing.T) {
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = original })

	require.NotPanics(t, emitAll)
}
