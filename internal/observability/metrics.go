package observability

import (
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

var (
	// TelemetrySystem is nil unless metrics were enabled for this run.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves the run's metrics while it lasts.
	PrometheusExporter *exporters.PrometheusExporter
)

// DisableTelemetry installs a disabled global telemetry system so library
// code inside gofulmen stays quiet on stdout, which may carry CSV output.
func DisableTelemetry() {
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}
}

// InitMetrics starts a Prometheus exporter on addr (":0" picks a free port)
// and returns the address it bound to.
func InitMetrics(namespace string, addr string) (string, error) {
	exporter := exporters.NewPrometheusExporter(namespace, addr)
	if err := exporter.Start(); err != nil {
		return "", err
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{
		Enabled: true,
		Emitter: exporter,
	})
	if err != nil {
		return "", err
	}

	PrometheusExporter = exporter
	TelemetrySystem = sys
	return exporter.GetAddr(), nil
}

// ShutdownMetrics stops the exporter started by InitMetrics, if any.
func ShutdownMetrics() {
	if PrometheusExporter != nil {
		_ = PrometheusExporter.Stop()
		PrometheusExporter = nil
	}
	TelemetrySystem = nil
}
