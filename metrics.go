package samlspflow

import (
	"github.com/philiph/saml-sp-flow/internal/adapters/driven/metrics"
	"github.com/philiph/saml-sp-flow/internal/core/ports"
)

// Re-export the metrics port and adapters.
type MetricsRecorder = ports.MetricsRecorder
type PrometheusMetricsRecorder = metrics.PrometheusMetricsRecorder
type NoopMetricsRecorder = metrics.NoopMetricsRecorder

var (
	NewPrometheusMetricsRecorder             = metrics.NewPrometheusMetricsRecorder
	NewPrometheusMetricsRecorderWithRegistry = metrics.NewPrometheusMetricsRecorderWithRegistry
	NewNoopMetricsRecorder                   = metrics.NewNoopMetricsRecorder
)
