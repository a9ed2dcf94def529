package metrics

import "github.com/philiph/saml-sp-flow/internal/core/ports"

// NoopMetricsRecorder discards all metrics. Used when metrics are disabled
// and as the default in tests.
type NoopMetricsRecorder struct{}

// NewNoopMetricsRecorder creates a no-op metrics recorder.
func NewNoopMetricsRecorder() *NoopMetricsRecorder {
	return &NoopMetricsRecorder{}
}

func (NoopMetricsRecorder) RecordLoginStarted(string)      {}
func (NoopMetricsRecorder) RecordDiscoveryShown()          {}
func (NoopMetricsRecorder) RecordAuthAttempt(string, bool) {}
func (NoopMetricsRecorder) RecordLogout(string, bool)      {}

// Ensure NoopMetricsRecorder implements ports.MetricsRecorder
var _ ports.MetricsRecorder = (*NoopMetricsRecorder)(nil)
