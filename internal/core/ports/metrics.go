package ports

// MetricsRecorder is the port interface for recording endpoint metrics.
// Implementations are adapters (PrometheusMetricsRecorder for production,
// NoopMetricsRecorder for disabled/testing).
type MetricsRecorder interface {
	// RecordLoginStarted records an authentication request issued to an IdP.
	RecordLoginStarted(idpEntityID string)

	// RecordDiscoveryShown records the discovery page being served.
	RecordDiscoveryShown()

	// RecordAuthAttempt records an assertion-consumer outcome.
	RecordAuthAttempt(idpEntityID string, success bool)

	// RecordLogout records a logout flow outcome. Mode is "sp" for
	// SP-initiated and "idp" for IdP-initiated flows.
	RecordLogout(mode string, success bool)
}
