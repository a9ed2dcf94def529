package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/philiph/saml-sp-flow/internal/core/ports"
)

// PrometheusMetricsRecorder exposes flow counters through a prometheus
// registry.
type PrometheusMetricsRecorder struct {
	loginsStarted   *prometheus.CounterVec
	discoveryShown  prometheus.Counter
	authAttempts    *prometheus.CounterVec
	logoutsFinished *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder creates a recorder registered against the
// default prometheus registry.
func NewPrometheusMetricsRecorder() *PrometheusMetricsRecorder {
	return NewPrometheusMetricsRecorderWithRegistry(prometheus.DefaultRegisterer)
}

// NewPrometheusMetricsRecorderWithRegistry creates a recorder registered
// against the given registry. Tests use this with a fresh registry so
// duplicate registration cannot occur.
func NewPrometheusMetricsRecorderWithRegistry(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	r := &PrometheusMetricsRecorder{
		loginsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saml_sp_logins_started_total",
				Help: "Authentication requests issued, by identity provider.",
			},
			[]string{"idp"},
		),
		discoveryShown: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "saml_sp_discovery_shown_total",
				Help: "Times the identity provider selection page was rendered.",
			},
		),
		authAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saml_sp_auth_attempts_total",
				Help: "Assertion consumer outcomes, by identity provider and result.",
			},
			[]string{"idp", "result"},
		),
		logoutsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saml_sp_logouts_total",
				Help: "Logout flows completed, by mode and result.",
			},
			[]string{"mode", "result"},
		),
	}

	reg.MustRegister(r.loginsStarted, r.discoveryShown, r.authAttempts, r.logoutsFinished)
	return r
}

func (r *PrometheusMetricsRecorder) RecordLoginStarted(idp string) {
	r.loginsStarted.WithLabelValues(idp).Inc()
}

func (r *PrometheusMetricsRecorder) RecordDiscoveryShown() {
	r.discoveryShown.Inc()
}

func (r *PrometheusMetricsRecorder) RecordAuthAttempt(idp string, success bool) {
	r.authAttempts.WithLabelValues(idp, resultLabel(success)).Inc()
}

func (r *PrometheusMetricsRecorder) RecordLogout(mode string, success bool) {
	r.logoutsFinished.WithLabelValues(mode, resultLabel(success)).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Ensure PrometheusMetricsRecorder implements ports.MetricsRecorder
var _ ports.MetricsRecorder = (*PrometheusMetricsRecorder)(nil)
