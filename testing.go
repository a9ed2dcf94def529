package samlspflow

import (
	"github.com/philiph/saml-sp-flow/internal/adapters/driven/metrics"
	"github.com/philiph/saml-sp-flow/internal/core/ports"
)

// NewEndpointsForTest creates an Endpoints instance with injected
// dependencies and no validation. This constructor is intended for testing
// purposes only.
func NewEndpointsForTest(
	cfg Config,
	engine ports.ProtocolEngine,
	sessions ports.SessionStore,
	backend ports.AuthBackend,
) *Endpoints {
	cfg.SetDefaults()

	renderer, err := NewTemplateRenderer()
	if err != nil {
		// This should never fail with embedded templates
		panic("failed to load embedded templates: " + err.Error())
	}

	return &Endpoints{
		cfg:      cfg,
		engine:   engine,
		sessions: sessions,
		backend:  backend,
		metrics:  metrics.NewNoopMetricsRecorder(),
		renderer: renderer,
	}
}
