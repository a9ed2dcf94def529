package ports

import (
	"errors"

	"github.com/philiph/saml-sp-flow/internal/core/domain"
)

// AuthBackend resolves a local principal from validated assertion content.
type AuthBackend interface {
	// Authenticate maps the asserted attributes through mapping and
	// resolves the local principal. When the subject is unknown and
	// createUnknown is true, the backend provisions a new principal.
	// Returns ErrUnknownPrincipal when no principal can be resolved.
	Authenticate(info *domain.AssertionInfo, mapping domain.AttributeMapping, createUnknown bool) (*domain.Principal, error)
}

// ErrUnknownPrincipal is returned when the asserted subject does not map to
// a local principal and provisioning is disabled.
var ErrUnknownPrincipal = errors.New("unknown principal")
