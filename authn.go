package samlspflow

import (
	"github.com/philiph/saml-sp-flow/internal/adapters/driven/authn"
	"github.com/philiph/saml-sp-flow/internal/core/domain"
	"github.com/philiph/saml-sp-flow/internal/core/ports"
)

// Re-export the auth backend port and domain types.
type AuthBackend = ports.AuthBackend
type Principal = domain.Principal
type AttributeMapping = domain.AttributeMapping

var ErrUnknownPrincipal = ports.ErrUnknownPrincipal

// Re-export the auth backend adapters.
type MemoryBackend = authn.MemoryBackend
type BoltBackend = authn.BoltBackend

var (
	NewMemoryBackend = authn.NewMemoryBackend
	NewBoltBackend   = authn.NewBoltBackend
)
