package samlspflow

import (
	"github.com/philiph/saml-sp-flow/internal/adapters/driven/engine"
	"github.com/philiph/saml-sp-flow/internal/core/domain"
	"github.com/philiph/saml-sp-flow/internal/core/ports"
)

// Re-export the protocol engine port and domain types.
type ProtocolEngine = ports.ProtocolEngine
type IdPInfo = domain.IdPInfo
type AssertionInfo = domain.AssertionInfo
type AuthnRedirect = domain.AuthnRedirect
type EngineResponse = domain.EngineResponse
type LogoutOutcome = domain.LogoutOutcome
type Binding = domain.Binding

const (
	BindingHTTPRedirect = domain.BindingHTTPRedirect
	BindingHTTPPost     = domain.BindingHTTPPost
)

// Re-export the crewjam-backed engine adapter.
type Engine = engine.Engine
type EngineOptions = engine.Options

var (
	NewEngine                 = engine.New
	LoadPrivateKey            = engine.LoadPrivateKey
	LoadCertificate           = engine.LoadCertificate
	RegisterNamespacePrefixes = engine.RegisterNamespacePrefixes
)
