package ports

import (
	"net/url"
	"time"

	"github.com/philiph/saml-sp-flow/internal/core/domain"
)

// ProtocolEngine is the port interface for the external SAML protocol
// engine. The engine is the sole authority on message construction,
// solicitation matching and cryptographic validity; this layer only
// orchestrates its calls and persists the state it reports.
//
// All calls are in-process, blocking computation. Calls that mutate the
// engine's session-scoped state take the current opaque blob and return the
// updated one; the caller must persist the returned blob before sending the
// HTTP response.
type ProtocolEngine interface {
	// Authenticate builds an authentication request for the given IdP
	// using the requested binding. An empty idpEntityID asks the engine to
	// resolve a single configured target; failure to do so is a
	// configuration error.
	Authenticate(idpEntityID, relayState string, binding domain.Binding) (*domain.AuthnRedirect, error)

	// ParseAuthnResponse validates a raw authentication response payload
	// against the set of outstanding request identifiers.
	ParseAuthnResponse(samlResponse string, outstandingIDs []string) (*domain.AssertionInfo, error)

	// GlobalLogout starts logout at the IdPs the subject authenticated
	// through and returns the engine's HTTP-shaped response.
	GlobalLogout(subjectID string, state []byte) (*domain.EngineResponse, []byte, error)

	// ParseLogoutResponse validates a logout response received over the
	// given binding. The returned state must be persisted regardless of
	// the outcome.
	ParseLogoutResponse(payload string, binding domain.Binding, state []byte) (domain.LogoutOutcome, []byte, error)

	// ParseLogoutRequest handles an IdP-initiated logout request. It
	// returns the send-back response (nil when the request is unusable)
	// and whether the local session should be terminated. The returned
	// state must be persisted regardless of the outcome.
	ParseLogoutRequest(query url.Values, subjectID string, state []byte) (*domain.EngineResponse, bool, []byte, error)

	// Metadata returns this SP's entity descriptor, valid for the given
	// duration.
	Metadata(validFor time.Duration) ([]byte, error)

	// IdentityProviders lists the configured IdPs for discovery.
	IdentityProviders() []domain.IdPInfo
}
