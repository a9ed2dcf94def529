package ports

import (
	"net/http"

	"github.com/philiph/saml-sp-flow/internal/core/domain"
)

// SessionStore is the port interface for loading and persisting the
// browser-session key/value bag the endpoint controllers depend on.
type SessionStore interface {
	// Load returns the session for the request, creating an empty one
	// lazily when the request carries no usable session token. An absent
	// or invalid token is not an error.
	Load(r *http.Request) (*domain.Session, error)

	// Save persists the session. Implementations may skip the write when
	// the session is clean. Endpoint controllers call Save before issuing
	// any redirect that depends on the persisted state.
	Save(w http.ResponseWriter, r *http.Request, s *domain.Session) error
}
