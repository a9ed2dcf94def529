package samlspflow

import (
	"github.com/philiph/saml-sp-flow/internal/adapters/driven/session"
	"github.com/philiph/saml-sp-flow/internal/core/domain"
	"github.com/philiph/saml-sp-flow/internal/core/ports"
)

// Re-export the session model and store port.
type Session = domain.Session
type SessionStore = ports.SessionStore
type OutstandingQueries = domain.OutstandingQueries
type IdentityCache = domain.IdentityCache
type IdentityRecord = domain.IdentityRecord

var (
	NewSession            = domain.NewSession
	NewOutstandingQueries = domain.NewOutstandingQueries
	NewIdentityCache      = domain.NewIdentityCache
)

// Re-export the session store adapters.
type CookieStore = session.CookieStore
type MemoryStore = session.MemoryStore

var (
	NewCookieStore = session.NewCookieStore
	NewMemoryStore = session.NewMemoryStore
)
