package authn

import (
	"sync"

	"github.com/philiph/saml-sp-flow/internal/core/domain"
	"github.com/philiph/saml-sp-flow/internal/core/ports"
)

// MemoryBackend resolves principals against an in-process user table.
// Intended for tests and single-instance deployments.
type MemoryBackend struct {
	mu    sync.Mutex
	users map[string]*domain.Principal
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{users: make(map[string]*domain.Principal)}
}

// AddPrincipal registers a known user. Mostly useful to seed tests and
// deployments with provisioning disabled.
func (b *MemoryBackend) AddPrincipal(p domain.Principal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[p.Username] = &p
}

// Authenticate maps the asserted attributes and resolves or provisions the
// local principal.
func (b *MemoryBackend) Authenticate(info *domain.AssertionInfo, mapping domain.AttributeMapping, createUnknown bool) (*domain.Principal, error) {
	username, fields := domain.MapAttributes(info, mapping)
	if username == "" {
		username = info.SubjectID
	}
	if username == "" {
		return nil, ports.ErrUnknownPrincipal
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.users[username]
	if !ok {
		if !createUnknown {
			return nil, ports.ErrUnknownPrincipal
		}
		p = &domain.Principal{ID: username, Username: username}
		b.users[username] = p
	}

	if p.Attributes == nil {
		p.Attributes = make(map[string][]string)
	}
	for name, values := range fields {
		p.Attributes[name] = values
	}

	out := *p
	return &out, nil
}

// Ensure MemoryBackend implements ports.AuthBackend
var _ ports.AuthBackend = (*MemoryBackend)(nil)
