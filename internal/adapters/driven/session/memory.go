package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/philiph/saml-sp-flow/internal/core/domain"
	"github.com/philiph/saml-sp-flow/internal/core/ports"
)

// MemoryStore keeps session bags in process memory keyed by a random
// token carried in a cookie. Intended for tests and single-instance
// deployments.
type MemoryStore struct {
	mu         sync.Mutex
	cookieName string
	duration   time.Duration
	entries    map[string]*memoryEntry
	tokens     map[*domain.Session]string
}

type memoryEntry struct {
	session   *domain.Session
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore(cookieName string, duration time.Duration) *MemoryStore {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &MemoryStore{
		cookieName: cookieName,
		duration:   duration,
		entries:    make(map[string]*memoryEntry),
		tokens:     make(map[*domain.Session]string),
	}
}

// CookieName returns the name of the cookie the store reads and writes.
func (s *MemoryStore) CookieName() string {
	return s.cookieName
}

// Load returns the stored session for the request's token, or a fresh one.
func (s *MemoryStore) Load(r *http.Request) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cookie, err := r.Cookie(s.cookieName); err == nil && cookie.Value != "" {
		if entry, ok := s.entries[cookie.Value]; ok {
			if time.Now().Before(entry.expiresAt) {
				return entry.session, nil
			}
			delete(s.entries, cookie.Value)
			delete(s.tokens, entry.session)
		}
	}

	sess := domain.NewSession()
	token := uuid.NewString()
	s.entries[token] = &memoryEntry{session: sess, expiresAt: time.Now().Add(s.duration)}
	s.tokens[sess] = token
	return sess, nil
}

// Save sets the session cookie. The bag itself is shared memory, so the
// write is the cookie plus clearing the dirty flag.
func (s *MemoryStore) Save(w http.ResponseWriter, r *http.Request, sess *domain.Session) error {
	s.mu.Lock()
	token, ok := s.tokens[sess]
	s.mu.Unlock()
	if !ok {
		// Session was not loaded from this store; register it.
		s.mu.Lock()
		token = uuid.NewString()
		s.entries[token] = &memoryEntry{session: sess, expiresAt: time.Now().Add(s.duration)}
		s.tokens[sess] = token
		s.mu.Unlock()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.duration.Seconds()),
	})
	sess.MarkClean()
	return nil
}

// Ensure MemoryStore implements ports.SessionStore
var _ ports.SessionStore = (*MemoryStore)(nil)
