package session

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/philiph/saml-sp-flow/internal/core/domain"
	"github.com/philiph/saml-sp-flow/internal/core/ports"
)

// DefaultCookieName is used when no cookie name is configured.
const DefaultCookieName = "sp_session"

// CookieStore persists the session bag in a JWT cookie signed with RSA
// (RS256). Tokens are stateless; the underlying session layer gives
// last-write-wins semantics across concurrent requests sharing a browser
// session.
type CookieStore struct {
	privateKey *rsa.PrivateKey
	cookieName string
	duration   time.Duration
}

// cookieClaims defines the JWT claims structure for sessions.
type cookieClaims struct {
	jwt.RegisteredClaims
	Data map[string]json.RawMessage `json:"data,omitempty"`
}

// NewCookieStore creates a new JWT-based session store. cookieName may be
// empty to use DefaultCookieName.
func NewCookieStore(privateKey *rsa.PrivateKey, cookieName string, duration time.Duration) *CookieStore {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &CookieStore{
		privateKey: privateKey,
		cookieName: cookieName,
		duration:   duration,
	}
}

// CookieName returns the name of the cookie the store reads and writes.
func (s *CookieStore) CookieName() string {
	return s.cookieName
}

// Load reads the session cookie and rebuilds the session. A missing,
// expired or otherwise invalid cookie yields a fresh empty session.
func (s *CookieStore) Load(r *http.Request) (*domain.Session, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return domain.NewSession(), nil
	}

	parsed, err := jwt.ParseWithClaims(cookie.Value, &cookieClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return &s.privateKey.PublicKey, nil
	})
	if err != nil {
		return domain.NewSession(), nil
	}

	claims, ok := parsed.Claims.(*cookieClaims)
	if !ok || !parsed.Valid {
		return domain.NewSession(), nil
	}

	return domain.RestoreSession(claims.Data), nil
}

// Save signs the session bag into a fresh token and sets the cookie.
// Clean sessions are not rewritten.
func (s *CookieStore) Save(w http.ResponseWriter, r *http.Request, sess *domain.Session) error {
	if !sess.Dirty() {
		return nil
	}

	now := time.Now()
	claims := cookieClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
		},
		Data: sess.Values(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return err
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

// Ensure CookieStore implements ports.SessionStore
var _ ports.SessionStore = (*CookieStore)(nil)
