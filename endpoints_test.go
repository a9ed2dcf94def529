//go:build unit

package samlspflow

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/philiph/saml-sp-flow/internal/core/domain"
	"github.com/philiph/saml-sp-flow/internal/core/ports"
)

// mockEngine scripts the protocol engine's answers.
type mockEngine struct {
	idps []domain.IdPInfo

	authnRedirect *domain.AuthnRedirect
	authnErr      error

	assertion *domain.AssertionInfo
	parseErr  error

	logoutResp  *domain.EngineResponse
	logoutState []byte
	logoutErr   error

	outcome      domain.LogoutOutcome
	outcomeState []byte
	outcomeErr   error

	sendBack      *domain.EngineResponse
	terminate     bool
	sendBackState []byte
	sendBackErr   error

	metadata []byte
}

func (m *mockEngine) Authenticate(idpEntityID, relayState string, binding domain.Binding) (*domain.AuthnRedirect, error) {
	if m.authnErr != nil {
		return nil, m.authnErr
	}
	return m.authnRedirect, nil
}

func (m *mockEngine) ParseAuthnResponse(samlResponse string, outstandingIDs []string) (*domain.AssertionInfo, error) {
	if m.parseErr != nil {
		return nil, m.parseErr
	}
	return m.assertion, nil
}

func (m *mockEngine) GlobalLogout(subjectID string, state []byte) (*domain.EngineResponse, []byte, error) {
	if m.logoutErr != nil {
		return nil, state, m.logoutErr
	}
	return m.logoutResp, m.logoutState, nil
}

func (m *mockEngine) ParseLogoutResponse(payload string, binding domain.Binding, state []byte) (domain.LogoutOutcome, []byte, error) {
	return m.outcome, m.outcomeState, m.outcomeErr
}

func (m *mockEngine) ParseLogoutRequest(query url.Values, subjectID string, state []byte) (*domain.EngineResponse, bool, []byte, error) {
	if m.sendBackErr != nil {
		return nil, false, state, m.sendBackErr
	}
	return m.sendBack, m.terminate, m.sendBackState, nil
}

func (m *mockEngine) Metadata(validFor time.Duration) ([]byte, error) {
	return m.metadata, nil
}

func (m *mockEngine) IdentityProviders() []domain.IdPInfo {
	return m.idps
}

// mockBackend resolves every subject unless told otherwise.
type mockBackend struct {
	err    error
	called int
}

func (b *mockBackend) Authenticate(info *domain.AssertionInfo, mapping domain.AttributeMapping, createUnknown bool) (*domain.Principal, error) {
	b.called++
	if b.err != nil {
		return nil, b.err
	}
	username, _ := domain.MapAttributes(info, mapping)
	if username == "" {
		username = info.SubjectID
	}
	return &domain.Principal{ID: username, Username: username}, nil
}

var (
	_ ports.ProtocolEngine = (*mockEngine)(nil)
	_ ports.AuthBackend    = (*mockBackend)(nil)
)

var (
	oneIdP  = []domain.IdPInfo{{EntityID: "https://idp.example.com", SSOURL: "https://idp.example.com/sso"}}
	twoIdPs = []domain.IdPInfo{
		{EntityID: "https://idp1.example.com", DisplayName: "First", SSOURL: "https://idp1.example.com/sso"},
		{EntityID: "https://idp2.example.com", DisplayName: "Second", SSOURL: "https://idp2.example.com/sso"},
	}
)

type fixture struct {
	endpoints *Endpoints
	engine    *mockEngine
	backend   *mockBackend
	store     *MemoryStore
	cookies   []*http.Cookie
}

func newFixture(t *testing.T, cfg Config, engine *mockEngine) *fixture {
	t.Helper()
	backend := &mockBackend{}
	store := NewMemoryStore("", time.Hour)
	return &fixture{
		endpoints: NewEndpointsForTest(cfg, engine, store, backend),
		engine:    engine,
		backend:   backend,
		store:     store,
	}
}

// do runs one handler call, carrying the fixture's cookie jar along.
func (f *fixture) do(handler http.HandlerFunc, method, target string, form url.Values) *httptest.ResponseRecorder {
	var r *http.Request
	if form != nil {
		r = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	for _, c := range f.cookies {
		r.AddCookie(c)
	}
	w := httptest.NewRecorder()
	handler(w, r)
	if got := w.Result().Cookies(); len(got) > 0 {
		f.cookies = got
	}
	return w
}

// session loads the fixture's current session straight from the store.
func (f *fixture) session(t *testing.T) *domain.Session {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range f.cookies {
		r.AddCookie(c)
	}
	sess, err := f.store.Load(r)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return sess
}

// authenticate drives a complete login + ACS round so later requests carry
// an authenticated session.
func (f *fixture) authenticate(t *testing.T) {
	t.Helper()
	if f.engine.authnRedirect == nil {
		f.engine.authnRedirect = &domain.AuthnRedirect{RequestID: "id-authn", Location: "https://idp.example.com/sso?SAMLRequest=x"}
	}
	if f.engine.assertion == nil {
		f.engine.assertion = &domain.AssertionInfo{
			CorrelationID: "id-authn",
			SubjectID:     "user@example.com",
			IdPEntityID:   "https://idp.example.com",
			Attributes:    map[string][]string{"uid": {"jdoe"}},
		}
	}

	if w := f.do(f.endpoints.Login, http.MethodGet, "/saml2/login?next=/home", nil); w.Code != http.StatusFound {
		t.Fatalf("login status = %d", w.Code)
	}
	form := url.Values{"SAMLResponse": {"payload"}}
	if w := f.do(f.endpoints.AssertionConsumer, http.MethodPost, "/saml2/acs", form); w.Code != http.StatusFound {
		t.Fatalf("acs status = %d", w.Code)
	}
}

func TestLogin_DiscoveryWritesNothing(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: twoIdPs})

	w := f.do(f.endpoints.Login, http.MethodGet, "/saml2/login", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "https://idp1.example.com") || !strings.Contains(body, "Second") {
		t.Error("selection page should list both IdPs")
	}
	if w.Header().Get("Location") != "" {
		t.Error("selection page must not redirect")
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("selection page must not write the session")
	}
}

func TestLogin_RecordsOutstandingQueryBeforeRedirect(t *testing.T) {
	engine := &mockEngine{
		idps:          oneIdP,
		authnRedirect: &domain.AuthnRedirect{RequestID: "id-1", Location: "https://idp.example.com/sso?SAMLRequest=x"},
	}
	f := newFixture(t, Config{}, engine)

	w := f.do(f.endpoints.Login, http.MethodGet, "/saml2/login?next=/reports", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if got := w.Header().Get("Location"); got != engine.authnRedirect.Location {
		t.Errorf("Location = %q", got)
	}

	queries := domain.NewOutstandingQueries(f.session(t))
	if got := queries.All()["id-1"]; got != "/reports" {
		t.Errorf("outstanding destination = %q, want /reports", got)
	}
}

func TestLogin_EngineFailureRendersDiagnostic(t *testing.T) {
	engine := &mockEngine{idps: oneIdP, authnErr: domain.ConfigError("unknown identity provider", nil)}
	f := newFixture(t, Config{}, engine)

	w := f.do(f.endpoints.Login, http.MethodGet, "/saml2/login?idp=https://nope", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if len(f.session(t).Values()) != 0 {
		t.Error("failed login must not touch the session")
	}
}

func TestLogin_AlreadyAuthenticated(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: oneIdP})
	f.authenticate(t)

	w := f.do(f.endpoints.Login, http.MethodGet, "/saml2/login?next=/home", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "user@example.com") {
		t.Error("notice should name the signed-in subject")
	}
}

func TestLogin_OpenRedirectTargetsRejected(t *testing.T) {
	engine := &mockEngine{
		idps:          oneIdP,
		authnRedirect: &domain.AuthnRedirect{RequestID: "id-1", Location: "https://idp.example.com/sso"},
	}
	f := newFixture(t, Config{}, engine)

	f.do(f.endpoints.Login, http.MethodGet, "/saml2/login?next=https://evil.example.com/", nil)

	queries := domain.NewOutstandingQueries(f.session(t))
	if got := queries.All()["id-1"]; got != "/" {
		t.Errorf("destination = %q, want the default landing page", got)
	}
}

func TestAssertionConsumer_RequiresPost(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: oneIdP})

	w := f.do(f.endpoints.AssertionConsumer, http.MethodGet, "/saml2/acs", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestAssertionConsumer_MissingPayload(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: oneIdP})

	w := f.do(f.endpoints.AssertionConsumer, http.MethodPost, "/saml2/acs", url.Values{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if f.backend.called != 0 {
		t.Error("backend must not run without a payload")
	}
	if len(f.session(t).Values()) != 0 {
		t.Error("missing payload must not mutate the session")
	}
}

func TestAssertionConsumer_EngineRejection(t *testing.T) {
	engine := &mockEngine{idps: oneIdP, parseErr: domain.ValidationError("signature invalid", nil)}
	f := newFixture(t, Config{}, engine)

	form := url.Values{"SAMLResponse": {"payload"}}
	w := f.do(f.endpoints.AssertionConsumer, http.MethodPost, "/saml2/acs", form)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if _, ok := f.session(t).SubjectID(); ok {
		t.Error("rejected response must not authenticate the session")
	}
}

func TestAssertionConsumer_UnsolicitedRejectedByDefault(t *testing.T) {
	engine := &mockEngine{
		idps:      oneIdP,
		assertion: &domain.AssertionInfo{CorrelationID: "id-nobody-asked", SubjectID: "user@example.com"},
	}
	f := newFixture(t, Config{}, engine)

	form := url.Values{"SAMLResponse": {"payload"}}
	w := f.do(f.endpoints.AssertionConsumer, http.MethodPost, "/saml2/acs", form)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if _, ok := f.session(t).SubjectID(); ok {
		t.Error("unsolicited response must not authenticate the session")
	}
}

func TestAssertionConsumer_UnsolicitedAcceptedWhenAllowed(t *testing.T) {
	engine := &mockEngine{
		idps:      oneIdP,
		assertion: &domain.AssertionInfo{SubjectID: "user@example.com"},
	}
	f := newFixture(t, Config{AllowUnsolicited: true}, engine)

	form := url.Values{"SAMLResponse": {"payload"}, "RelayState": {"/landing"}}
	w := f.do(f.endpoints.AssertionConsumer, http.MethodPost, "/saml2/acs", form)
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if got := w.Header().Get("Location"); got != "/landing" {
		t.Errorf("Location = %q", got)
	}
	if _, ok := f.session(t).SubjectID(); !ok {
		t.Error("allowed unsolicited response should authenticate the session")
	}
}

func TestAssertionConsumer_CorrelationRoundTrip(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: oneIdP})
	f.engine.authnRedirect = &domain.AuthnRedirect{RequestID: "id-corr", Location: "https://idp.example.com/sso"}
	f.engine.assertion = &domain.AssertionInfo{
		CorrelationID: "id-corr",
		SubjectID:     "user@example.com",
		IdPEntityID:   "https://idp.example.com",
		Attributes:    map[string][]string{"uid": {"jdoe"}},
	}

	f.do(f.endpoints.Login, http.MethodGet, "/saml2/login?next=/target", nil)

	form := url.Values{"SAMLResponse": {"payload"}}
	w := f.do(f.endpoints.AssertionConsumer, http.MethodPost, "/saml2/acs", form)
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if got := w.Header().Get("Location"); got != "/target" {
		t.Errorf("Location = %q, want the destination recorded at login", got)
	}

	sess := f.session(t)
	if subject, ok := sess.SubjectID(); !ok || subject != "user@example.com" {
		t.Errorf("SubjectID = %q, %v", subject, ok)
	}
	if len(domain.NewOutstandingQueries(sess).All()) != 0 {
		t.Error("the outstanding query should be consumed exactly once")
	}
	if _, ok := domain.NewIdentityCache(sess).Get("user@example.com", false); !ok {
		t.Error("identity record should be cached")
	}
}

func TestAssertionConsumer_BackendFailureKeepsConsumption(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: oneIdP})
	f.engine.authnRedirect = &domain.AuthnRedirect{RequestID: "id-corr", Location: "https://idp.example.com/sso"}
	f.engine.assertion = &domain.AssertionInfo{CorrelationID: "id-corr", SubjectID: "user@example.com"}
	f.backend.err = ErrUnknownPrincipal

	f.do(f.endpoints.Login, http.MethodGet, "/saml2/login", nil)

	form := url.Values{"SAMLResponse": {"payload"}}
	w := f.do(f.endpoints.AssertionConsumer, http.MethodPost, "/saml2/acs", form)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want the 200 diagnostic page", w.Code)
	}

	sess := f.session(t)
	if _, ok := sess.SubjectID(); ok {
		t.Error("failed principal resolution must not authenticate the session")
	}
	if len(domain.NewOutstandingQueries(sess).All()) != 0 {
		t.Error("a validly consumed response stays consumed even when no principal resolves")
	}
}

func TestAssertionConsumer_SubscriberPanicDoesNotAbort(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: oneIdP})
	f.engine.authnRedirect = &domain.AuthnRedirect{RequestID: "id-corr", Location: "https://idp.example.com/sso"}
	f.engine.assertion = &domain.AssertionInfo{CorrelationID: "id-corr", SubjectID: "user@example.com"}

	var delivered []string
	f.endpoints.OnPostAuthenticated(func(ev PostAuthenticatedEvent) {
		panic("subscriber bug")
	})
	f.endpoints.OnPostAuthenticated(func(ev PostAuthenticatedEvent) {
		delivered = append(delivered, ev.Assertion.SubjectID)
	})

	f.do(f.endpoints.Login, http.MethodGet, "/saml2/login", nil)
	form := url.Values{"SAMLResponse": {"payload"}}
	w := f.do(f.endpoints.AssertionConsumer, http.MethodPost, "/saml2/acs", form)
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302 despite the panicking subscriber", w.Code)
	}
	if len(delivered) != 1 || delivered[0] != "user@example.com" {
		t.Errorf("delivered = %v", delivered)
	}
}

func TestLogout_RequiresSession(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: oneIdP})

	w := f.do(f.endpoints.Logout, http.MethodGet, "/saml2/logout", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestLogout_PersistsStateBeforeRedirect(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: oneIdP})
	f.authenticate(t)

	header := http.Header{}
	header.Set("Location", "https://idp.example.com/slo?SAMLRequest=x")
	f.engine.logoutResp = &domain.EngineResponse{CorrelationID: "id-lo", StatusCode: http.StatusFound, Header: header}
	f.engine.logoutState = []byte(`{"pending":"id-lo"}`)

	w := f.do(f.endpoints.Logout, http.MethodGet, "/saml2/logout", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if got := w.Header().Get("Location"); got != "https://idp.example.com/slo?SAMLRequest=x" {
		t.Errorf("Location = %q", got)
	}

	blob := domain.NewStateCache(f.session(t)).Blob()
	if string(blob) != `{"pending":"id-lo"}` {
		t.Errorf("persisted state = %q", blob)
	}
}

func TestLogout_MissingLocationIsFatal(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: oneIdP})
	f.authenticate(t)

	f.engine.logoutResp = &domain.EngineResponse{StatusCode: http.StatusFound, Header: http.Header{}}

	w := f.do(f.endpoints.Logout, http.MethodGet, "/saml2/logout", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if subject, ok := f.session(t).SubjectID(); !ok || subject != "user@example.com" {
		t.Error("a failed logout initiation must leave the subject in place")
	}
}

func TestLogoutService_NeitherParameter(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: oneIdP})

	w := f.do(f.endpoints.LogoutService, http.MethodGet, "/saml2/ls", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestLogoutService_ResponseSuccessClearsSession(t *testing.T) {
	f := newFixture(t, Config{PostLogoutURL: "/bye"}, &mockEngine{idps: oneIdP})
	f.authenticate(t)

	f.engine.outcome = domain.LogoutOutcome{Success: true, Status: "urn:oasis:names:tc:SAML:2.0:status:Success"}
	f.engine.outcomeState = []byte(`{}`)

	w := f.do(f.endpoints.LogoutService, http.MethodGet, "/saml2/ls?SAMLResponse=payload", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if got := w.Header().Get("Location"); got != "/bye" {
		t.Errorf("Location = %q", got)
	}

	sess := f.session(t)
	if _, ok := sess.SubjectID(); ok {
		t.Error("successful logout should clear the subject")
	}
	if _, ok := domain.NewIdentityCache(sess).Get("user@example.com", false); ok {
		t.Error("successful logout should drop the identity record")
	}
}

func TestLogoutService_ResponseFailureKeepsSession(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: oneIdP})
	f.authenticate(t)

	f.engine.outcome = domain.LogoutOutcome{Success: false, Status: "urn:oasis:names:tc:SAML:2.0:status:Requester"}
	f.engine.outcomeState = []byte(`{"after":"failure"}`)

	w := f.do(f.endpoints.LogoutService, http.MethodGet, "/saml2/ls?SAMLResponse=payload", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want the 200 failure page", w.Code)
	}
	if w.Header().Get("Location") != "" {
		t.Error("failed logout must not redirect")
	}

	sess := f.session(t)
	if subject, ok := sess.SubjectID(); !ok || subject != "user@example.com" {
		t.Error("failed logout must leave the subject in place")
	}
	if got := string(domain.NewStateCache(sess).Blob()); got != `{"after":"failure"}` {
		t.Errorf("engine state must be persisted on failure, got %q", got)
	}
}

func TestLogoutService_RequestTerminatesSession(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: oneIdP})
	f.authenticate(t)

	header := http.Header{}
	header.Set("Location", "https://idp.example.com/slo?SAMLResponse=y")
	f.engine.sendBack = &domain.EngineResponse{StatusCode: http.StatusFound, Header: header}
	f.engine.terminate = true

	w := f.do(f.endpoints.LogoutService, http.MethodGet, "/saml2/ls?SAMLRequest=payload", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if got := w.Header().Get("Location"); got != "https://idp.example.com/slo?SAMLResponse=y" {
		t.Errorf("Location = %q", got)
	}
	if _, ok := f.session(t).SubjectID(); ok {
		t.Error("idp-initiated logout should clear the subject")
	}
}

func TestLogoutService_RequestSoftFailureRedirectsWithoutClearing(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: oneIdP})
	f.authenticate(t)

	header := http.Header{}
	header.Set("Location", "https://idp.example.com/slo?SAMLResponse=y")
	f.engine.sendBack = &domain.EngineResponse{StatusCode: http.StatusFound, Header: header}
	f.engine.terminate = false

	w := f.do(f.endpoints.LogoutService, http.MethodGet, "/saml2/ls?SAMLRequest=payload", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302: the IdP still gets its status response", w.Code)
	}
	if subject, ok := f.session(t).SubjectID(); !ok || subject != "user@example.com" {
		t.Error("soft failure must not clear the local session")
	}
}

func TestLogoutService_RequestWithoutResponseRendersFailure(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: oneIdP})
	f.authenticate(t)

	f.engine.sendBack = nil
	f.engine.terminate = false

	w := f.do(f.endpoints.LogoutService, http.MethodGet, "/saml2/ls?SAMLRequest=payload", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want the 200 failure page", w.Code)
	}
	if subject, ok := f.session(t).SubjectID(); !ok || subject != "user@example.com" {
		t.Error("unanswerable request must not clear the local session")
	}
}

func TestLogoutService_RequestResponseMissingLocation(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: oneIdP})
	f.authenticate(t)

	f.engine.sendBack = &domain.EngineResponse{StatusCode: http.StatusFound, Header: http.Header{}}
	f.engine.terminate = true

	w := f.do(f.endpoints.LogoutService, http.MethodGet, "/saml2/ls?SAMLRequest=payload", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestMetadata_ContentType(t *testing.T) {
	engine := &mockEngine{idps: oneIdP, metadata: []byte("<EntityDescriptor/>")}
	f := newFixture(t, Config{}, engine)

	w := f.do(f.endpoints.Metadata, http.MethodGet, "/saml2/metadata", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "text/xml; charset=utf8" {
		t.Errorf("Content-Type = %q", got)
	}
	if w.Body.String() != "<EntityDescriptor/>" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestEchoAttributes_RequiresSession(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: oneIdP})

	w := f.do(f.endpoints.EchoAttributes, http.MethodGet, "/saml2/attributes", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestEchoAttributes_BypassesFreshnessCheck(t *testing.T) {
	f := newFixture(t, Config{}, &mockEngine{idps: oneIdP})
	past := time.Now().Add(-time.Hour)
	f.engine.authnRedirect = &domain.AuthnRedirect{RequestID: "id-corr", Location: "https://idp.example.com/sso"}
	f.engine.assertion = &domain.AssertionInfo{
		CorrelationID: "id-corr",
		SubjectID:     "user@example.com",
		Attributes:    map[string][]string{"mail": {"user@example.com"}},
		NotOnOrAfter:  &past,
	}
	f.authenticate(t)

	w := f.do(f.endpoints.EchoAttributes, http.MethodGet, "/saml2/attributes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "user@example.com") {
		t.Error("the expired record should still be rendered")
	}
}

func TestValidateRelayState(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"  ", "/"},
		{"/dashboard", "/dashboard"},
		{"/a/b?c=d", "/a/b?c=d"},
		{"//evil.example.com", "/"},
		{"https://evil.example.com/", "/"},
		{"javascript:alert(1)", "/"},
		{"relative/path", "/"},
	}
	for _, tt := range tests {
		if got := validateRelayState(tt.in, "/"); got != tt.want {
			t.Errorf("validateRelayState(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRoutes_ServesConfiguredPaths(t *testing.T) {
	engine := &mockEngine{idps: oneIdP, metadata: []byte("<EntityDescriptor/>")}
	f := newFixture(t, Config{}, engine)
	router := f.endpoints.Routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, DefaultMetadataPath, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metadata via router: status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown path: status = %d, want 404", w.Code)
	}
}

func TestNewEndpoints_RejectsNilPorts(t *testing.T) {
	if _, err := NewEndpoints(Config{}, nil, nil, nil); err == nil {
		t.Fatal("nil ports should be rejected")
	}
}

func TestNewEndpoints_RejectsBadConfig(t *testing.T) {
	cfg := Config{LoginPath: "login-without-slash"}
	engine := &mockEngine{idps: oneIdP}
	if _, err := NewEndpoints(cfg, engine, NewMemoryStore("", time.Hour), &mockBackend{}); err == nil {
		t.Fatal("invalid config should be rejected")
	}
}
