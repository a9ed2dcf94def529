package samlspflow

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/philiph/saml-sp-flow/internal/adapters/driven/metrics"
	"github.com/philiph/saml-sp-flow/internal/core/domain"
	"github.com/philiph/saml-sp-flow/internal/core/ports"
)

// PostAuthenticatedEvent is delivered to subscribers after a subject has
// been authenticated and the session persisted.
type PostAuthenticatedEvent struct {
	Principal domain.Principal
	Assertion domain.AssertionInfo
}

// PostAuthenticatedFunc receives post-authentication events. Delivery is
// best effort: a panicking or misbehaving subscriber is logged and never
// aborts the login flow.
type PostAuthenticatedFunc func(PostAuthenticatedEvent)

// Endpoints holds the four protocol endpoint controllers plus the metadata
// and attribute diagnostic views. All protocol work is delegated to the
// engine; all persistence to the session store.
type Endpoints struct {
	cfg      Config
	engine   ports.ProtocolEngine
	sessions ports.SessionStore
	backend  ports.AuthBackend
	metrics  ports.MetricsRecorder
	renderer *TemplateRenderer
	logger   *zap.Logger

	subscribers []PostAuthenticatedFunc
}

// NewEndpoints wires the endpoint controllers. Metrics default to a no-op
// recorder and the renderer to the embedded templates; both can be replaced
// before the endpoints serve traffic.
func NewEndpoints(cfg Config, engine ports.ProtocolEngine, sessions ports.SessionStore, backend ports.AuthBackend) (*Endpoints, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("endpoint config: %w", err)
	}
	if engine == nil || sessions == nil || backend == nil {
		return nil, errors.New("engine, session store and auth backend are required")
	}

	renderer, err := NewTemplateRenderer()
	if err != nil {
		return nil, err
	}

	return &Endpoints{
		cfg:      cfg,
		engine:   engine,
		sessions: sessions,
		backend:  backend,
		metrics:  metrics.NewNoopMetricsRecorder(),
		renderer: renderer,
	}, nil
}

// SetLogger installs a structured logger. Without one, logging is a no-op.
func (e *Endpoints) SetLogger(logger *zap.Logger) {
	e.logger = logger
}

// SetMetrics replaces the metrics recorder.
func (e *Endpoints) SetMetrics(m ports.MetricsRecorder) {
	if m != nil {
		e.metrics = m
	}
}

// SetRenderer replaces the template renderer.
func (e *Endpoints) SetRenderer(r *TemplateRenderer) {
	if r != nil {
		e.renderer = r
	}
}

// OnPostAuthenticated registers a post-authentication subscriber.
func (e *Endpoints) OnPostAuthenticated(fn PostAuthenticatedFunc) {
	e.subscribers = append(e.subscribers, fn)
}

func (e *Endpoints) getLogger() *zap.Logger {
	if e.logger != nil {
		return e.logger
	}
	return zap.NewNop()
}

// Routes returns a router serving all endpoints at their configured paths.
func (e *Endpoints) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get(e.cfg.LoginPath, e.Login)
	r.Post(e.cfg.ACSPath, e.AssertionConsumer)
	r.Get(e.cfg.LogoutPath, e.Logout)
	r.Get(e.cfg.LogoutServicePath, e.LogoutService)
	r.Get(e.cfg.MetadataPath, e.Metadata)
	r.Get(e.cfg.AttributesPath, e.EchoAttributes)
	return r
}

// Login initiates authentication. With several IdPs configured and none
// selected it renders the selection page instead of redirecting; the
// selection page performs no session writes.
func (e *Endpoints) Login(w http.ResponseWriter, r *http.Request) {
	sess, err := e.sessions.Load(r)
	if err != nil {
		e.renderAppError(w, domain.ServiceError("Could not load session", err))
		return
	}

	next := validateRelayState(r.URL.Query().Get("next"), e.cfg.DefaultLandingURL)

	if subject, ok := sess.SubjectID(); ok {
		e.getLogger().Debug("login requested by authenticated session",
			zap.String("subject", subject),
		)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := e.renderer.RenderAuthNotice(w, NoticeData{SubjectID: subject, Next: next}); err != nil {
			e.getLogger().Error("render auth notice", zap.Error(err))
		}
		return
	}

	idpEntityID := r.URL.Query().Get("idp")
	idps := e.engine.IdentityProviders()
	if idpEntityID == "" && len(idps) > 1 {
		e.metrics.RecordDiscoveryShown()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := e.renderer.RenderWAYF(w, WAYFData{IdPs: idps, Next: next}); err != nil {
			e.getLogger().Error("render idp selection", zap.Error(err))
		}
		return
	}

	redirect, err := e.engine.Authenticate(idpEntityID, next, domain.BindingHTTPRedirect)
	if err != nil {
		e.getLogger().Warn("authentication request failed",
			zap.String("idp", idpEntityID),
			zap.Error(err),
		)
		e.renderAppError(w, asAppError(err, domain.ErrCodeConfig, "Could not start authentication"))
		return
	}

	// The outstanding query must survive a store failure check before the
	// browser leaves, otherwise the response could never be correlated.
	if err := domain.NewOutstandingQueries(sess).Add(redirect.RequestID, next); err != nil {
		e.renderAppError(w, domain.ServiceError("Could not record authentication request", err))
		return
	}
	if err := e.sessions.Save(w, r, sess); err != nil {
		e.renderAppError(w, domain.ServiceError("Could not persist session", err))
		return
	}

	e.metrics.RecordLoginStarted(loginLabel(idpEntityID, idps))
	e.getLogger().Info("authentication request issued",
		zap.String("request_id", redirect.RequestID),
		zap.String("idp", idpEntityID),
	)
	http.Redirect(w, r, redirect.Location, http.StatusFound)
}

// AssertionConsumer processes the IdP's authentication response. The IdP
// posts here cross-origin, so the route must stay exempt from CSRF and
// same-site protections.
func (e *Endpoints) AssertionConsumer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		e.renderAppError(w, domain.ValidationError("Authentication responses must be POSTed", nil))
		return
	}
	if err := r.ParseForm(); err != nil {
		e.renderAppError(w, domain.ValidationError("Request body is not a valid form", err))
		return
	}
	payload := r.PostFormValue("SAMLResponse")
	if payload == "" {
		e.renderAppError(w, domain.ValidationError("Request is missing the SAMLResponse field", nil))
		return
	}

	sess, err := e.sessions.Load(r)
	if err != nil {
		e.renderAppError(w, domain.ServiceError("Could not load session", err))
		return
	}
	queries := domain.NewOutstandingQueries(sess)
	outstanding := queries.All()

	info, err := e.engine.ParseAuthnResponse(payload, queries.IDs())
	if err != nil {
		e.getLogger().Warn("authentication response rejected", zap.Error(err))
		e.metrics.RecordAuthAttempt("unknown", false)
		e.renderAppError(w, asAppError(err, domain.ErrCodeValidation, "The authentication response could not be validated"))
		return
	}

	destination, solicited := outstanding[info.CorrelationID]
	if solicited {
		// Consumption is idempotent: the entry goes away exactly once.
		if err := queries.Delete(info.CorrelationID); err != nil {
			e.renderAppError(w, domain.ServiceError("Could not consume authentication request", err))
			return
		}
	} else if !e.cfg.AllowUnsolicited {
		e.getLogger().Warn("unsolicited authentication response rejected",
			zap.String("correlation_id", info.CorrelationID),
			zap.String("idp", info.IdPEntityID),
		)
		e.metrics.RecordAuthAttempt(info.IdPEntityID, false)
		e.renderAppError(w, domain.ValidationError("The response does not match any outstanding authentication request", nil))
		return
	}
	if destination == "" {
		destination = r.PostFormValue("RelayState")
	}
	destination = validateRelayState(destination, e.cfg.DefaultLandingURL)

	mapping := e.cfg.AttributeMapping.Resolve(r)
	createUnknown := e.cfg.CreateUnknownUser.Resolve(r)

	principal, err := e.backend.Authenticate(info, mapping, createUnknown)
	if err != nil {
		// The response itself was valid, so the consumed outstanding
		// entry stays consumed even though no principal was resolved.
		if saveErr := e.sessions.Save(w, r, sess); saveErr != nil {
			e.getLogger().Error("persist session after failed authentication", zap.Error(saveErr))
		}
		e.getLogger().Error("no local principal for authenticated subject",
			zap.String("subject", info.SubjectID),
			zap.String("idp", info.IdPEntityID),
			zap.Error(err),
		)
		e.metrics.RecordAuthAttempt(info.IdPEntityID, false)
		e.renderAppError(w, domain.AuthError("Your identity could not be matched to a local account", err))
		return
	}

	if err := sess.SetSubjectID(info.SubjectID); err != nil {
		e.renderAppError(w, domain.ServiceError("Could not record authenticated subject", err))
		return
	}
	record := domain.IdentityRecord{
		SubjectID:    info.SubjectID,
		IdPEntityID:  info.IdPEntityID,
		Attributes:   info.Attributes,
		NotOnOrAfter: info.NotOnOrAfter,
	}
	if err := domain.NewIdentityCache(sess).Put(record); err != nil {
		e.renderAppError(w, domain.ServiceError("Could not cache identity", err))
		return
	}
	if err := e.sessions.Save(w, r, sess); err != nil {
		e.renderAppError(w, domain.ServiceError("Could not persist session", err))
		return
	}

	e.notifyPostAuthenticated(PostAuthenticatedEvent{Principal: *principal, Assertion: *info})

	e.metrics.RecordAuthAttempt(info.IdPEntityID, true)
	e.getLogger().Info("authentication successful",
		zap.String("subject", info.SubjectID),
		zap.String("idp", info.IdPEntityID),
		zap.String("username", principal.Username),
	)
	http.Redirect(w, r, destination, http.StatusFound)
}

// Logout starts SP-initiated logout at the IdP the subject authenticated
// through.
func (e *Endpoints) Logout(w http.ResponseWriter, r *http.Request) {
	sess, err := e.sessions.Load(r)
	if err != nil {
		e.renderAppError(w, domain.ServiceError("Could not load session", err))
		return
	}
	subject, ok := sess.SubjectID()
	if !ok {
		e.renderAppError(w, domain.SessionRequiredError())
		return
	}

	state := domain.NewStateCache(sess)
	resp, newState, err := e.engine.GlobalLogout(subject, state.Blob())
	if err != nil {
		e.getLogger().Warn("logout initiation failed",
			zap.String("subject", subject),
			zap.Error(err),
		)
		e.renderAppError(w, asAppError(err, domain.ErrCodeService, "Could not start logout"))
		return
	}

	// The engine's updated state carries the pending logout correlation;
	// losing it would orphan the IdP's response.
	if err := state.Set(newState); err != nil {
		e.renderAppError(w, domain.ServiceError("Could not record logout state", err))
		return
	}
	if err := e.sessions.Save(w, r, sess); err != nil {
		e.renderAppError(w, domain.ServiceError("Could not persist session", err))
		return
	}

	location := resp.Location()
	if location == "" {
		e.getLogger().Error("logout response from engine has no redirect target",
			zap.String("subject", subject),
		)
		e.renderAppError(w, domain.ContractViolation("a Location header"))
		return
	}

	e.getLogger().Info("logout request issued", zap.String("subject", subject))
	http.Redirect(w, r, location, http.StatusFound)
}

// LogoutService is the single logout endpoint the IdP talks back to. It
// handles both the response to our own logout request and IdP-initiated
// logout requests.
func (e *Endpoints) LogoutService(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	switch {
	case query.Get("SAMLResponse") != "":
		e.finishLogout(w, r, query.Get("SAMLResponse"))
	case query.Get("SAMLRequest") != "":
		e.handleLogoutRequest(w, r, query)
	default:
		e.renderAppError(w, domain.NotFoundError("No logout message in request"))
	}
}

// finishLogout handles the IdP's response to an SP-initiated logout.
func (e *Endpoints) finishLogout(w http.ResponseWriter, r *http.Request, payload string) {
	sess, err := e.sessions.Load(r)
	if err != nil {
		e.renderAppError(w, domain.ServiceError("Could not load session", err))
		return
	}
	state := domain.NewStateCache(sess)

	outcome, newState, err := e.engine.ParseLogoutResponse(payload, domain.BindingHTTPRedirect, state.Blob())

	// Engine state is persisted whatever the verdict was.
	if stateErr := state.Set(newState); stateErr != nil {
		e.renderAppError(w, domain.ServiceError("Could not record logout state", stateErr))
		return
	}
	if err != nil {
		if saveErr := e.sessions.Save(w, r, sess); saveErr != nil {
			e.getLogger().Error("persist session after rejected logout response", zap.Error(saveErr))
		}
		e.getLogger().Warn("logout response rejected", zap.Error(err))
		e.metrics.RecordLogout("sp", false)
		e.renderAppError(w, asAppError(err, domain.ErrCodeValidation, "The logout response could not be validated"))
		return
	}

	if !outcome.Success {
		if saveErr := e.sessions.Save(w, r, sess); saveErr != nil {
			e.getLogger().Error("persist session after failed logout", zap.Error(saveErr))
		}
		e.getLogger().Warn("idp reported logout failure", zap.String("status", outcome.Status))
		e.metrics.RecordLogout("sp", false)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := e.renderer.RenderError(w, ErrorData{
			Title:   "Logout incomplete",
			Message: "The identity provider could not complete the logout. Your local session is still active.",
		}); err != nil {
			e.getLogger().Error("render logout failure page", zap.Error(err))
		}
		return
	}

	if subject, ok := sess.SubjectID(); ok {
		if err := domain.NewIdentityCache(sess).Invalidate(subject); err != nil {
			e.renderAppError(w, domain.ServiceError("Could not clear identity", err))
			return
		}
	}
	sess.ClearSubjectID()
	if err := e.sessions.Save(w, r, sess); err != nil {
		e.renderAppError(w, domain.ServiceError("Could not persist session", err))
		return
	}

	e.metrics.RecordLogout("sp", true)
	e.getLogger().Info("logout completed")
	http.Redirect(w, r, e.cfg.PostLogoutURL, http.StatusFound)
}

// handleLogoutRequest handles an IdP-initiated logout request.
func (e *Endpoints) handleLogoutRequest(w http.ResponseWriter, r *http.Request, query url.Values) {
	sess, err := e.sessions.Load(r)
	if err != nil {
		e.renderAppError(w, domain.ServiceError("Could not load session", err))
		return
	}
	subject, _ := sess.SubjectID()
	state := domain.NewStateCache(sess)

	resp, terminate, newState, err := e.engine.ParseLogoutRequest(query, subject, state.Blob())

	if stateErr := state.Set(newState); stateErr != nil {
		e.renderAppError(w, domain.ServiceError("Could not record logout state", stateErr))
		return
	}
	if err != nil {
		if saveErr := e.sessions.Save(w, r, sess); saveErr != nil {
			e.getLogger().Error("persist session after rejected logout request", zap.Error(saveErr))
		}
		e.getLogger().Warn("logout request rejected", zap.Error(err))
		e.metrics.RecordLogout("idp", false)
		e.renderAppError(w, asAppError(err, domain.ErrCodeValidation, "The logout request could not be validated"))
		return
	}

	if terminate {
		if subject != "" {
			if err := domain.NewIdentityCache(sess).Invalidate(subject); err != nil {
				e.renderAppError(w, domain.ServiceError("Could not clear identity", err))
				return
			}
		}
		sess.ClearSubjectID()
	}
	if err := e.sessions.Save(w, r, sess); err != nil {
		e.renderAppError(w, domain.ServiceError("Could not persist session", err))
		return
	}

	if resp == nil {
		e.getLogger().Warn("logout request could not be answered", zap.String("subject", subject))
		e.metrics.RecordLogout("idp", false)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := e.renderer.RenderError(w, ErrorData{
			Title:   "Logout incomplete",
			Message: "The logout request could not be processed.",
		}); err != nil {
			e.getLogger().Error("render logout failure page", zap.Error(err))
		}
		return
	}

	location := resp.Location()
	if location == "" {
		e.renderAppError(w, domain.ContractViolation("a Location header"))
		return
	}

	e.metrics.RecordLogout("idp", terminate)
	if terminate {
		e.getLogger().Info("idp-initiated logout completed", zap.String("subject", subject))
	} else {
		// The IdP still receives its status response; the local session
		// stays untouched.
		e.getLogger().Warn("idp-initiated logout did not match the local session",
			zap.String("subject", subject),
		)
	}
	http.Redirect(w, r, location, http.StatusFound)
}

// Metadata serves this SP's entity descriptor.
func (e *Endpoints) Metadata(w http.ResponseWriter, r *http.Request) {
	validFor := time.Duration(e.cfg.MetadataValidForHours) * time.Hour
	md, err := e.engine.Metadata(validFor)
	if err != nil {
		e.getLogger().Error("build metadata", zap.Error(err))
		e.renderAppError(w, domain.ServiceError("Could not build metadata", err))
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf8")
	w.Write(md)
}

// EchoAttributes renders the cached identity attributes for the current
// subject. It reads the cache without the freshness check so an expired
// record can still be inspected.
func (e *Endpoints) EchoAttributes(w http.ResponseWriter, r *http.Request) {
	sess, err := e.sessions.Load(r)
	if err != nil {
		e.renderAppError(w, domain.ServiceError("Could not load session", err))
		return
	}
	subject, ok := sess.SubjectID()
	if !ok {
		e.renderAppError(w, domain.SessionRequiredError())
		return
	}

	record, ok := domain.NewIdentityCache(sess).Get(subject, false)
	if !ok {
		e.renderAppError(w, domain.ServiceError("No identity information cached for this session", nil))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := e.renderer.RenderAttributes(w, AttributesData{
		SubjectID:   record.SubjectID,
		IdPEntityID: record.IdPEntityID,
		Attributes:  record.Attributes,
	}); err != nil {
		e.getLogger().Error("render attributes page", zap.Error(err))
	}
}

func (e *Endpoints) notifyPostAuthenticated(ev PostAuthenticatedEvent) {
	for _, fn := range e.subscribers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					e.getLogger().Error("post-authentication subscriber panicked",
						zap.Any("panic", rec),
					)
				}
			}()
			fn(ev)
		}()
	}
}

// renderAppError logs the error and renders the matching HTML error page.
func (e *Endpoints) renderAppError(w http.ResponseWriter, appErr *domain.AppError) {
	e.getLogger().Warn("request failed",
		zap.String("code", appErr.Code.String()),
		zap.String("message", appErr.Message),
		zap.Error(appErr.Cause),
	)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(appErr.Code.HTTPStatus())
	if err := e.renderer.RenderError(w, ErrorData{
		Title:   appErr.Code.Title(),
		Message: appErr.Message,
	}); err != nil {
		e.getLogger().Error("render error page", zap.Error(err))
	}
}

// asAppError passes through structured errors and wraps everything else
// under the given code.
func asAppError(err error, code domain.ErrorCode, message string) *domain.AppError {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &domain.AppError{Code: code, Message: message, Cause: err}
}

// loginLabel picks the metrics label for a login, resolving the implicit
// single-IdP case.
func loginLabel(idpEntityID string, idps []domain.IdPInfo) string {
	if idpEntityID != "" {
		return idpEntityID
	}
	if len(idps) == 1 {
		return idps[0].EntityID
	}
	return "unknown"
}

// validateRelayState keeps post-login redirect targets on this host. Only
// plain relative paths survive; anything else falls back to def.
func validateRelayState(relayState, def string) string {
	relayState = strings.TrimSpace(relayState)
	if relayState == "" {
		return def
	}

	// Reject protocol-relative URLs (//evil.com) along with absolute ones.
	if !strings.HasPrefix(relayState, "/") || strings.HasPrefix(relayState, "//") {
		return def
	}

	parsed, err := url.Parse(relayState)
	if err != nil {
		return def
	}
	if parsed.Scheme != "" || parsed.Host != "" {
		return def
	}

	return relayState
}
