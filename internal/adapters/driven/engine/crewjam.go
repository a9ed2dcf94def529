package engine

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/crewjam/saml"

	"github.com/philiph/saml-sp-flow/internal/core/domain"
	"github.com/philiph/saml-sp-flow/internal/core/ports"
)

// Default endpoint paths relative to the SP root URL.
const (
	DefaultMetadataPath = "/saml2/metadata"
	DefaultACSPath      = "/saml2/acs"
	DefaultSLOPath      = "/saml2/ls"
)

// Options configures a crewjam/saml backed protocol engine.
type Options struct {
	// EntityID is the SAML entity ID for this SP (required).
	EntityID string

	// Key and Certificate are the SP signing credentials (required).
	Key         *rsa.PrivateKey
	Certificate *x509.Certificate

	// RootURL is the externally visible base URL of this SP (required).
	// Endpoint URLs are derived from it.
	RootURL *url.URL

	// MetadataPath, ACSPath and SLOPath override the default endpoint
	// paths.
	MetadataPath string
	ACSPath      string
	SLOPath      string

	// IdPs are the configured identity providers.
	IdPs []domain.IdPInfo
}

// Engine implements the ProtocolEngine port on top of crewjam/saml.
// The engine keeps no per-session state of its own: the state it needs
// across requests travels in the opaque blob the orchestration layer
// persists for it.
type Engine struct {
	opts Options
	idps []domain.IdPInfo
}

// engineState is the engine's private interpretation of the opaque state
// blob. The orchestration layer persists it verbatim and never decodes it.
type engineState struct {
	PendingLogoutID string `json:"pending_logout_id,omitempty"`
	LogoutIdP       string `json:"logout_idp,omitempty"`
}

func decodeState(blob []byte) engineState {
	var st engineState
	if len(blob) > 0 {
		json.Unmarshal(blob, &st)
	}
	return st
}

func (st engineState) encode() []byte {
	blob, _ := json.Marshal(st)
	return blob
}

// New creates a protocol engine. It registers the namespace prefix table
// before any document can be serialized.
func New(opts Options) (*Engine, error) {
	RegisterNamespacePrefixes()

	if opts.EntityID == "" {
		return nil, errors.New("engine: entity ID is required")
	}
	if opts.Key == nil || opts.Certificate == nil {
		return nil, errors.New("engine: SP key and certificate are required")
	}
	if opts.RootURL == nil {
		return nil, errors.New("engine: root URL is required")
	}
	if opts.MetadataPath == "" {
		opts.MetadataPath = DefaultMetadataPath
	}
	if opts.ACSPath == "" {
		opts.ACSPath = DefaultACSPath
	}
	if opts.SLOPath == "" {
		opts.SLOPath = DefaultSLOPath
	}

	return &Engine{opts: opts, idps: opts.IdPs}, nil
}

// IdentityProviders lists the configured IdPs.
func (e *Engine) IdentityProviders() []domain.IdPInfo {
	out := make([]domain.IdPInfo, len(e.idps))
	copy(out, e.idps)
	return out
}

func (e *Engine) endpointURL(path string) url.URL {
	u := *e.opts.RootURL
	u.Path = path
	return u
}

// serviceProvider creates a crewjam/saml.ServiceProvider for SP
// operations, optionally bound to one IdP's metadata.
func (e *Engine) serviceProvider(idp *domain.IdPInfo) *saml.ServiceProvider {
	sp := &saml.ServiceProvider{
		EntityID:    e.opts.EntityID,
		Key:         e.opts.Key,
		Certificate: e.opts.Certificate,
		MetadataURL: e.endpointURL(e.opts.MetadataPath),
		AcsURL:      e.endpointURL(e.opts.ACSPath),
		SloURL:      e.endpointURL(e.opts.SLOPath),
	}
	if idp != nil {
		sp.IDPMetadata = entityDescriptor(idp)
	}
	return sp
}

// entityDescriptor converts an IdPInfo to the metadata document crewjam
// expects.
func entityDescriptor(idp *domain.IdPInfo) *saml.EntityDescriptor {
	ssoBinding := idp.SSOBinding
	if ssoBinding == "" {
		ssoBinding = saml.HTTPRedirectBinding
	}

	desc := saml.IDPSSODescriptor{
		SingleSignOnServices: []saml.Endpoint{{
			Binding:  ssoBinding,
			Location: idp.SSOURL,
		}},
	}

	if idp.SLOURL != "" {
		sloBinding := idp.SLOBinding
		if sloBinding == "" {
			sloBinding = saml.HTTPRedirectBinding
		}
		desc.SingleLogoutServices = []saml.Endpoint{{
			Binding:  sloBinding,
			Location: idp.SLOURL,
		}}
	}

	for _, certData := range idp.Certificates {
		desc.KeyDescriptors = append(desc.KeyDescriptors, saml.KeyDescriptor{
			Use: "signing",
			KeyInfo: saml.KeyInfo{
				X509Data: saml.X509Data{
					X509Certificates: []saml.X509Certificate{{Data: certData}},
				},
			},
		})
	}

	return &saml.EntityDescriptor{
		EntityID:          idp.EntityID,
		IDPSSODescriptors: []saml.IDPSSODescriptor{desc},
	}
}

// resolveIdP picks the target IdP for a login. An empty entity ID resolves
// only when exactly one IdP is configured.
func (e *Engine) resolveIdP(entityID string) (*domain.IdPInfo, error) {
	if entityID == "" {
		switch len(e.idps) {
		case 1:
			return &e.idps[0], nil
		case 0:
			return nil, domain.ConfigError("no identity provider is configured", nil)
		default:
			return nil, domain.ConfigError("identity provider selection is ambiguous", nil)
		}
	}
	for i := range e.idps {
		if e.idps[i].EntityID == entityID {
			return &e.idps[i], nil
		}
	}
	return nil, domain.ConfigError("unknown identity provider "+entityID, nil)
}

func (e *Engine) findIdP(entityID string) *domain.IdPInfo {
	for i := range e.idps {
		if e.idps[i].EntityID == entityID {
			return &e.idps[i]
		}
	}
	return nil
}

// Authenticate builds an authentication request for the resolved IdP and
// returns the issued request ID with the redirect location.
func (e *Engine) Authenticate(idpEntityID, relayState string, binding domain.Binding) (*domain.AuthnRedirect, error) {
	if binding != domain.BindingHTTPRedirect {
		return nil, domain.ConfigError("only the HTTP-Redirect binding is supported for login", nil)
	}

	idp, err := e.resolveIdP(idpEntityID)
	if err != nil {
		return nil, err
	}

	sp := e.serviceProvider(idp)
	authReq, err := sp.MakeAuthenticationRequest(idp.SSOURL, saml.HTTPRedirectBinding, saml.HTTPPostBinding)
	if err != nil {
		return nil, err
	}

	redirectURL, err := authReq.Redirect(relayState, sp)
	if err != nil {
		return nil, err
	}

	return &domain.AuthnRedirect{
		RequestID: authReq.ID,
		Location:  redirectURL.String(),
	}, nil
}

// ParseAuthnResponse validates a raw authentication response against the
// outstanding request identifiers and extracts the asserted identity.
func (e *Engine) ParseAuthnResponse(samlResponse string, outstandingIDs []string) (*domain.AssertionInfo, error) {
	raw, err := base64.StdEncoding.DecodeString(samlResponse)
	if err != nil {
		return nil, domain.ValidationError("response payload is not valid base64", err)
	}

	var lastErr error
	for i := range e.idps {
		idp := &e.idps[i]
		sp := e.serviceProvider(idp)
		assertion, err := sp.ParseXMLResponse(raw, outstandingIDs)
		if err != nil {
			lastErr = err
			continue
		}
		return assertionInfo(assertion, idp.EntityID), nil
	}
	if lastErr == nil {
		lastErr = errors.New("no identity provider is configured")
	}
	return nil, domain.ValidationError("response validation failed", lastErr)
}

// assertionInfo extracts the fields this layer cares about from a
// validated assertion.
func assertionInfo(assertion *saml.Assertion, idpEntityID string) *domain.AssertionInfo {
	info := &domain.AssertionInfo{
		IdPEntityID: idpEntityID,
		Attributes:  make(map[string][]string),
	}

	if assertion.Subject != nil {
		if assertion.Subject.NameID != nil {
			info.SubjectID = assertion.Subject.NameID.Value
		}
		for _, sc := range assertion.Subject.SubjectConfirmations {
			if sc.SubjectConfirmationData != nil && sc.SubjectConfirmationData.InResponseTo != "" {
				info.CorrelationID = sc.SubjectConfirmationData.InResponseTo
				break
			}
		}
	}

	for _, stmt := range assertion.AttributeStatements {
		for _, attr := range stmt.Attributes {
			// Use FriendlyName if available, otherwise use Name
			key := attr.FriendlyName
			if key == "" {
				key = attr.Name
			}
			for _, v := range attr.Values {
				info.Attributes[key] = append(info.Attributes[key], v.Value)
			}
		}
	}

	if assertion.Conditions != nil && !assertion.Conditions.NotOnOrAfter.IsZero() {
		deadline := assertion.Conditions.NotOnOrAfter
		info.NotOnOrAfter = &deadline
	}

	for _, stmt := range assertion.AuthnStatements {
		if stmt.SessionIndex != "" {
			info.SessionIndex = stmt.SessionIndex
			break
		}
	}

	return info
}

// GlobalLogout issues a logout request to the IdP the subject can be
// logged out from and records the pending exchange in the state blob.
func (e *Engine) GlobalLogout(subjectID string, state []byte) (*domain.EngineResponse, []byte, error) {
	var idp *domain.IdPInfo
	for i := range e.idps {
		if e.idps[i].SLOURL != "" {
			idp = &e.idps[i]
			break
		}
	}
	if idp == nil {
		return nil, state, domain.ConfigError("no identity provider supports single logout", nil)
	}

	sp := e.serviceProvider(idp)
	req, err := sp.MakeLogoutRequest(sp.GetSLOBindingLocation(saml.HTTPRedirectBinding), subjectID)
	if err != nil {
		return nil, state, err
	}
	redirectURL := req.Redirect("")

	st := decodeState(state)
	st.PendingLogoutID = req.ID
	st.LogoutIdP = idp.EntityID

	header := http.Header{}
	header.Set("Location", redirectURL.String())
	return &domain.EngineResponse{
		CorrelationID: req.ID,
		StatusCode:    http.StatusFound,
		Header:        header,
	}, st.encode(), nil
}

// ParseLogoutResponse validates an IdP's answer to a logout request issued
// by GlobalLogout. The returned state clears the pending exchange when the
// response matches it.
func (e *Engine) ParseLogoutResponse(payload string, binding domain.Binding, state []byte) (domain.LogoutOutcome, []byte, error) {
	st := decodeState(state)
	if st.PendingLogoutID == "" {
		return domain.LogoutOutcome{}, state, domain.ValidationError("no logout request is pending", nil)
	}

	doc, err := decodeRedirectMessage(payload)
	if err != nil {
		return domain.LogoutOutcome{}, state, domain.ValidationError("logout response payload is unreadable", err)
	}
	var resp logoutResponseData
	if err := xml.Unmarshal(doc, &resp); err != nil {
		return domain.LogoutOutcome{}, state, domain.ValidationError("logout response is not well formed", err)
	}
	if resp.InResponseTo != st.PendingLogoutID {
		// Unrelated response; the pending exchange stays open.
		return domain.LogoutOutcome{}, state, domain.ValidationError("logout response does not match the pending request", nil)
	}

	idp := e.findIdP(st.LogoutIdP)
	if idp == nil && len(e.idps) > 0 {
		idp = &e.idps[0]
	}

	outcome := domain.LogoutOutcome{Status: resp.Status.StatusCode.Value}
	if idp != nil {
		sp := e.serviceProvider(idp)
		var verr error
		if binding == domain.BindingHTTPPost {
			verr = sp.ValidateLogoutResponseForm(payload)
		} else {
			verr = sp.ValidateLogoutResponseRedirect(payload)
		}
		outcome.Success = verr == nil && outcome.Status == statusSuccess
	}

	st.PendingLogoutID = ""
	st.LogoutIdP = ""
	return outcome, st.encode(), nil
}

// ParseLogoutRequest answers an IdP-initiated logout request. The success
// flag reports whether the local session should be terminated; a non-nil
// response with success=false is the soft-failure send-back leg.
func (e *Engine) ParseLogoutRequest(query url.Values, subjectID string, state []byte) (*domain.EngineResponse, bool, []byte, error) {
	payload := query.Get("SAMLRequest")
	if payload == "" {
		return nil, false, state, domain.ValidationError("missing SAMLRequest parameter", nil)
	}

	doc, err := decodeRedirectMessage(payload)
	if err != nil {
		return nil, false, state, domain.ValidationError("logout request payload is unreadable", err)
	}
	var req logoutRequestData
	if err := xml.Unmarshal(doc, &req); err != nil {
		return nil, false, state, domain.ValidationError("logout request is not well formed", err)
	}

	idp := e.findIdP(req.Issuer)
	if idp == nil || idp.SLOURL == "" {
		// Nothing to send a response back to.
		return nil, false, state, nil
	}

	success := subjectID != "" && req.NameID.Value == subjectID
	status := statusSuccess
	if !success {
		status = statusRequester
	}

	resp := newLogoutResponse(e.opts.EntityID, idp.SLOURL, req.ID, status)
	location, err := resp.Redirect(query.Get("RelayState"))
	if err != nil {
		return nil, false, state, err
	}

	header := http.Header{}
	header.Set("Location", location.String())
	return &domain.EngineResponse{
		CorrelationID: req.ID,
		StatusCode:    http.StatusFound,
		Header:        header,
	}, success, state, nil
}

// Metadata generates this SP's entity descriptor, valid for the given
// duration.
func (e *Engine) Metadata(validFor time.Duration) ([]byte, error) {
	sp := e.serviceProvider(nil)
	sp.MetadataValidDuration = validFor

	out, err := xml.MarshalIndent(sp.Metadata(), "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// Ensure Engine implements ports.ProtocolEngine
var _ ports.ProtocolEngine = (*Engine)(nil)
