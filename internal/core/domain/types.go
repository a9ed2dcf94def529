package domain

import (
	"net/http"
	"time"
)

// Binding identifies the HTTP transport used to carry a protocol message.
type Binding string

const (
	BindingHTTPRedirect Binding = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"
	BindingHTTPPost     Binding = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
)

// IdPInfo describes one configured identity provider.
type IdPInfo struct {
	EntityID    string `json:"entity_id"`
	DisplayName string `json:"display_name,omitempty"`

	SSOURL     string `json:"sso_url"`
	SSOBinding string `json:"sso_binding,omitempty"`
	SLOURL     string `json:"slo_url,omitempty"`
	SLOBinding string `json:"slo_binding,omitempty"`

	// Certificates holds base64 DER signing certificates from the IdP's
	// metadata.
	Certificates []string `json:"certificates,omitempty"`
}

// Name returns the display name, falling back to the entity ID.
func (i IdPInfo) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.EntityID
}

// AuthnRedirect is the engine's answer to a login initiation: the request
// identifier it issued and the IdP URL the browser must be redirected to.
type AuthnRedirect struct {
	RequestID string
	Location  string
}

// AssertionInfo is the validated content of an authentication response.
type AssertionInfo struct {
	// CorrelationID is the request identifier this response answers
	// (InResponseTo). Empty for unsolicited responses.
	CorrelationID string

	SubjectID    string
	IdPEntityID  string
	SessionIndex string
	Attributes   map[string][]string
	NotOnOrAfter *time.Time
}

// EngineResponse is the HTTP-shaped output of an engine logout operation:
// a status, headers (the redirect target lives in "Location") and an
// optional body. The orchestration layer performs only a presence check on
// the fields it depends on.
type EngineResponse struct {
	CorrelationID string
	StatusCode    int
	Header        http.Header
	Body          []byte
}

// Location returns the redirect target carried by the response, if any.
func (r *EngineResponse) Location() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get("Location")
}

// LogoutOutcome is the engine's verdict on a logout response from an IdP.
type LogoutOutcome struct {
	Success bool
	// Status is the protocol-level status code reported by the IdP.
	Status string
}

// AttributeMapping maps an asserted attribute name to the local principal
// fields it populates, e.g. {"uid": {"username"}}.
type AttributeMapping map[string][]string

// Principal is a local user account resolved from asserted attributes.
type Principal struct {
	ID         string              `json:"id"`
	Username   string              `json:"username"`
	Attributes map[string][]string `json:"attributes,omitempty"`
}

// MapAttributes applies an attribute mapping to asserted attributes.
// It returns the username derived from the mapping (empty if the mapping
// yields none) and the local field values.
func MapAttributes(info *AssertionInfo, mapping AttributeMapping) (string, map[string][]string) {
	fields := make(map[string][]string)
	username := ""
	for samlAttr, locals := range mapping {
		values, ok := info.Attributes[samlAttr]
		if !ok || len(values) == 0 {
			continue
		}
		for _, local := range locals {
			fields[local] = values
			if local == "username" && username == "" {
				username = values[0]
			}
		}
	}
	return username, fields
}
