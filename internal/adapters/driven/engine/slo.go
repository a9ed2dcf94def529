package engine

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
)

// Single-logout status values.
// See http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf
const (
	statusSuccess   = "urn:oasis:names:tc:SAML:2.0:status:Success"
	statusRequester = "urn:oasis:names:tc:SAML:2.0:status:Requester"
)

const issueInstantFormat = "2006-01-02T15:04:05.999Z07:00"

// logoutResponse is the send-back leg of an IdP-initiated logout exchange.
type logoutResponse struct {
	ID           string
	InResponseTo string
	Destination  string
	Issuer       string
	IssueInstant time.Time
	StatusCode   string
}

func newLogoutResponse(issuer, destination, inResponseTo, statusCode string) *logoutResponse {
	return &logoutResponse{
		ID:           "id-" + uuid.NewString(),
		InResponseTo: inResponseTo,
		Destination:  destination,
		Issuer:       issuer,
		IssueInstant: time.Now().UTC(),
		StatusCode:   statusCode,
	}
}

// Element returns an etree.Element representing the response in XML form,
// using the registered namespace prefixes.
func (r *logoutResponse) Element() *etree.Element {
	samlp := namespacePrefix(NSProtocol)
	saml := namespacePrefix(NSAssertion)

	el := etree.NewElement(samlp + ":LogoutResponse")
	el.CreateAttr("xmlns:"+saml, NSAssertion)
	el.CreateAttr("xmlns:"+samlp, NSProtocol)
	el.CreateAttr("ID", r.ID)
	el.CreateAttr("Version", "2.0")
	el.CreateAttr("IssueInstant", r.IssueInstant.Format(issueInstantFormat))
	if r.InResponseTo != "" {
		el.CreateAttr("InResponseTo", r.InResponseTo)
	}
	if r.Destination != "" {
		el.CreateAttr("Destination", r.Destination)
	}

	issuer := el.CreateElement(saml + ":Issuer")
	issuer.CreateAttr("Format", "urn:oasis:names:tc:SAML:2.0:nameid-format:entity")
	issuer.SetText(r.Issuer)

	status := el.CreateElement(samlp + ":Status")
	statusCode := status.CreateElement(samlp + ":StatusCode")
	statusCode.CreateAttr("Value", r.StatusCode)

	return el
}

// Redirect returns a URL suitable for the redirect binding: the document is
// deflated, base64 encoded and attached as the SAMLResponse parameter.
func (r *logoutResponse) Redirect(relayState string) (*url.URL, error) {
	var buf bytes.Buffer
	b64 := base64.NewEncoder(base64.StdEncoding, &buf)
	deflate, err := flate.NewWriter(b64, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	doc.SetRoot(r.Element())
	if _, err := doc.WriteTo(deflate); err != nil {
		return nil, err
	}
	if err := deflate.Close(); err != nil {
		return nil, err
	}
	if err := b64.Close(); err != nil {
		return nil, err
	}

	rv, err := url.Parse(r.Destination)
	if err != nil {
		return nil, fmt.Errorf("parse logout destination: %w", err)
	}
	query := rv.Query()
	query.Set("SAMLResponse", buf.String())
	if relayState != "" {
		query.Set("RelayState", relayState)
	}
	rv.RawQuery = query.Encode()
	return rv, nil
}

// logoutRequestData is the subset of an incoming LogoutRequest this layer
// inspects before answering it.
type logoutRequestData struct {
	XMLName      xml.Name   `xml:"urn:oasis:names:tc:SAML:2.0:protocol LogoutRequest"`
	ID           string     `xml:",attr"`
	Destination  string     `xml:",attr"`
	Issuer       string     `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	NameID       nameIDData `xml:"urn:oasis:names:tc:SAML:2.0:assertion NameID"`
	SessionIndex []string   `xml:"urn:oasis:names:tc:SAML:2.0:protocol SessionIndex"`
}

type nameIDData struct {
	Format string `xml:"Format,attr"`
	Value  string `xml:",chardata"`
}

// logoutResponseData is the subset of an incoming LogoutResponse needed for
// correlation and status inspection; full validation stays with the
// protocol library.
type logoutResponseData struct {
	XMLName      xml.Name         `xml:"urn:oasis:names:tc:SAML:2.0:protocol LogoutResponse"`
	ID           string           `xml:",attr"`
	InResponseTo string           `xml:",attr"`
	Status       logoutStatusData `xml:"urn:oasis:names:tc:SAML:2.0:protocol Status"`
}

type logoutStatusData struct {
	StatusCode logoutStatusCodeData `xml:"urn:oasis:names:tc:SAML:2.0:protocol StatusCode"`
}

type logoutStatusCodeData struct {
	Value string `xml:"Value,attr"`
}

// decodeRedirectMessage reverses the redirect binding encoding. Documents
// carried by the POST binding are base64 only, so an inflate failure falls
// back to the decoded bytes.
func decodeRedirectMessage(payload string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	inflated, err := io.ReadAll(flate.NewReader(bytes.NewReader(decoded)))
	if err == nil && len(inflated) > 0 {
		return inflated, nil
	}
	return decoded, nil
}
