package engine

import "sync"

// SAML namespace URIs used by the documents this package serializes.
const (
	NSAssertion  = "urn:oasis:names:tc:SAML:2.0:assertion"
	NSProtocol   = "urn:oasis:names:tc:SAML:2.0:protocol"
	NSMetadata   = "urn:oasis:names:tc:SAML:2.0:metadata"
	NSSignature  = "http://www.w3.org/2000/09/xmldsig#"
	NSEncryption = "http://www.w3.org/2001/04/xmlenc#"
)

var (
	prefixOnce sync.Once
	prefixes   map[string]string
)

// RegisterNamespacePrefixes installs the canonical prefix table used when
// serializing protocol documents. It is an explicit, idempotent
// initialization call: process startup (or an engine constructor) invokes
// it before any document is serialized, rather than relying on an import
// side effect.
func RegisterNamespacePrefixes() {
	prefixOnce.Do(func() {
		prefixes = map[string]string{
			NSAssertion:  "saml",
			NSProtocol:   "samlp",
			NSMetadata:   "md",
			NSSignature:  "ds",
			NSEncryption: "xenc",
		}
	})
}

// namespacePrefix returns the registered prefix for a namespace URI.
func namespacePrefix(uri string) string {
	RegisterNamespacePrefixes()
	return prefixes[uri]
}
