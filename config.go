package samlspflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/philiph/saml-sp-flow/internal/core/domain"
)

// Default endpoint paths. They mirror the conventional SP layout so IdP-side
// configuration stays predictable.
const (
	DefaultLoginPath         = "/saml2/login"
	DefaultACSPath           = "/saml2/acs"
	DefaultLogoutPath        = "/saml2/logout"
	DefaultLogoutServicePath = "/saml2/ls"
	DefaultMetadataPath      = "/saml2/metadata"
	DefaultAttributesPath    = "/saml2/attributes"
)

// Config holds the endpoint-layer configuration. Loading it from a file or
// environment is the caller's concern; this package only validates and
// applies defaults.
type Config struct {
	// DefaultLandingURL is where a login without an explicit destination
	// ends up. Defaults to "/".
	DefaultLandingURL string

	// PostLogoutURL is where the browser is sent after a successful
	// SP-initiated logout. Defaults to "/".
	PostLogoutURL string

	// MetadataValidForHours bounds the advertised validity of the SP
	// metadata document. Defaults to 24.
	MetadataValidForHours int

	// AllowUnsolicited accepts authentication responses whose correlation
	// identifier is not among the outstanding queries. Off by default;
	// unsolicited responses are rejected.
	AllowUnsolicited bool

	// Endpoint paths, all defaulted to the /saml2/* layout above.
	LoginPath         string
	ACSPath           string
	LogoutPath        string
	LogoutServicePath string
	MetadataPath      string
	AttributesPath    string

	// AttributeMapping maps asserted attribute names to local principal
	// fields. Defaults to {"uid": ["username"]}.
	AttributeMapping Setting[domain.AttributeMapping]

	// CreateUnknownUser provisions a principal for subjects the backend
	// has never seen. Defaults to true.
	CreateUnknownUser Setting[bool]

	attributeMappingSet  bool
	createUnknownUserSet bool
}

// SetAttributeMapping overrides the default attribute mapping.
func (c *Config) SetAttributeMapping(s Setting[domain.AttributeMapping]) {
	c.AttributeMapping = s
	c.attributeMappingSet = true
}

// SetCreateUnknownUser overrides the default provisioning policy.
func (c *Config) SetCreateUnknownUser(s Setting[bool]) {
	c.CreateUnknownUser = s
	c.createUnknownUserSet = true
}

// SetDefaults fills in zero-valued fields.
func (c *Config) SetDefaults() {
	if c.DefaultLandingURL == "" {
		c.DefaultLandingURL = "/"
	}
	if c.PostLogoutURL == "" {
		c.PostLogoutURL = "/"
	}
	if c.MetadataValidForHours == 0 {
		c.MetadataValidForHours = 24
	}
	if c.LoginPath == "" {
		c.LoginPath = DefaultLoginPath
	}
	if c.ACSPath == "" {
		c.ACSPath = DefaultACSPath
	}
	if c.LogoutPath == "" {
		c.LogoutPath = DefaultLogoutPath
	}
	if c.LogoutServicePath == "" {
		c.LogoutServicePath = DefaultLogoutServicePath
	}
	if c.MetadataPath == "" {
		c.MetadataPath = DefaultMetadataPath
	}
	if c.AttributesPath == "" {
		c.AttributesPath = DefaultAttributesPath
	}
	if !c.attributeMappingSet {
		c.AttributeMapping = Static(domain.AttributeMapping{"uid": {"username"}})
		c.attributeMappingSet = true
	}
	if !c.createUnknownUserSet {
		c.CreateUnknownUser = Static(true)
		c.createUnknownUserSet = true
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	paths := map[string]string{
		"login":          c.LoginPath,
		"acs":            c.ACSPath,
		"logout":         c.LogoutPath,
		"logout_service": c.LogoutServicePath,
		"metadata":       c.MetadataPath,
		"attributes":     c.AttributesPath,
	}
	seen := make(map[string]string, len(paths))
	for name, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s path %q must start with /", name, p)
		}
		if other, dup := seen[p]; dup {
			return fmt.Errorf("%s path %q collides with %s path", name, p, other)
		}
		seen[p] = name
	}
	if c.MetadataValidForHours < 0 {
		return errors.New("metadata validity must not be negative")
	}
	return nil
}
