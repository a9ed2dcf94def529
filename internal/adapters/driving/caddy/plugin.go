// Package caddyspflow provides a Caddy v2 handler module that mounts the
// SAML service provider endpoints into a Caddy site.
package caddyspflow

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"go.uber.org/zap"

	samlspflow "github.com/philiph/saml-sp-flow"
)

func init() {
	caddy.RegisterModule(SPFlow{})
	httpcaddyfile.RegisterHandlerDirective("saml_sp_flow", parseCaddyfile)
}

// IdPConfig configures one identity provider.
type IdPConfig struct {
	EntityID    string `json:"entity_id"`
	DisplayName string `json:"display_name,omitempty"`
	SSOURL      string `json:"sso_url"`
	SLOURL      string `json:"slo_url,omitempty"`

	// CertFile is the IdP signing certificate (PEM).
	CertFile string `json:"cert_file,omitempty"`
}

// SPFlow is a Caddy HTTP handler module serving the SAML SP endpoints.
// Requests outside the configured endpoint paths pass through to the next
// handler.
type SPFlow struct {
	// EntityID is the SP entity ID. Defaults to the metadata URL.
	EntityID string `json:"entity_id,omitempty"`

	// RootURL is the externally visible base URL of this site (required).
	RootURL string `json:"root_url,omitempty"`

	// KeyFile and CertFile are the SP signing credentials (required).
	KeyFile  string `json:"key_file,omitempty"`
	CertFile string `json:"cert_file,omitempty"`

	// SessionCookieName overrides the session cookie name.
	SessionCookieName string `json:"session_cookie_name,omitempty"`

	// SessionDuration is the session lifetime, e.g. "8h".
	SessionDuration string `json:"session_duration,omitempty"`

	// MetadataValidForHours bounds the advertised metadata validity.
	MetadataValidForHours int `json:"metadata_valid_for_hours,omitempty"`

	// AllowUnsolicited accepts IdP-initiated authentication responses.
	AllowUnsolicited bool `json:"allow_unsolicited,omitempty"`

	// UserDBFile enables the persistent bbolt user backend.
	UserDBFile string `json:"user_db_file,omitempty"`

	// TemplatesDir overrides the embedded HTML templates.
	TemplatesDir string `json:"templates_dir,omitempty"`

	// DefaultLandingURL and PostLogoutURL override the flow destinations.
	DefaultLandingURL string `json:"default_landing_url,omitempty"`
	PostLogoutURL     string `json:"post_logout_url,omitempty"`

	// IdPs are the configured identity providers (at least one required).
	IdPs []IdPConfig `json:"idps,omitempty"`

	// Runtime state (not serialized)
	cfg         samlspflow.Config
	endpoints   *samlspflow.Endpoints
	handler     http.Handler
	boltBackend *samlspflow.BoltBackend
	logger      *zap.Logger
}

// CaddyModule returns the Caddy module information.
func (SPFlow) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.saml_sp_flow",
		New: func() caddy.Module { return new(SPFlow) },
	}
}

// Provision sets up the module.
func (s *SPFlow) Provision(ctx caddy.Context) error {
	s.logger = ctx.Logger()

	samlspflow.RegisterNamespacePrefixes()

	if s.RootURL == "" {
		return fmt.Errorf("root_url is required")
	}
	root, err := url.Parse(s.RootURL)
	if err != nil {
		return fmt.Errorf("parse root_url: %w", err)
	}

	key, err := samlspflow.LoadPrivateKey(s.KeyFile)
	if err != nil {
		return fmt.Errorf("load SP private key: %w", err)
	}
	cert, err := samlspflow.LoadCertificate(s.CertFile)
	if err != nil {
		return fmt.Errorf("load SP certificate: %w", err)
	}

	if len(s.IdPs) == 0 {
		return fmt.Errorf("at least one idp block is required")
	}
	idps := make([]samlspflow.IdPInfo, 0, len(s.IdPs))
	for _, ic := range s.IdPs {
		info := samlspflow.IdPInfo{
			EntityID:    ic.EntityID,
			DisplayName: ic.DisplayName,
			SSOURL:      ic.SSOURL,
			SLOURL:      ic.SLOURL,
		}
		if ic.CertFile != "" {
			idpCert, err := samlspflow.LoadCertificate(ic.CertFile)
			if err != nil {
				return fmt.Errorf("load certificate for idp %s: %w", ic.EntityID, err)
			}
			info.Certificates = []string{base64.StdEncoding.EncodeToString(idpCert.Raw)}
		}
		idps = append(idps, info)
	}

	entityID := s.EntityID
	if entityID == "" {
		u := *root
		u.Path = samlspflow.DefaultMetadataPath
		entityID = u.String()
	}

	engine, err := samlspflow.NewEngine(samlspflow.EngineOptions{
		EntityID:    entityID,
		Key:         key,
		Certificate: cert,
		RootURL:     root,
		IdPs:        idps,
	})
	if err != nil {
		return fmt.Errorf("create protocol engine: %w", err)
	}

	duration := 8 * time.Hour
	if s.SessionDuration != "" {
		duration, err = time.ParseDuration(s.SessionDuration)
		if err != nil {
			return fmt.Errorf("parse session duration: %w", err)
		}
	}
	sessions := samlspflow.NewCookieStore(key, s.SessionCookieName, duration)

	var backend samlspflow.AuthBackend
	if s.UserDBFile != "" {
		bolt, err := samlspflow.NewBoltBackend(s.UserDBFile)
		if err != nil {
			return fmt.Errorf("open user database: %w", err)
		}
		s.boltBackend = bolt
		backend = bolt
	} else {
		backend = samlspflow.NewMemoryBackend()
	}

	s.cfg = samlspflow.Config{
		DefaultLandingURL:     s.DefaultLandingURL,
		PostLogoutURL:         s.PostLogoutURL,
		MetadataValidForHours: s.MetadataValidForHours,
		AllowUnsolicited:      s.AllowUnsolicited,
	}
	s.cfg.SetDefaults()

	endpoints, err := samlspflow.NewEndpoints(s.cfg, engine, sessions, backend)
	if err != nil {
		return fmt.Errorf("create endpoints: %w", err)
	}
	endpoints.SetLogger(s.logger)
	if s.TemplatesDir != "" {
		renderer, err := samlspflow.NewTemplateRendererWithDir(s.TemplatesDir)
		if err != nil {
			return fmt.Errorf("load templates from %s: %w", s.TemplatesDir, err)
		}
		endpoints.SetRenderer(renderer)
	}
	s.endpoints = endpoints
	s.handler = endpoints.Routes()

	s.logger.Info("saml sp flow provisioned",
		zap.String("entity_id", entityID),
		zap.Int("idp_count", len(idps)),
	)
	return nil
}

// Validate ensures the module's configuration is valid.
func (s *SPFlow) Validate() error {
	return s.cfg.Validate()
}

// Cleanup releases the user database, if any.
func (s *SPFlow) Cleanup() error {
	if s.boltBackend != nil {
		return s.boltBackend.Close()
	}
	return nil
}

// ServeHTTP implements caddyhttp.MiddlewareHandler.
func (s *SPFlow) ServeHTTP(w http.ResponseWriter, r *http.Request, next caddyhttp.Handler) error {
	switch r.URL.Path {
	case s.cfg.LoginPath, s.cfg.ACSPath, s.cfg.LogoutPath,
		s.cfg.LogoutServicePath, s.cfg.MetadataPath, s.cfg.AttributesPath:
		s.handler.ServeHTTP(w, r)
		return nil
	}
	return next.ServeHTTP(w, r)
}

// Interface guards
var (
	_ caddy.Module                = (*SPFlow)(nil)
	_ caddy.Provisioner           = (*SPFlow)(nil)
	_ caddy.Validator             = (*SPFlow)(nil)
	_ caddy.CleanerUpper          = (*SPFlow)(nil)
	_ caddyhttp.MiddlewareHandler = (*SPFlow)(nil)
	_ caddyfile.Unmarshaler       = (*SPFlow)(nil)
)
