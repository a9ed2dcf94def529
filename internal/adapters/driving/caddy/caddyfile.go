package caddyspflow

import (
	"strconv"

	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
)

// parseCaddyfile sets up the handler from Caddyfile tokens.
//
// Syntax:
//
//	saml_sp_flow {
//	    entity_id <entity_id>
//	    root_url <url>
//	    key_file <path>
//	    cert_file <path>
//	    session_cookie_name <name>
//	    session_duration <duration>
//	    metadata_valid_for_hours <hours>
//	    allow_unsolicited
//	    user_db_file <path>
//	    templates_dir <path>
//	    default_landing_url <url>
//	    post_logout_url <url>
//	    idp {
//	        entity_id <entity_id>
//	        display_name <name>
//	        sso_url <url>
//	        slo_url <url>
//	        cert_file <path>
//	    }
//	}
func parseCaddyfile(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
	var s SPFlow
	err := s.UnmarshalCaddyfile(h.Dispenser)
	return &s, err
}

// UnmarshalCaddyfile implements caddyfile.Unmarshaler.
func (s *SPFlow) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	d.Next() // consume directive name

	for d.NextBlock(0) {
		switch d.Val() {
		case "entity_id":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.EntityID = d.Val()

		case "root_url":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.RootURL = d.Val()

		case "key_file":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.KeyFile = d.Val()

		case "cert_file":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.CertFile = d.Val()

		case "session_cookie_name":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.SessionCookieName = d.Val()

		case "session_duration":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.SessionDuration = d.Val()

		case "metadata_valid_for_hours":
			if !d.NextArg() {
				return d.ArgErr()
			}
			hours, err := strconv.Atoi(d.Val())
			if err != nil {
				return d.Errf("invalid metadata_valid_for_hours: %v", err)
			}
			s.MetadataValidForHours = hours

		case "allow_unsolicited":
			s.AllowUnsolicited = true

		case "user_db_file":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.UserDBFile = d.Val()

		case "templates_dir":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.TemplatesDir = d.Val()

		case "default_landing_url":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.DefaultLandingURL = d.Val()

		case "post_logout_url":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.PostLogoutURL = d.Val()

		case "idp":
			var idp IdPConfig
			for d.NextBlock(1) {
				switch d.Val() {
				case "entity_id":
					if !d.NextArg() {
						return d.ArgErr()
					}
					idp.EntityID = d.Val()

				case "display_name":
					if !d.NextArg() {
						return d.ArgErr()
					}
					idp.DisplayName = d.Val()

				case "sso_url":
					if !d.NextArg() {
						return d.ArgErr()
					}
					idp.SSOURL = d.Val()

				case "slo_url":
					if !d.NextArg() {
						return d.ArgErr()
					}
					idp.SLOURL = d.Val()

				case "cert_file":
					if !d.NextArg() {
						return d.ArgErr()
					}
					idp.CertFile = d.Val()

				default:
					return d.Errf("unknown idp subdirective: %s", d.Val())
				}
			}
			if idp.EntityID == "" || idp.SSOURL == "" {
				return d.Err("idp block requires entity_id and sso_url")
			}
			s.IdPs = append(s.IdPs, idp)

		default:
			return d.Errf("unknown subdirective: %s", d.Val())
		}
	}

	return nil
}
