// Command spflow-demo runs a standalone demo service provider against a
// configured identity provider.
// Usage: go run ./cmd/spflow-demo -root-url http://localhost:9080 ...
package main

import (
	"encoding/base64"
	"flag"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	samlspflow "github.com/philiph/saml-sp-flow"
)

func main() {
	addr := flag.String("addr", ":9080", "Listen address")
	rootURL := flag.String("root-url", "http://localhost:9080", "Externally visible base URL of this SP")
	entityID := flag.String("entity-id", "", "SP entity ID (defaults to root URL + metadata path)")
	keyPath := flag.String("key", "sp.key", "Path to the SP signing key (PEM)")
	certPath := flag.String("cert", "sp.crt", "Path to the SP signing certificate (PEM)")
	idpEntityID := flag.String("idp-entity-id", "", "IdP entity ID")
	idpSSOURL := flag.String("idp-sso-url", "", "IdP single sign-on URL")
	idpSLOURL := flag.String("idp-slo-url", "", "IdP single logout URL (optional)")
	idpCertPath := flag.String("idp-cert", "", "Path to the IdP signing certificate (PEM, optional)")
	userDB := flag.String("user-db", "", "Path to a bbolt user database (empty for in-memory)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}
	defer logger.Sync()

	samlspflow.RegisterNamespacePrefixes()

	root, err := url.Parse(*rootURL)
	if err != nil {
		logger.Fatal("parse root URL", zap.Error(err))
	}

	key, err := samlspflow.LoadPrivateKey(*keyPath)
	if err != nil {
		logger.Fatal("load SP key", zap.Error(err))
	}
	cert, err := samlspflow.LoadCertificate(*certPath)
	if err != nil {
		logger.Fatal("load SP certificate", zap.Error(err))
	}

	if *idpEntityID == "" || *idpSSOURL == "" {
		logger.Fatal("both -idp-entity-id and -idp-sso-url are required")
	}
	idp := samlspflow.IdPInfo{
		EntityID: *idpEntityID,
		SSOURL:   *idpSSOURL,
		SLOURL:   *idpSLOURL,
	}
	if *idpCertPath != "" {
		idpCert, err := loadCertBase64(*idpCertPath)
		if err != nil {
			logger.Fatal("load IdP certificate", zap.Error(err))
		}
		idp.Certificates = []string{idpCert}
	}

	spEntityID := *entityID
	if spEntityID == "" {
		spEntityID = strings.TrimRight(*rootURL, "/") + samlspflow.DefaultMetadataPath
	}

	engine, err := samlspflow.NewEngine(samlspflow.EngineOptions{
		EntityID:    spEntityID,
		Key:         key,
		Certificate: cert,
		RootURL:     root,
		IdPs:        []samlspflow.IdPInfo{idp},
	})
	if err != nil {
		logger.Fatal("create protocol engine", zap.Error(err))
	}

	var backend samlspflow.AuthBackend
	if *userDB != "" {
		bolt, err := samlspflow.NewBoltBackend(*userDB)
		if err != nil {
			logger.Fatal("open user database", zap.Error(err))
		}
		defer bolt.Close()
		backend = bolt
	} else {
		backend = samlspflow.NewMemoryBackend()
	}

	sessions := samlspflow.NewCookieStore(key, "", 8*time.Hour)

	endpoints, err := samlspflow.NewEndpoints(samlspflow.Config{}, engine, sessions, backend)
	if err != nil {
		logger.Fatal("create endpoints", zap.Error(err))
	}
	endpoints.SetLogger(logger)
	endpoints.SetMetrics(samlspflow.NewPrometheusMetricsRecorder())
	endpoints.OnPostAuthenticated(func(ev samlspflow.PostAuthenticatedEvent) {
		logger.Info("user signed in",
			zap.String("username", ev.Principal.Username),
			zap.String("idp", ev.Assertion.IdPEntityID),
		)
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/", endpoints.Routes())

	logger.Info("demo SP listening",
		zap.String("addr", *addr),
		zap.String("entity_id", spEntityID),
	)
	if err := http.ListenAndServe(*addr, r); err != nil {
		logger.Fatal("serve", zap.Error(err))
	}
}

// loadCertBase64 reads a PEM certificate and returns its DER bytes encoded
// the way IdP metadata carries them.
func loadCertBase64(path string) (string, error) {
	cert, err := samlspflow.LoadCertificate(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(cert.Raw), nil
}
