package samlspflow

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/philiph/saml-sp-flow/internal/core/domain"
)

//go:embed templates/*.html
var embeddedTemplates embed.FS

// WAYFData holds data for rendering the IdP selection page.
type WAYFData struct {
	IdPs []domain.IdPInfo
	// Next is the destination the browser lands on after authentication;
	// it is echoed back through the chosen login link.
	Next string
}

// ErrorData holds data for rendering error page templates.
type ErrorData struct {
	Title   string
	Message string
}

// NoticeData holds data for the already-authenticated page.
type NoticeData struct {
	SubjectID string
	Next      string
}

// AttributesData holds data for the attribute diagnostic page.
type AttributesData struct {
	SubjectID   string
	IdPEntityID string
	Attributes  map[string][]string
}

var templateNames = []string{"wayf.html", "error.html", "auth_notice.html", "attributes.html"}

// TemplateRenderer renders the HTML pages the endpoint controllers serve.
type TemplateRenderer struct {
	templates map[string]*template.Template
}

// NewTemplateRenderer creates a renderer using embedded templates.
func NewTemplateRenderer() (*TemplateRenderer, error) {
	r := &TemplateRenderer{templates: make(map[string]*template.Template)}
	for _, name := range templateNames {
		tmpl, err := template.ParseFS(embeddedTemplates, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse embedded %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// NewTemplateRendererWithDir creates a renderer that loads custom templates
// from the given directory, falling back to embedded for missing files.
func NewTemplateRendererWithDir(dir string) (*TemplateRenderer, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("templates directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("templates path is not a directory: %s", dir)
	}

	r := &TemplateRenderer{templates: make(map[string]*template.Template)}
	for _, name := range templateNames {
		tmpl, err := loadTemplate(dir, name)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

func loadTemplate(dir, name string) (*template.Template, error) {
	customPath := filepath.Join(dir, name)
	if _, err := os.Stat(customPath); err == nil {
		tmpl, err := template.ParseFiles(customPath)
		if err != nil {
			return nil, fmt.Errorf("parse custom %s: %w", name, err)
		}
		return tmpl, nil
	}
	tmpl, err := template.ParseFS(embeddedTemplates, "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("parse embedded %s: %w", name, err)
	}
	return tmpl, nil
}

// RenderWAYF renders the IdP selection page.
func (r *TemplateRenderer) RenderWAYF(w io.Writer, data WAYFData) error {
	return r.templates["wayf.html"].Execute(w, data)
}

// RenderError renders an error page.
func (r *TemplateRenderer) RenderError(w io.Writer, data ErrorData) error {
	return r.templates["error.html"].Execute(w, data)
}

// RenderAuthNotice renders the already-authenticated page.
func (r *TemplateRenderer) RenderAuthNotice(w io.Writer, data NoticeData) error {
	return r.templates["auth_notice.html"].Execute(w, data)
}

// RenderAttributes renders the attribute diagnostic page.
func (r *TemplateRenderer) RenderAttributes(w io.Writer, data AttributesData) error {
	return r.templates["attributes.html"].Execute(w, data)
}
