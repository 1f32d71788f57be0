// Package templates renders the map page and the HTML fragments pushed to
// it over SSE.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"path/filepath"

	"github.com/joeblew999/quakemap/internal/service"
)

//go:embed html/*.html
var embedded embed.FS

// PageData is the input of the "page" template.
type PageData struct {
	Title  string
	View   service.View
	Status service.Status
	Ready  []string // overlay IDs already loaded when the page was rendered
}

// Renderer manages HTML templates. It is immutable and safe for concurrent use.
type Renderer struct {
	templates *template.Template
}

// New creates a renderer. An empty dir uses the built-in templates;
// otherwise every *.html file in dir is parsed.
func New(dir string) (*Renderer, error) {
	tmpl, err := parse(dir)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

func parse(dir string) (*template.Template, error) {
	if dir == "" {
		return template.New("").ParseFS(embedded, "html/*.html")
	}
	return template.New("").ParseGlob(filepath.Join(dir, "*.html"))
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	return r.templates.ExecuteTemplate(buf, name, data)
}
