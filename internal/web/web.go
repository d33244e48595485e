// Package web renders the server side pages from embedded templates.
package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"crm/internal/platform/models"
)

//go:embed templates/*.html
var templatesFS embed.FS

const layoutFile = "templates/layout.html"

// ErrRender marks a failure that happened before anything was written to
// the response.
var ErrRender = errors.New("render page")

type SignInPage struct {
	Next        string
	Tab         string // "signin" or "signup"
	Email       string
	FieldErrors map[string]string
	Error       string
	Notice      string
}

type AppPage struct {
	Email         string
	Organizations []models.Organization
	AdminOrgs     []models.Organization
}

type ErrorPage struct {
	Title   string
	Message string
}

// Renderer holds one parsed template set per page, each combined with the
// shared layout.
type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	return NewRendererFS(templatesFS)
}

// NewRendererFS parses templates/layout.html and every other
// templates/*.html page found in fsys.
func NewRendererFS(fsys fs.FS) (*Renderer, error) {
	files, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, err
	}

	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, file := range files {
		if file == layoutFile {
			continue
		}
		name := strings.TrimSuffix(path.Base(file), ".html")
		tmpl, err := template.New(name).ParseFS(fsys, layoutFile, file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

// Render executes the named page into a buffer first so a template error
// never leaves a half written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data interface{}) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("%w %q: unknown page", ErrRender, name)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("%w %q: %w", ErrRender, name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
