// Package handler contains the HTTP handlers of the registry API.
//
// Handlers are the glue between HTTP and the service layer:
//  1. parse the request (query parameters for reads, a JSON body for writes)
//  2. call one service method with the caller's account ID from the context
//  3. write the JSON envelope or map the error with writeError
//
// Business rules never live here; the same service methods back the CLI's
// expectations and the build workers.
package handler

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/model"
	"github.com/sakif/circuitpad/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// EmbedHandler renders the read-only preview page that share snippets point
// an iframe at. Templates are parsed once at startup and reused.
type EmbedHandler struct {
	templates *template.Template
	packages  *service.PackageService
	files     *service.FileService
	logger    *slog.Logger
}

// NewEmbedHandler parses the embedded templates. base.html declares the page
// skeleton with a {{template "content" .}} slot that embed.html fills.
func NewEmbedHandler(packages *service.PackageService, files *service.FileService, logger *slog.Logger) (*EmbedHandler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/base.html", "templates/embed.html")
	if err != nil {
		return nil, err
	}
	return &EmbedHandler{templates: tmpl, packages: packages, files: files, logger: logger}, nil
}

type embedPage struct {
	Title   string
	Package *model.Package
	Version string
	Files   []model.PackageFile
	Current *model.PackageFile
}

// HandleEmbed: GET /embed?package_id=|snippet_id=|name=&version=&file_path=
//
// The page stays on the requested version: file links carry it along.
// Without file_path the page shows index.tsx when it exists, otherwise the
// first file. html/template escapes file contents, so user code cannot inject
// markup into the page.
func (h *EmbedHandler) HandleEmbed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pkg, err := h.packages.Get(r.Context(), viewer(r), service.PackageRef{
		ID:   first(q.Get("package_id"), q.Get("snippet_id")),
		Name: q.Get("name"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	version := first(q.Get("version"), pkg.LatestVersion)
	files, err := h.files.List(r.Context(), viewer(r), service.ReleaseRef{PackageID: pkg.ID, Version: version})
	if err != nil {
		writeError(w, err)
		return
	}

	page := embedPage{Title: pkg.Name(), Package: pkg, Version: version, Files: files}
	want := q.Get("file_path")
	for i := range files {
		if files[i].FilePath == want || (want == "" && files[i].FilePath == "index.tsx") {
			page.Current = &files[i]
			break
		}
	}
	switch {
	case page.Current == nil && want != "":
		writeError(w, apperror.NotFound("package_file", want))
		return
	case page.Current == nil && len(files) > 0:
		page.Current = &files[0]
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "base", page); err != nil {
		h.logger.Error("failed to render template", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
