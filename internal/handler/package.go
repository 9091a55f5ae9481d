package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/circuitpad/internal/model"
	"github.com/sakif/circuitpad/internal/service"
)

// PackageHandler serves /packages/*. Reads take query parameters and writes
// take a JSON body, mirroring the RPC style of the rest of the API.
type PackageHandler struct {
	packages *service.PackageService
	logger   *slog.Logger
}

func NewPackageHandler(packages *service.PackageService, logger *slog.Logger) *PackageHandler {
	return &PackageHandler{packages: packages, logger: logger}
}

// packageIDRequest is the body of every write that names a single package.
type packageIDRequest struct {
	PackageID string `json:"package_id"`
	SnippetID string `json:"snippet_id"`
}

func (p packageIDRequest) id() string { return first(p.PackageID, p.SnippetID) }

type fileRequest struct {
	FilePath      string `json:"file_path"`
	ContentText   string `json:"content_text"`
	ContentBase64 string `json:"content_base64"`
}

func (f fileRequest) input() service.FileInput {
	return service.FileInput{Path: f.FilePath, ContentText: f.ContentText, ContentBase64: f.ContentBase64}
}

// HandleGet: GET /packages/get?package_id=|snippet_id=|name=owner/name
func (h *PackageHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pkg, err := h.packages.Get(r.Context(), viewer(r), service.PackageRef{
		ID:   first(q.Get("package_id"), q.Get("snippet_id")),
		Name: q.Get("name"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "package", pkg)
}

// HandleCreate: POST /packages/create
func (h *PackageHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string            `json:"name"`
		Description string            `json:"description"`
		Website     string            `json:"website"`
		License     string            `json:"license"`
		IsPrivate   bool              `json:"is_private"`
		Type        model.PackageType `json:"type"`
		DefaultView string            `json:"default_view"`
		OrgID       string            `json:"org_id"`
		Files       []fileRequest     `json:"files"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	in := service.CreatePackageInput{
		Name:        req.Name,
		Description: req.Description,
		Website:     req.Website,
		License:     req.License,
		IsPrivate:   req.IsPrivate,
		Type:        req.Type,
		DefaultView: req.DefaultView,
		OrgID:       req.OrgID,
	}
	for _, f := range req.Files {
		in.Files = append(in.Files, f.input())
	}

	pkg, err := h.packages.Create(r.Context(), viewer(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, "package", pkg)
}

// HandleUpdate: POST /packages/update. Absent fields are left unchanged.
func (h *PackageHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		packageIDRequest
		Name               *string            `json:"name"`
		Description        *string            `json:"description"`
		Website            *string            `json:"website"`
		License            *string            `json:"license"`
		IsPrivate          *bool              `json:"is_private"`
		Type               *model.PackageType `json:"type"`
		DefaultView        *string            `json:"default_view"`
		GitHubRepoFullName *string            `json:"github_repo_full_name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	pkg, err := h.packages.Update(r.Context(), viewer(r), req.id(), service.UpdatePackageInput{
		Name:               req.Name,
		Description:        req.Description,
		Website:            req.Website,
		License:            req.License,
		IsPrivate:          req.IsPrivate,
		Type:               req.Type,
		DefaultView:        req.DefaultView,
		GitHubRepoFullName: req.GitHubRepoFullName,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "package", pkg)
}

// HandleDelete: POST /packages/delete {package_id}
func (h *PackageHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	var req packageIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.packages.Delete(r.Context(), viewer(r), req.id()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// HandleFork: POST /packages/fork {package_id}
func (h *PackageHandler) HandleFork(w http.ResponseWriter, r *http.Request) {
	var req packageIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	pkg, err := h.packages.Fork(r.Context(), viewer(r), req.id())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, "package", pkg)
}

// HandleSearch: GET /packages/search?query=&limit=
func (h *PackageHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	pkgs, err := h.packages.Search(r.Context(), r.URL.Query().Get("query"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "packages", pkgs)
}

// HandleList: GET /packages/list?owner_github_username=&is_starred=&limit=
func (h *PackageHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	starred, err := queryBool(r, "is_starred")
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	pkgs, err := h.packages.List(r.Context(), viewer(r), service.ListPackagesInput{
		OwnerName: r.URL.Query().Get("owner_github_username"),
		Starred:   starred,
		Limit:     limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "packages", pkgs)
}

// HandleAddStar: POST /packages/add_star {package_id}
func (h *PackageHandler) HandleAddStar(w http.ResponseWriter, r *http.Request) {
	h.handleStar(w, r, h.packages.Star)
}

// HandleRemoveStar: POST /packages/remove_star {package_id}
func (h *PackageHandler) HandleRemoveStar(w http.ResponseWriter, r *http.Request) {
	h.handleStar(w, r, h.packages.Unstar)
}

func (h *PackageHandler) handleStar(w http.ResponseWriter, r *http.Request,
	op func(context.Context, string, string) (*model.Package, error),
) {
	var req packageIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	pkg, err := op(r.Context(), viewer(r), req.id())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "package", pkg)
}

// HandleTransfer: POST /packages/transfer {package_id, target_org_id}
func (h *PackageHandler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		packageIDRequest
		TargetOrgID string `json:"target_org_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	pkg, err := h.packages.Transfer(r.Context(), viewer(r), req.id(), req.TargetOrgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "package", pkg)
}
