package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/circuitpad/internal/service"
)

// FileHandler serves /package_files/*.
//
// A release is addressed by package_release_id, or by package_id (alias
// snippet_id) plus an optional version; without a version the package's
// latest release is used.
type FileHandler struct {
	files  *service.FileService
	logger *slog.Logger
}

func NewFileHandler(files *service.FileService, logger *slog.Logger) *FileHandler {
	return &FileHandler{files: files, logger: logger}
}

// releaseRequest is embedded in every body that addresses a release.
type releaseRequest struct {
	PackageReleaseID string `json:"package_release_id"`
	PackageID        string `json:"package_id"`
	SnippetID        string `json:"snippet_id"`
	Version          string `json:"version"`
}

func (rr releaseRequest) ref() service.ReleaseRef {
	return service.ReleaseRef{
		ReleaseID: rr.PackageReleaseID,
		PackageID: first(rr.PackageID, rr.SnippetID),
		Version:   rr.Version,
	}
}

func releaseRefFromQuery(r *http.Request) service.ReleaseRef {
	q := r.URL.Query()
	return releaseRequest{
		PackageReleaseID: q.Get("package_release_id"),
		PackageID:        q.Get("package_id"),
		SnippetID:        q.Get("snippet_id"),
		Version:          q.Get("version"),
	}.ref()
}

// HandleGet: GET /package_files/get?package_file_id= or release + file_path
func (h *FileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	file, err := h.files.Get(r.Context(), viewer(r), service.FileQuery{
		FileID:   r.URL.Query().Get("package_file_id"),
		Release:  releaseRefFromQuery(r),
		FilePath: r.URL.Query().Get("file_path"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "package_file", file)
}

// HandleList: GET /package_files/list
func (h *FileHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	files, err := h.files.List(r.Context(), viewer(r), releaseRefFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "package_files", files)
}

type writeFileRequest struct {
	releaseRequest
	fileRequest
}

// HandleCreate: POST /package_files/create. An existing path is a 409.
func (h *FileHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req writeFileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	file, err := h.files.Create(r.Context(), viewer(r), req.ref(), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, "package_file", file)
}

// HandleCreateOrUpdate: POST /package_files/create_or_update. Answers 201
// when the path was new and 200 when it replaced an existing file.
func (h *FileHandler) HandleCreateOrUpdate(w http.ResponseWriter, r *http.Request) {
	var req writeFileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	file, created, err := h.files.CreateOrUpdate(r.Context(), viewer(r), req.ref(), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeOK(w, status, "package_file", file)
}

// HandleDelete: POST /package_files/delete {package_release_id, file_path}
func (h *FileHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		releaseRequest
		FilePath string `json:"file_path"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.files.Delete(r.Context(), viewer(r), req.ref(), req.FilePath); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
