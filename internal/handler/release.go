package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/circuitpad/internal/service"
)

// ReleaseHandler serves /package_releases/* and /package_builds/*.
type ReleaseHandler struct {
	releases *service.ReleaseService
	builds   *service.BuildService
	logger   *slog.Logger
}

func NewReleaseHandler(releases *service.ReleaseService, builds *service.BuildService, logger *slog.Logger) *ReleaseHandler {
	return &ReleaseHandler{releases: releases, builds: builds, logger: logger}
}

// HandleGet: GET /package_releases/get?package_release_id= | package_id=&version= | package_name_with_version=
func (h *ReleaseHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	release, err := h.releases.Get(r.Context(), viewer(r), service.ReleaseQuery{
		ReleaseRef:             releaseRefFromQuery(r),
		PackageNameWithVersion: r.URL.Query().Get("package_name_with_version"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "package_release", release)
}

// HandleList: GET /package_releases/list?package_id=
func (h *ReleaseHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	releases, err := h.releases.List(r.Context(), viewer(r), first(q.Get("package_id"), q.Get("snippet_id")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "package_releases", releases)
}

// HandleCreate: POST /package_releases/create {package_id, version, is_latest}
func (h *ReleaseHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		packageIDRequest
		Version  string `json:"version"`
		IsLatest bool   `json:"is_latest"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	release, err := h.releases.Create(r.Context(), viewer(r), service.CreateReleaseInput{
		PackageID: req.id(),
		Version:   req.Version,
		IsLatest:  req.IsLatest,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, "package_release", release)
}

// HandleUpdate: POST /package_releases/update {package_release_id, is_locked?, is_latest?}
func (h *ReleaseHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PackageReleaseID string `json:"package_release_id"`
		IsLocked         *bool  `json:"is_locked"`
		IsLatest         *bool  `json:"is_latest"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	release, err := h.releases.Update(r.Context(), viewer(r), req.PackageReleaseID, service.UpdateReleaseInput{
		IsLocked: req.IsLocked,
		IsLatest: req.IsLatest,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "package_release", release)
}

// HandleRebuild: POST /package_releases/rebuild {package_release_id}
func (h *ReleaseHandler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PackageReleaseID string `json:"package_release_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	build, err := h.releases.Rebuild(r.Context(), viewer(r), req.PackageReleaseID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusAccepted, "package_build", build)
}

// HandleDownload: GET /package_releases/download
//
// The archive is built in memory before anything is written so that a
// failure halfway through still produces a proper JSON error instead of a
// truncated tarball with a 200 status.
func (h *ReleaseHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	name, err := h.releases.Download(r.Context(), viewer(r), releaseRefFromQuery(r), &buf)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("download interrupted", slog.String("file", name), slog.String("error", err.Error()))
	}
}

// HandleGetBuild: GET /package_builds/get?package_build_id=
func (h *ReleaseHandler) HandleGetBuild(w http.ResponseWriter, r *http.Request) {
	build, err := h.builds.Get(r.Context(), viewer(r), r.URL.Query().Get("package_build_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "package_build", build)
}

// HandleListBuilds: GET /package_builds/list?package_release_id=
func (h *ReleaseHandler) HandleListBuilds(w http.ResponseWriter, r *http.Request) {
	builds, err := h.builds.List(r.Context(), viewer(r), r.URL.Query().Get("package_release_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "package_builds", builds)
}
