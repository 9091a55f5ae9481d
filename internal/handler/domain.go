package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/circuitpad/internal/model"
	"github.com/sakif/circuitpad/internal/service"
)

// DomainHandler serves /package_domains/*.
type DomainHandler struct {
	domains *service.DomainService
	logger  *slog.Logger
}

func NewDomainHandler(domains *service.DomainService, logger *slog.Logger) *DomainHandler {
	return &DomainHandler{domains: domains, logger: logger}
}

// HandleList: GET /package_domains/list
//
// No authentication. The three filters are optional and combine with AND;
// results are newest first, capped at 100, and never include the creator
// or verification token. A malformed filter is the only client error.
func (h *DomainHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	domains, err := h.domains.List(r.Context(), service.DomainQuery{
		PackageID:        q.Get("package_id"),
		PackageReleaseID: q.Get("package_release_id"),
		PackageBuildID:   q.Get("package_build_id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "package_domains", domains)
}

type domainRequest struct {
	PackageDomainID          string             `json:"package_domain_id"`
	PackageID                string             `json:"package_id"`
	PointsTo                 model.DomainTarget `json:"points_to"`
	PackageReleaseID         string             `json:"package_release_id"`
	Tag                      string             `json:"tag"`
	FullyQualifiedDomainName string             `json:"fully_qualified_domain_name"`
}

func (d domainRequest) input() service.DomainInput {
	return service.DomainInput{
		PackageID:                d.PackageID,
		PointsTo:                 d.PointsTo,
		PackageReleaseID:         d.PackageReleaseID,
		Tag:                      d.Tag,
		FullyQualifiedDomainName: d.FullyQualifiedDomainName,
	}
}

// HandleCreate: POST /package_domains/create
func (h *DomainHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req domainRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	domain, err := h.domains.Create(r.Context(), viewer(r), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, "package_domain", domain)
}

// HandleUpdate: POST /package_domains/update
func (h *DomainHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req domainRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	domain, err := h.domains.Update(r.Context(), viewer(r), req.PackageDomainID, req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "package_domain", domain)
}
