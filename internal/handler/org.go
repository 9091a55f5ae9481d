package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/circuitpad/internal/service"
)

// OrgHandler serves /orgs/*.
type OrgHandler struct {
	orgs   *service.OrgService
	logger *slog.Logger
}

func NewOrgHandler(orgs *service.OrgService, logger *slog.Logger) *OrgHandler {
	return &OrgHandler{orgs: orgs, logger: logger}
}

// HandleCreate: POST /orgs/create {name}
func (h *OrgHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	org, err := h.orgs.Create(r.Context(), viewer(r), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, "org", org)
}

// HandleGet: GET /orgs/get?org_id=|name=
func (h *OrgHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	org, err := h.orgs.Get(r.Context(), q.Get("org_id"), q.Get("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "org", org)
}

// HandleAddMember: POST /orgs/add_member {org_id, handle}
func (h *OrgHandler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrgID  string `json:"org_id"`
		Handle string `json:"handle"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	org, err := h.orgs.AddMember(r.Context(), viewer(r), req.OrgID, req.Handle)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "org", org)
}
