package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"crm/internal/api/middleware"
	"crm/internal/engine/orgs"
	"crm/internal/pkg/errors"
	"crm/internal/platform/audit"
	"crm/internal/platform/supabase"
)

type OrgHandler struct {
	orgs  *orgs.Service
	audit *audit.Logger
}

func NewOrgHandler(orgService *orgs.Service, auditLogger *audit.Logger) *OrgHandler {
	return &OrgHandler{orgs: orgService, audit: auditLogger}
}

func (h *OrgHandler) List(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r.Context())

	list, err := h.orgs.List(r.Context(), session)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list organizations failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeUpstream, supabase.Message(err, "Failed to load organizations"), nil)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{"organizations": list})
}

// orgNameFrom returns body.name when body is an object with a string name.
// Any other shape yields "" and is reported as a missing name.
func orgNameFrom(body interface{}) string {
	obj, _ := body.(map[string]interface{})
	name, _ := obj["name"].(string)
	return name
}

func (h *OrgHandler) Create(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r.Context())

	var body interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !stderrors.Is(err, io.EOF) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	orgID, err := h.orgs.Create(r.Context(), session, orgNameFrom(body))
	if stderrors.Is(err, orgs.ErrNameRequired) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("create organization failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeUpstream, supabase.Message(err, "Failed to create organization"), nil)
		return
	}

	h.audit.Log(r.Context(), audit.Entry{
		Action:       audit.ActionOrgCreate,
		UserID:       session.User.ID,
		ResourceType: "organization",
		ResourceID:   orgID,
	})

	errors.WriteJSON(w, http.StatusOK, map[string]string{"id": orgID})
}
