package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"crm/internal/api/middleware"
	"crm/internal/engine/invites"
	"crm/internal/pkg/errors"
	"crm/internal/pkg/validator"
	"crm/internal/platform/audit"
	"crm/internal/platform/supabase"
)

type InviteHandler struct {
	invites *invites.Service
	audit   *audit.Logger
	siteURL string
}

func NewInviteHandler(inviteService *invites.Service, auditLogger *audit.Logger, siteURL string) *InviteHandler {
	return &InviteHandler{invites: inviteService, audit: auditLogger, siteURL: siteURL}
}

type CreateInviteResponse struct {
	Token   string `json:"token"`
	JoinURL string `json:"joinUrl"`
}

func (h *InviteHandler) Create(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r.Context())
	log := zerolog.Ctx(r.Context())

	var req invites.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !stderrors.Is(err, io.EOF) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	invite, err := h.invites.Create(r.Context(), session, req)
	switch {
	case err == nil:
	case stderrors.Is(err, invites.ErrMissingFields),
		stderrors.Is(err, invites.ErrInvalidOrgID),
		stderrors.Is(err, invites.ErrInvalidRole),
		stderrors.Is(err, validator.ErrInvalidEmail):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	case stderrors.Is(err, invites.ErrNotAdmin):
		log.Info().Err(err).Str("org_id", req.OrgID).Msg("invite refused")
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, invites.ErrNotAdmin.Error(), nil)
		return
	default:
		log.Error().Err(err).Str("org_id", req.OrgID).Msg("create invite failed")
		errors.WriteError(w, upstreamStatus(err, http.StatusForbidden), errors.ErrCodeUpstream, supabase.Message(err, "Failed to create invite"), nil)
		return
	}

	h.audit.Log(r.Context(), audit.Entry{
		Action:       audit.ActionInviteCreate,
		UserID:       session.User.ID,
		ResourceType: "organization",
		ResourceID:   invite.OrgID,
		Metadata:     map[string]interface{}{"role": invite.Role},
	})

	errors.WriteJSON(w, http.StatusOK, CreateInviteResponse{
		Token:   invite.Token,
		JoinURL: invites.JoinURL(requestOrigin(h.siteURL, r), invite.Token),
	})
}
