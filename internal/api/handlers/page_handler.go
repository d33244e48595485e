package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/rs/zerolog"

	"crm/internal/api/middleware"
	"crm/internal/engine/invites"
	"crm/internal/engine/orgs"
	"crm/internal/pkg/errors"
	"crm/internal/platform/audit"
	"crm/internal/platform/supabase"
	"crm/internal/web"
)

type PageHandler struct {
	orgs    *orgs.Service
	invites *invites.Service
	pages   *web.Renderer
	audit   *audit.Logger
}

func NewPageHandler(orgService *orgs.Service, inviteService *invites.Service, pages *web.Renderer, auditLogger *audit.Logger) *PageHandler {
	return &PageHandler{
		orgs:    orgService,
		invites: inviteService,
		pages:   pages,
		audit:   auditLogger,
	}
}

func (h *PageHandler) Root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, defaultNext, http.StatusSeeOther)
}

// App renders the signed-in home page. Organization data is best effort:
// a failed lookup is logged and the page renders without it.
func (h *PageHandler) App(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r.Context())
	log := zerolog.Ctx(r.Context())

	page := web.AppPage{Email: session.User.Email}

	list, err := h.orgs.List(r.Context(), session)
	if err != nil {
		log.Warn().Err(err).Msg("list organizations for app page")
	}
	page.Organizations = list

	members, err := h.orgs.Memberships(r.Context(), session)
	if err != nil {
		log.Warn().Err(err).Msg("list memberships for app page")
	}
	admin := orgs.AdminOrgIDs(members)
	for _, org := range list {
		if admin[org.ID] {
			page.AdminOrgs = append(page.AdminOrgs, org)
		}
	}

	renderPage(w, r, h.pages, http.StatusOK, "app", page)
}

// Join redeems an invite for the signed-in user.
func (h *PageHandler) Join(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r.Context())
	token := param(r, "token")

	orgID, err := h.invites.Accept(r.Context(), session, token)
	if err != nil {
		zerolog.Ctx(r.Context()).Info().Err(err).Msg("invite not accepted")
		message := supabase.Message(err, "Could not accept invite")
		renderPage(w, r, h.pages, http.StatusBadRequest, "error", web.ErrorPage{Title: "Invite error", Message: message})
		return
	}

	h.audit.Log(r.Context(), audit.Entry{
		Action:       audit.ActionInviteAccept,
		UserID:       session.User.ID,
		ResourceType: "organization",
		ResourceID:   orgID,
	})

	http.Redirect(w, r, defaultNext, http.StatusSeeOther)
}

// renderPage writes a page and falls back to a JSON 500 when the template
// fails before any byte reached the client.
func renderPage(w http.ResponseWriter, r *http.Request, pages *web.Renderer, status int, name string, data interface{}) {
	err := pages.Render(w, status, name, data)
	if err == nil {
		return
	}
	zerolog.Ctx(r.Context()).Error().Err(err).Str("page", name).Msg("render page failed")
	if stderrors.Is(err, web.ErrRender) {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal server error", nil)
	}
}
