package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"

	"crm/internal/engine/invites"
	"crm/internal/engine/orgs"
	"crm/internal/platform/audit"
	"crm/internal/platform/models"
	"crm/internal/platform/supabase"
	"crm/internal/web"
)

func TestJoin_Success(t *testing.T) {
	env := newTestEnv(t, "")
	ana := env.signedIn("ana@example.com")
	bob := env.signedIn("bob@example.com")
	orgID := env.fake.AddOrganization("Acme", ana.User.ID)
	token := env.fake.AddInvite(orgID, "bob@example.com", models.RoleMember)

	req := withParam(httptest.NewRequest(http.MethodGet, "/join/"+token, nil), "token", token)
	rr := httptest.NewRecorder()
	env.pages.Join(rr, withSession(req, bob))

	if rr.Code != http.StatusSeeOther {
		t.Fatalf("Expected 303, got %d: %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/app" {
		t.Errorf("Expected redirect to /app, got %s", loc)
	}
	if role := env.fake.RoleOf(orgID, bob.User.ID); role != models.RoleMember {
		t.Errorf("Expected bob to be a member, got %q", role)
	}
}

func TestJoin_InvalidToken(t *testing.T) {
	env := newTestEnv(t, "")
	bob := env.signedIn("bob@example.com")

	req := withParam(httptest.NewRequest(http.MethodGet, "/join/nope", nil), "token", "nope")
	rr := httptest.NewRecorder()
	env.pages.Join(rr, withSession(req, bob))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Invite error") || !strings.Contains(body, "invite is invalid or has expired") {
		t.Errorf("Expected invite error page, got %s", body)
	}
}

func TestApp_ShowsInviteFormForAdmins(t *testing.T) {
	env := newTestEnv(t, "")
	ana := env.signedIn("ana@example.com")
	bob := env.signedIn("bob@example.com")
	orgID := env.fake.AddOrganization("Acme", ana.User.ID)
	env.fake.AddMember(orgID, bob.User.ID, models.RoleMember)

	rr := httptest.NewRecorder()
	env.pages.App(rr, withSession(httptest.NewRequest(http.MethodGet, "/app", nil), ana))
	body := rr.Body.String()
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	for _, want := range []string{"your CRM is ready", "ana@example.com", "Acme", `id="invite"`, orgID} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q on the app page", want)
		}
	}

	rr = httptest.NewRecorder()
	env.pages.App(rr, withSession(httptest.NewRequest(http.MethodGet, "/app", nil), bob))
	body = rr.Body.String()
	if !strings.Contains(body, "Acme") {
		t.Error("Expected members to see the organization")
	}
	if strings.Contains(body, `id="invite"`) {
		t.Error("Expected no invite form for a plain member")
	}
}

func TestRoot(t *testing.T) {
	env := newTestEnv(t, "")
	rr := httptest.NewRecorder()
	env.pages.Root(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/app" {
		t.Errorf("Expected redirect to /app, got %d %s", rr.Code, rr.Header().Get("Location"))
	}
}

func brokenRenderer(t *testing.T) *web.Renderer {
	t.Helper()
	fsys := fstest.MapFS{
		"templates/layout.html": {Data: []byte(`{{define "layout"}}{{template "content" .}}{{end}}`)},
		"templates/app.html":    {Data: []byte(`{{define "content"}}{{.NoSuchField}}{{end}}`)},
		"templates/signin.html": {Data: []byte(`{{define "content"}}{{.NoSuchField}}{{end}}`)},
	}
	r, err := web.NewRendererFS(fsys)
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	return r
}

func TestRenderFailureReturns500(t *testing.T) {
	env := newTestEnv(t, "")
	ana := env.signedIn("ana@example.com")
	client := supabase.NewClient(env.fake.Config())
	orgService := orgs.NewService(client)
	pages := brokenRenderer(t)
	auditLogger := audit.NewLogger(zerolog.Nop())

	rr := httptest.NewRecorder()
	NewPageHandler(orgService, invites.NewService(client, orgService), pages, auditLogger).
		App(rr, withSession(httptest.NewRequest(http.MethodGet, "/app", nil), ana))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("App: expected 500, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	NewAuthHandler(client, env.sessions, pages, auditLogger, "").
		SignInPage(rr, httptest.NewRequest(http.MethodGet, "/signin", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("SignInPage: expected 500, got %d", rr.Code)
	}
	if msg := decodeBody(t, rr)["error"]; msg != "Internal server error" {
		t.Errorf("Unexpected error %v", msg)
	}
}
