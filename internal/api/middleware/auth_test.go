package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crm/internal/platform/auth"
	"crm/internal/platform/config"
	"crm/internal/platform/supabase"
	"crm/internal/platform/supabase/supabasetest"
)

func newAuthMiddleware(t *testing.T) (*AuthMiddleware, *auth.SessionManager, *supabasetest.Server) {
	t.Helper()
	fake := supabasetest.NewServer()
	t.Cleanup(fake.Close)

	client := supabase.NewClient(fake.Config())
	sessions := auth.NewSessionManager(client, auth.NewTokenService(fake.Config()), config.SessionConfig{CookiePrefix: "sb", MaxAge: time.Hour})
	return NewAuthMiddleware(sessions), sessions, fake
}

func okHandler(t *testing.T, wantEmail string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := SessionFrom(r.Context())
		if wantEmail != "" && (session == nil || session.User.Email != wantEmail) {
			t.Errorf("Expected session for %s, got %+v", wantEmail, session)
		}
		w.WriteHeader(http.StatusOK)
	}
}

func TestRequirePage_RedirectsWithNext(t *testing.T) {
	mid, _, _ := newAuthMiddleware(t)

	req := httptest.NewRequest(http.MethodGet, "/join/abc123?x=1", nil)
	rr := httptest.NewRecorder()
	mid.RequirePage(okHandler(t, ""))(rr, req)

	if rr.Code != http.StatusSeeOther {
		t.Fatalf("Expected 303, got %d", rr.Code)
	}
	want := "/signin?next=%2Fjoin%2Fabc123%3Fx%3D1"
	if loc := rr.Header().Get("Location"); loc != want {
		t.Errorf("Expected Location %s, got %s", want, loc)
	}
}

func TestHandle_Unauthenticated(t *testing.T) {
	mid, _, _ := newAuthMiddleware(t)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: "sb-access-token", Value: "not-a-token"})
	rr := httptest.NewRecorder()
	mid.Handle(okHandler(t, ""))(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rr.Code)
	}
	if body := rr.Body.String(); !strings.Contains(body, `"error":"Not authenticated"`) {
		t.Errorf("Unexpected body %s", body)
	}
}

func TestHandle_Authenticated(t *testing.T) {
	mid, sessions, fake := newAuthMiddleware(t)
	userID := fake.AddUser("ana@example.com", "secret1")
	access, _ := fake.IssueSession(userID, time.Hour)

	for name, guard := range map[string]func(http.HandlerFunc) http.HandlerFunc{
		"api":      mid.Handle,
		"page":     mid.RequirePage,
		"optional": mid.Optional,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/app", nil)
			req.AddCookie(&http.Cookie{Name: sessions.AccessCookieName(), Value: access})
			rr := httptest.NewRecorder()
			guard(okHandler(t, "ana@example.com"))(rr, req)

			if rr.Code != http.StatusOK {
				t.Errorf("Expected 200, got %d", rr.Code)
			}
		})
	}
}

func TestOptional_Anonymous(t *testing.T) {
	mid, _, _ := newAuthMiddleware(t)

	var called bool
	req := httptest.NewRequest(http.MethodGet, "/signin", nil)
	rr := httptest.NewRecorder()
	mid.Optional(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if SessionFrom(r.Context()) != nil {
			t.Error("Expected no session")
		}
	})(rr, req)

	if !called {
		t.Error("Expected handler to run")
	}
}

func TestHandle_BackendDownIsUnauthenticated(t *testing.T) {
	mid, sessions, fake := newAuthMiddleware(t)
	fake.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: sessions.AccessCookieName(), Value: "token"})
	rr := httptest.NewRecorder()
	mid.Handle(okHandler(t, ""))(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rr.Code)
	}
}

func TestSignInURL(t *testing.T) {
	if got := SignInURL(""); got != "/signin" {
		t.Errorf("Unexpected %s", got)
	}
	if got := SignInURL("/app"); got != "/signin?next=%2Fapp" {
		t.Errorf("Unexpected %s", got)
	}
}
