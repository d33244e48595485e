package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMe(t *testing.T) {
	env := newTestEnv(t, "")
	session := env.signedIn("ana@example.com")

	rr := httptest.NewRecorder()
	env.users.Me(rr, withSession(httptest.NewRequest(http.MethodGet, "/api/me", nil), session))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	user, ok := decodeBody(t, rr)["user"].(map[string]interface{})
	if !ok || user["email"] != "ana@example.com" || user["id"] != session.User.ID {
		t.Errorf("Unexpected user %v", user)
	}
}

func TestMe_NoSession(t *testing.T) {
	env := newTestEnv(t, "")

	rr := httptest.NewRecorder()
	env.users.Me(rr, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rr.Code)
	}
	if decodeBody(t, rr)["error"] != "Not authenticated" {
		t.Errorf("Unexpected body %s", rr.Body.String())
	}
}
