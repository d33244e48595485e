package handlers

import (
	"net/http"

	"crm/internal/api/middleware"
	"crm/internal/pkg/errors"
)

type UserHandler struct{}

func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// Me returns the signed-in user. With remote verification this is the auth
// service's user record. With local JWT verification it is built from the
// token claims: id, email, role, aud and the app and user metadata.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r.Context())
	if session == nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Not authenticated", nil)
		return
	}
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{"user": session.User})
}
