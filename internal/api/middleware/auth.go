package middleware

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	apiContext "crm/internal/api/context"
	"crm/internal/pkg/errors"
	"crm/internal/platform/auth"
)

const signInPath = "/signin"

type AuthMiddleware struct {
	sessions *auth.SessionManager
}

func NewAuthMiddleware(sessions *auth.SessionManager) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// resolve never fails the request: a backend error is logged and the
// caller is treated as signed out.
func (m *AuthMiddleware) resolve(w http.ResponseWriter, r *http.Request) *auth.Session {
	session, err := m.sessions.Resolve(r.Context(), w, r)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("session lookup failed")
		return nil
	}
	return session
}

// Handle guards JSON endpoints.
func (m *AuthMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := m.resolve(w, r)
		if session == nil {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Not authenticated", nil)
			return
		}
		next(w, r.WithContext(WithSession(r.Context(), session)))
	}
}

// RequirePage guards HTML pages, sending visitors without a session to the
// sign-in page with the original location as next.
func (m *AuthMiddleware) RequirePage(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := m.resolve(w, r)
		if session == nil {
			http.Redirect(w, r, SignInURL(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		next(w, r.WithContext(WithSession(r.Context(), session)))
	}
}

// Optional attaches the session when there is one.
func (m *AuthMiddleware) Optional(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session := m.resolve(w, r); session != nil {
			r = r.WithContext(WithSession(r.Context(), session))
		}
		next(w, r)
	}
}

func SignInURL(next string) string {
	if next == "" {
		return signInPath
	}
	return signInPath + "?next=" + url.QueryEscape(next)
}

func WithSession(ctx context.Context, session *auth.Session) context.Context {
	return context.WithValue(ctx, apiContext.Session, session)
}

// SessionFrom returns the session stored by the auth middleware, or nil.
func SessionFrom(ctx context.Context) *auth.Session {
	session, _ := ctx.Value(apiContext.Session).(*auth.Session)
	return session
}
