package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"crm/internal/platform/config"
	"crm/internal/platform/models"
	"crm/internal/platform/supabase"
)

// Session is the authenticated caller of the current request.
type Session struct {
	User        *models.User
	AccessToken string
}

// Authenticator is the part of the backend client the session layer needs.
type Authenticator interface {
	GetUser(ctx context.Context, accessToken string) (*models.User, error)
	RefreshSession(ctx context.Context, refreshToken string) (*supabase.Session, error)
}

// SessionManager keeps the backend session in two HTTP-only cookies and
// turns them back into a user on each request, refreshing when the access
// token has lapsed.
type SessionManager struct {
	backend Authenticator
	tokens  *TokenService
	cfg     config.SessionConfig
}

func NewSessionManager(backend Authenticator, tokens *TokenService, cfg config.SessionConfig) *SessionManager {
	if cfg.CookiePrefix == "" {
		cfg.CookiePrefix = "sb"
	}
	return &SessionManager{backend: backend, tokens: tokens, cfg: cfg}
}

func (m *SessionManager) AccessCookieName() string {
	return m.cfg.CookiePrefix + "-access-token"
}

func (m *SessionManager) RefreshCookieName() string {
	return m.cfg.CookiePrefix + "-refresh-token"
}

// Store writes the session cookies. Both live for the configured max age so
// an expired access token can still be traded in with its refresh token.
func (m *SessionManager) Store(w http.ResponseWriter, s *supabase.Session) {
	maxAge := int(m.cfg.MaxAge.Seconds())
	http.SetCookie(w, m.cookie(m.AccessCookieName(), s.AccessToken, maxAge))
	http.SetCookie(w, m.cookie(m.RefreshCookieName(), s.RefreshToken, maxAge))
}

func (m *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, m.cookie(m.AccessCookieName(), "", -1))
	http.SetCookie(w, m.cookie(m.RefreshCookieName(), "", -1))
}

func (m *SessionManager) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Resolve returns the caller's session, or nil when the request is not
// authenticated. Refreshed tokens are written to w. An error means the
// backend could not be reached, not that the caller is anonymous.
func (m *SessionManager) Resolve(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Session, error) {
	access := cookieValue(r, m.AccessCookieName())
	refresh := cookieValue(r, m.RefreshCookieName())
	if access == "" && refresh == "" {
		return nil, nil
	}

	if access != "" {
		user, err := m.userFromAccessToken(ctx, access)
		if err == nil {
			return &Session{User: user, AccessToken: access}, nil
		}
		if !errors.Is(err, errTokenRejected) {
			return nil, err
		}
	}

	if refresh == "" {
		m.Clear(w)
		return nil, nil
	}

	refreshed, err := m.backend.RefreshSession(ctx, refresh)
	if err != nil {
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			zerolog.Ctx(ctx).Debug().Str("reason", apiErr.Message).Msg("session refresh rejected")
			m.Clear(w)
			return nil, nil
		}
		return nil, err
	}

	m.Store(w, refreshed)

	user := refreshed.User
	if user == nil {
		if user, err = m.userFromAccessToken(ctx, refreshed.AccessToken); err != nil {
			return nil, err
		}
	}
	return &Session{User: user, AccessToken: refreshed.AccessToken}, nil
}

var errTokenRejected = errors.New("access token rejected")

func (m *SessionManager) userFromAccessToken(ctx context.Context, access string) (*models.User, error) {
	if m.tokens != nil && m.tokens.Enabled() {
		claims, err := m.tokens.ValidateToken(access)
		if err != nil {
			return nil, errTokenRejected
		}
		return claims.User(), nil
	}

	user, err := m.backend.GetUser(ctx, access)
	if err != nil {
		if supabase.IsUnauthorized(err) {
			return nil, errTokenRejected
		}
		return nil, err
	}
	return user, nil
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
