package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"crm/internal/api/middleware"
	"crm/internal/pkg/validator"
	"crm/internal/platform/audit"
	"crm/internal/platform/auth"
	"crm/internal/platform/supabase"
	"crm/internal/web"
)

const (
	signInFailed       = "Sign in failed"
	signUpFailed       = "Sign up failed"
	confirmEmailNotice = "Check your email to confirm your account."
)

// AuthBackend is the part of the backend client used by the sign-in flows.
type AuthBackend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.Session, error)
	SignUp(ctx context.Context, email, password, redirectTo string) (*supabase.SignUpResult, error)
	SignOut(ctx context.Context, accessToken string) error
	VerifyOTP(ctx context.Context, otpType, tokenHash string) (*supabase.Session, error)
}

type AuthHandler struct {
	backend  AuthBackend
	sessions *auth.SessionManager
	pages    *web.Renderer
	audit    *audit.Logger
	siteURL  string
}

func NewAuthHandler(backend AuthBackend, sessions *auth.SessionManager, pages *web.Renderer, auditLogger *audit.Logger, siteURL string) *AuthHandler {
	return &AuthHandler{
		backend:  backend,
		sessions: sessions,
		pages:    pages,
		audit:    auditLogger,
		siteURL:  siteURL,
	}
}

// SignInPage shows the sign-in and sign-up forms, or sends visitors that
// already have a session on to next.
func (h *AuthHandler) SignInPage(w http.ResponseWriter, r *http.Request) {
	next := SafeNext(r.URL.Query().Get("next"))

	if middleware.SessionFrom(r.Context()) != nil {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}

	h.render(w, r, http.StatusOK, web.SignInPage{Next: next, Tab: "signin"})
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	email, password, next := h.credentials(r)
	page := web.SignInPage{Next: next, Tab: "signin", Email: email}

	if fieldErrors := validator.Credentials(email, password); fieldErrors != nil {
		page.FieldErrors = fieldErrors
		h.render(w, r, http.StatusBadRequest, page)
		return
	}

	session, err := h.backend.SignInWithPassword(r.Context(), email, password)
	if err != nil {
		zerolog.Ctx(r.Context()).Info().Err(err).Msg("sign in rejected")
		page.Error = supabase.Message(err, signInFailed)
		h.render(w, r, upstreamStatus(err, http.StatusUnauthorized), page)
		return
	}

	h.sessions.Store(w, session)
	h.audit.Log(r.Context(), authEntry(r, audit.ActionSignIn, sessionUserID(session)))

	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	email, password, next := h.credentials(r)
	page := web.SignInPage{Next: next, Tab: "signup", Email: email}

	if fieldErrors := validator.Credentials(email, password); fieldErrors != nil {
		page.FieldErrors = fieldErrors
		h.render(w, r, http.StatusBadRequest, page)
		return
	}

	redirectTo := requestOrigin(h.siteURL, r) + "/signin?next=" + url.QueryEscape(next)

	result, err := h.backend.SignUp(r.Context(), email, password, redirectTo)
	if err != nil {
		zerolog.Ctx(r.Context()).Info().Err(err).Msg("sign up rejected")
		page.Error = supabase.Message(err, signUpFailed)
		h.render(w, r, upstreamStatus(err, http.StatusBadRequest), page)
		return
	}

	var userID string
	if result.User != nil {
		userID = result.User.ID
	}
	h.audit.Log(r.Context(), authEntry(r, audit.ActionSignUp, userID))

	// Projects without email confirmation hand out a session right away.
	if result.Session != nil && result.Session.AccessToken != "" {
		h.sessions.Store(w, result.Session)
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}

	h.render(w, r, http.StatusOK, web.SignInPage{Next: next, Tab: "signin", Notice: confirmEmailNotice})
}

// SignOut ends the upstream session when there is one and always clears
// the cookies.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if session := middleware.SessionFrom(r.Context()); session != nil {
		if err := h.backend.SignOut(r.Context(), session.AccessToken); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("upstream sign out failed")
		}
		h.audit.Log(r.Context(), authEntry(r, audit.ActionSignOut, session.User.ID))
	}

	h.sessions.Clear(w)
	http.Redirect(w, r, "/signin", http.StatusSeeOther)
}

// Confirm completes the email confirmation link sent on sign-up.
func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	next := SafeNext(q.Get("next"))
	tokenHash := q.Get("token_hash")
	otpType := q.Get("type")
	if otpType == "" {
		otpType = "email"
	}

	if tokenHash == "" {
		h.render(w, r, http.StatusBadRequest, web.SignInPage{Next: next, Tab: "signin", Error: "Invalid confirmation link"})
		return
	}

	session, err := h.backend.VerifyOTP(r.Context(), otpType, tokenHash)
	if err != nil {
		zerolog.Ctx(r.Context()).Info().Err(err).Msg("email confirmation rejected")
		h.render(w, r, upstreamStatus(err, http.StatusBadRequest), web.SignInPage{
			Next:  next,
			Tab:   "signin",
			Error: supabase.Message(err, "Email confirmation failed"),
		})
		return
	}

	h.sessions.Store(w, session)
	h.audit.Log(r.Context(), authEntry(r, audit.ActionSignIn, sessionUserID(session)))

	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (h *AuthHandler) credentials(r *http.Request) (email, password, next string) {
	if err := r.ParseForm(); err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("parse form")
	}
	return strings.TrimSpace(r.PostFormValue("email")), r.PostFormValue("password"), SafeNext(r.PostFormValue("next"))
}

func (h *AuthHandler) render(w http.ResponseWriter, r *http.Request, status int, page web.SignInPage) {
	renderPage(w, r, h.pages, status, "signin", page)
}

func sessionUserID(s *supabase.Session) string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}

func authEntry(r *http.Request, action, userID string) audit.Entry {
	return audit.Entry{
		Action:    action,
		UserID:    userID,
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}
