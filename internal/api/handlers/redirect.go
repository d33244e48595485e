package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/julienschmidt/httprouter"

	apiContext "crm/internal/api/context"
	"crm/internal/platform/supabase"
)

const (
	defaultNext   = "/app"
	defaultOrigin = "http://localhost:3000"
)

// SafeNext keeps post-auth redirects on this site: only absolute paths are
// honored, anything else falls back to the app home.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") {
		return defaultNext
	}
	if strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return defaultNext
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return defaultNext
	}
	return next
}

// requestOrigin is the base URL used in links sent to users.
func requestOrigin(siteURL string, r *http.Request) string {
	if siteURL != "" {
		return strings.TrimRight(siteURL, "/")
	}
	if origin := r.Header.Get("Origin"); origin != "" && origin != "null" {
		return origin
	}
	return defaultOrigin
}

// upstreamStatus keeps fallback for backend rejections and reports
// transport failures or backend 5xx as 502.
func upstreamStatus(err error, fallback int) int {
	var apiErr *supabase.APIError
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
		return fallback
	}
	return http.StatusBadGateway
}

func param(r *http.Request, name string) string {
	ps, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	return ps.ByName(name)
}
