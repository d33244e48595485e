package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	apiContext "crm/internal/api/context"
	"crm/internal/api/handlers"
	"crm/internal/api/middleware"
)

type RateLimits struct {
	AuthPerMinute    int
	InvitesPerMinute int
}

type Dependencies struct {
	AuthHandler    *handlers.AuthHandler
	PageHandler    *handlers.PageHandler
	OrgHandler     *handlers.OrgHandler
	InviteHandler  *handlers.InviteHandler
	UserHandler    *handlers.UserHandler
	HealthHandler  *handlers.HealthHandler
	AuthMiddleware *middleware.AuthMiddleware
	Limiter        middleware.Limiter
	RateLimits     RateLimits
	Logger         zerolog.Logger
}

func NewRouter(deps *Dependencies) http.Handler {
	router := httprouter.New()

	authMid := deps.AuthMiddleware
	authLimit := middleware.RateLimit(deps.Limiter, "auth", deps.RateLimits.AuthPerMinute)
	inviteLimit := middleware.RateLimit(deps.Limiter, "invites", deps.RateLimits.InvitesPerMinute)

	// Health
	router.GET("/api/health", wrap(deps.HealthHandler.Check))
	router.GET("/api/health/ready", wrap(deps.HealthHandler.Ready))

	// Sign in / sign up
	router.GET("/signin", chain(deps.AuthHandler.SignInPage, authMid.Optional))
	router.POST("/signin", chain(deps.AuthHandler.SignIn, authLimit))
	router.POST("/signup", chain(deps.AuthHandler.SignUp, authLimit))
	router.POST("/signout", chain(deps.AuthHandler.SignOut, authMid.Optional))
	router.GET("/auth/confirm", wrap(deps.AuthHandler.Confirm))

	// Pages
	router.GET("/", wrap(deps.PageHandler.Root))
	router.GET("/app", chain(deps.PageHandler.App, authMid.RequirePage))
	router.GET("/join/:token", chain(deps.PageHandler.Join, authMid.RequirePage))

	// API
	router.GET("/api/me", chain(deps.UserHandler.Me, authMid.Handle))
	router.GET("/api/orgs", chain(deps.OrgHandler.List, authMid.Handle))
	router.POST("/api/orgs", chain(deps.OrgHandler.Create, authMid.Handle))
	router.POST("/api/invites", chain(deps.InviteHandler.Create, inviteLimit, authMid.Handle))

	return middleware.RequestLogger(deps.Logger)(middleware.Recover(router))
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
