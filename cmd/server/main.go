package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"crm/internal/api"
	"crm/internal/api/handlers"
	"crm/internal/api/middleware"
	"crm/internal/engine/invites"
	"crm/internal/engine/orgs"
	"crm/internal/pkg/logger"
	"crm/internal/platform/audit"
	"crm/internal/platform/auth"
	"crm/internal/platform/config"
	"crm/internal/platform/database"
	"crm/internal/platform/supabase"
	"crm/internal/web"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	closer := logger.Init(cfg.Logging)
	defer closer.Close()

	if cfg.Supabase.URL == "" || cfg.Supabase.AnonKey == "" {
		log.Fatal().Msg("supabase.url and supabase.anon_key are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Optional direct database connection, only used for readiness.
	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = database.Open(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
	}

	limiter, closeLimiter, err := newLimiter(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up rate limiter")
	}
	defer closeLimiter()

	renderer, err := web.NewRenderer()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse templates")
	}

	// Backend client and services
	client := supabase.NewClient(cfg.Supabase)
	tokenSvc := auth.NewTokenService(cfg.Supabase)
	sessions := auth.NewSessionManager(client, tokenSvc, cfg.Session)
	auditLogger := audit.NewLogger(log.Logger)

	orgService := orgs.NewService(client)
	inviteService := invites.NewService(client, orgService)

	// Handlers
	authHandler := handlers.NewAuthHandler(client, sessions, renderer, auditLogger, cfg.Site.URL)
	pageHandler := handlers.NewPageHandler(orgService, inviteService, renderer, auditLogger)
	orgHandler := handlers.NewOrgHandler(orgService, auditLogger)
	inviteHandler := handlers.NewInviteHandler(inviteService, auditLogger, cfg.Site.URL)
	userHandler := handlers.NewUserHandler()

	var pinger handlers.Pinger
	if db != nil {
		pinger = db
	}
	healthHandler := handlers.NewHealthHandler(client, pinger)

	// Router
	deps := &api.Dependencies{
		AuthHandler:    authHandler,
		PageHandler:    pageHandler,
		OrgHandler:     orgHandler,
		InviteHandler:  inviteHandler,
		UserHandler:    userHandler,
		HealthHandler:  healthHandler,
		AuthMiddleware: middleware.NewAuthMiddleware(sessions),
		Limiter:        limiter,
		RateLimits: api.RateLimits{
			AuthPerMinute:    cfg.RateLimit.AuthPerMinute,
			InvitesPerMinute: cfg.RateLimit.InvitesPerMinute,
		},
		Logger: log.Logger,
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Bool("local_jwt", tokenSvc.Enabled()).
			Str("rate_limit_backend", cfg.RateLimit.Backend).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newLimiter(ctx context.Context, cfg *config.Config) (middleware.Limiter, func(), error) {
	if cfg.RateLimit.Backend != "redis" {
		limiter := middleware.NewMemoryLimiter()
		return limiter, func() { limiter.Close() }, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable at startup")
	}
	return middleware.NewRedisLimiter(client), func() { client.Close() }, nil
}
