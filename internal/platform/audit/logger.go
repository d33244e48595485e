package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"crm/internal/pkg/parser"
)

const (
	ActionSignIn       = "auth.signin"
	ActionSignUp       = "auth.signup"
	ActionSignOut      = "auth.signout"
	ActionOrgCreate    = "org.create"
	ActionInviteCreate = "invite.create"
	ActionInviteAccept = "invite.accept"
)

type Entry struct {
	Action       string
	UserID       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]interface{}
	IPAddress    string
	UserAgent    string
}

// Logger writes audit entries as structured log lines on their own logger,
// so they can be routed separately from access logs.
type Logger struct {
	log zerolog.Logger
}

func NewLogger(log zerolog.Logger) *Logger {
	return &Logger{log: log.With().Str("log", "audit").Logger()}
}

func (l *Logger) Log(ctx context.Context, e Entry) {
	event := l.log.Info().
		Str("audit_id", "audit_"+uuid.NewString()).
		Str("action", e.Action)

	if e.UserID != "" {
		event = event.Str("user_id", e.UserID)
	}
	if e.ResourceType != "" {
		event = event.Str("resource_type", e.ResourceType).Str("resource_id", e.ResourceID)
	}
	if e.IPAddress != "" {
		event = event.Str("ip_address", e.IPAddress)
	}
	if e.UserAgent != "" {
		os, browser := parser.ParseUserAgent(e.UserAgent)
		event = event.Str("client_os", os).Str("client_browser", browser)
	}
	if id, ok := hlog.IDFromCtx(ctx); ok {
		event = event.Str("request_id", id.String())
	}
	if len(e.Metadata) > 0 {
		event = event.Fields(e.Metadata)
	}

	event.Send()
}
