// Package invites issues and redeems organization invites. Token generation,
// expiry and single use live in the backend procedures.
package invites

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"crm/internal/pkg/validator"
	"crm/internal/platform/auth"
	"crm/internal/platform/models"
)

const (
	createInviteProcedure = "create_org_invite"
	acceptInviteProcedure = "accept_org_invite"
)

var (
	ErrMissingFields = errors.New("orgId and email required")
	ErrInvalidOrgID  = errors.New("orgId must be a valid UUID")
	ErrInvalidRole   = errors.New("role must be admin or member")
	ErrNotAdmin      = errors.New("Not authorized")
	ErrMissingToken  = errors.New("invite token required")
)

type Caller interface {
	RPC(ctx context.Context, accessToken, fn string, params interface{}, out interface{}) error
}

// RoleResolver looks up the caller's role in an organization.
type RoleResolver interface {
	RoleOf(ctx context.Context, session *auth.Session, orgID string) (string, error)
}

type Service struct {
	backend Caller
	roles   RoleResolver
}

func NewService(backend Caller, roles RoleResolver) *Service {
	return &Service{backend: backend, roles: roles}
}

type CreateRequest struct {
	OrgID string `json:"orgId"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Validate normalizes the request in place.
func (req *CreateRequest) Validate() error {
	if err := req.checkTarget(); err != nil {
		return err
	}
	return req.checkInvitee()
}

func (req *CreateRequest) checkTarget() error {
	req.OrgID = strings.TrimSpace(req.OrgID)
	req.Email = strings.TrimSpace(req.Email)
	req.Role = strings.TrimSpace(req.Role)

	if req.OrgID == "" || req.Email == "" {
		return ErrMissingFields
	}
	if _, err := uuid.Parse(req.OrgID); err != nil {
		return ErrInvalidOrgID
	}
	return nil
}

func (req *CreateRequest) checkInvitee() error {
	if err := validator.Email(req.Email); err != nil {
		return err
	}
	if req.Role == "" {
		req.Role = models.RoleMember
	}
	if !models.ValidRole(req.Role) {
		return ErrInvalidRole
	}
	return nil
}

// Create checks the caller administers the org and asks the backend for a
// fresh invite token. Only field presence is checked before the role, so
// callers outside the org always get ErrNotAdmin.
func (s *Service) Create(ctx context.Context, session *auth.Session, req CreateRequest) (*models.Invite, error) {
	if err := req.checkTarget(); err != nil {
		return nil, err
	}

	role, err := s.roles.RoleOf(ctx, session, req.OrgID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAdmin, err)
	}
	if role != models.RoleAdmin {
		return nil, ErrNotAdmin
	}
	if err := req.checkInvitee(); err != nil {
		return nil, err
	}

	var token string
	params := map[string]string{
		"p_org_id": req.OrgID,
		"p_email":  req.Email,
		"p_role":   req.Role,
	}
	if err := s.backend.RPC(ctx, session.AccessToken, createInviteProcedure, params, &token); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, fmt.Errorf("%s returned no token", createInviteProcedure)
	}

	return &models.Invite{
		Token: token,
		OrgID: req.OrgID,
		Email: req.Email,
		Role:  req.Role,
	}, nil
}

// Accept redeems token for the caller and returns the joined org id.
func (s *Service) Accept(ctx context.Context, session *auth.Session, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}

	var orgID string
	params := map[string]string{"p_token": token}
	if err := s.backend.RPC(ctx, session.AccessToken, acceptInviteProcedure, params, &orgID); err != nil {
		return "", err
	}
	return orgID, nil
}

// JoinURL is the shareable redemption link for token.
func JoinURL(origin, token string) string {
	return strings.TrimRight(origin, "/") + "/join/" + url.PathEscape(token)
}
