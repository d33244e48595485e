// Package orgs reads and creates organizations through the backend. Row
// visibility and the creator's admin membership are enforced server side.
package orgs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"crm/internal/platform/auth"
	"crm/internal/platform/models"
	"crm/internal/platform/supabase"
)

const (
	organizationsTable = "organizations"
	membersTable       = "organization_members"

	createOrgProcedure = "create_org_with_admin"
)

var ErrNameRequired = errors.New("name is required")

// Backend is the slice of the REST client used for organization data.
type Backend interface {
	Select(ctx context.Context, accessToken, table string, query url.Values, out interface{}) error
	SelectSingle(ctx context.Context, accessToken, table string, query url.Values, out interface{}) error
	RPC(ctx context.Context, accessToken, fn string, params interface{}, out interface{}) error
}

type Service struct {
	backend Backend
}

func NewService(backend Backend) *Service {
	return &Service{backend: backend}
}

// List returns the organizations visible to the caller, newest first.
func (s *Service) List(ctx context.Context, session *auth.Session) ([]models.Organization, error) {
	orgs := []models.Organization{}
	query := url.Values{
		"select": {"id,name"},
		"order":  {"created_at.desc"},
	}
	if err := s.backend.Select(ctx, session.AccessToken, organizationsTable, query, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

// NormalizeName trims the requested name and rejects blank ones.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	return name, nil
}

// Create makes a new organization with the caller as its admin and returns
// its id. Blank names are rejected before anything is sent upstream.
func (s *Service) Create(ctx context.Context, session *auth.Session, name string) (string, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return "", err
	}

	var orgID string
	params := map[string]string{"org_name": name}
	if err := s.backend.RPC(ctx, session.AccessToken, createOrgProcedure, params, &orgID); err != nil {
		return "", err
	}
	if orgID == "" {
		return "", fmt.Errorf("%s returned no id", createOrgProcedure)
	}
	return orgID, nil
}

// Memberships returns the caller's own membership rows.
func (s *Service) Memberships(ctx context.Context, session *auth.Session) ([]models.OrganizationMember, error) {
	members := []models.OrganizationMember{}
	query := url.Values{
		"select":  {"org_id,user_id,role"},
		"user_id": {supabase.Eq(session.User.ID)},
	}
	if err := s.backend.Select(ctx, session.AccessToken, membersTable, query, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// RoleOf returns the caller's role in orgID. A caller without a membership
// row gets an error from the backend.
func (s *Service) RoleOf(ctx context.Context, session *auth.Session, orgID string) (string, error) {
	var member models.OrganizationMember
	query := url.Values{
		"select":  {"role"},
		"org_id":  {supabase.Eq(orgID)},
		"user_id": {supabase.Eq(session.User.ID)},
	}
	if err := s.backend.SelectSingle(ctx, session.AccessToken, membersTable, query, &member); err != nil {
		return "", err
	}
	return member.Role, nil
}

// AdminOrgIDs picks the organizations the member rows grant admin on.
func AdminOrgIDs(members []models.OrganizationMember) map[string]bool {
	ids := make(map[string]bool)
	for _, m := range members {
		if m.Role == models.RoleAdmin {
			ids[m.OrgID] = true
		}
	}
	return ids
}
