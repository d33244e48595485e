package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"crm/internal/platform/models"
)

// Session is a GoTrue token grant.
type Session struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         *models.User `json:"user"`
}

// SignUpResult holds the created user and, when the project confirms
// addresses automatically, a ready session.
type SignUpResult struct {
	User    *models.User
	Session *Session
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

var errEmptySession = errors.New("auth service returned no session")

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	return c.grant(ctx, "password", credentials{Email: email, Password: password})
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	return c.grant(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (c *Client) grant(ctx context.Context, grantType string, body interface{}) (*Session, error) {
	var session Session
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {grantType}},
		body:   body,
	}, &session)
	if err != nil {
		return nil, err
	}
	if session.AccessToken == "" {
		return nil, errEmptySession
	}
	return &session, nil
}

func (c *Client) SignUp(ctx context.Context, email, password, redirectTo string) (*SignUpResult, error) {
	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}

	// Depending on project settings the response is either a session with a
	// nested user or the bare user object.
	var raw json.RawMessage
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		query:  query,
		body:   credentials{Email: email, Password: password},
	}, &raw)
	if err != nil {
		return nil, err
	}

	result := &SignUpResult{}
	var session Session
	if err := json.Unmarshal(raw, &session); err == nil && session.AccessToken != "" {
		result.Session = &session
		result.User = session.User
	}
	if result.User == nil {
		var user models.User
		if err := json.Unmarshal(raw, &user); err == nil && user.ID != "" {
			result.User = &user
		}
	}
	return result, nil
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*models.User, error) {
	var user models.User
	err := c.do(ctx, request{
		method:      http.MethodGet,
		path:        "/auth/v1/user",
		accessToken: accessToken,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/v1/logout",
		accessToken: accessToken,
	}, nil)
}

// VerifyOTP exchanges the token hash from a confirmation email for a session.
func (c *Client) VerifyOTP(ctx context.Context, otpType, tokenHash string) (*Session, error) {
	var session Session
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/verify",
		body:   map[string]string{"type": otpType, "token_hash": tokenHash},
	}, &session)
	if err != nil {
		return nil, err
	}
	if session.AccessToken == "" {
		return nil, errEmptySession
	}
	return &session, nil
}
