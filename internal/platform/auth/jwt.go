package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"crm/internal/platform/config"
	"crm/internal/platform/models"
)

const authenticatedAudience = "authenticated"

// Claims are the fields the auth service puts in its access tokens.
type Claims struct {
	Email        string                 `json:"email"`
	Role         string                 `json:"role"`
	SessionID    string                 `json:"session_id"`
	AppMetadata  map[string]interface{} `json:"app_metadata,omitempty"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) User() *models.User {
	return &models.User{
		ID:    c.Subject,
		Email: c.Email,
		Role:  c.Role,
		Aud:   authenticatedAudience,

		AppMetadata:  c.AppMetadata,
		UserMetadata: c.UserMetadata,
	}
}

// TokenService verifies access tokens locally with the project's JWT secret,
// saving a round trip to the auth service on every request.
type TokenService struct {
	secret []byte
}

func NewTokenService(cfg config.SupabaseConfig) *TokenService {
	return &TokenService{secret: []byte(cfg.JWTSecret)}
}

// Enabled reports whether a secret is configured. Without one, tokens must
// be checked remotely.
func (s *TokenService) Enabled() bool {
	return len(s.secret) > 0
}

func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	if !s.Enabled() {
		return nil, errors.New("jwt secret not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(authenticatedAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return claims, nil
}
