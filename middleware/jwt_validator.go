package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/orgforge/agentplane/config"
)

// jwtClaims is the wire shape of tokens issued by the upstream identity
// service. org_id carries the tenant; user_id is optional.
type jwtClaims struct {
	jwt.RegisteredClaims
	Email  string `json:"email"`
	OrgID  string `json:"org_id"`
	UserID string `json:"user_id"`
}

// JWTValidator verifies HMAC-signed tokens against the shared secret.
type JWTValidator struct {
	secret []byte
	issuer string
}

// NewJWTValidator creates a validator from the auth configuration
func NewJWTValidator(cfg config.AuthConfig) *JWTValidator {
	return &JWTValidator{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
	}
}

// ValidateToken validates a JWT token and returns claims
func (v *JWTValidator) ValidateToken(_ context.Context, token string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("authentication not configured")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var parsed jwtClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	return &Claims{
		Sub:    parsed.Subject,
		Email:  parsed.Email,
		OrgID:  parsed.OrgID,
		UserID: parsed.UserID,
	}, nil
}
