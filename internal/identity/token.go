package identity

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type accessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type Claims struct {
	Subject string
	Email   string
	Role    string
}

// VerifyAccessToken checks an HS256 access token issued by the provider and
// returns its identity claims.
func (c *Client) VerifyAccessToken(token string) (Claims, error) {
	if len(c.jwtSecret) == 0 {
		return Claims{}, ErrVerificationDisabled
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, invalidTokenError(errors.New("empty access token"))
	}
	parsed, err := jwt.ParseWithClaims(token, &accessClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return c.jwtSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, invalidTokenError(err)
	}
	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, invalidTokenError(errors.New("token carries no subject"))
	}
	return Claims{
		Subject: strings.TrimSpace(claims.Subject),
		Email:   strings.TrimSpace(strings.ToLower(claims.Email)),
		Role:    strings.TrimSpace(claims.Role),
	}, nil
}
