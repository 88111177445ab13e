// Package identity resolves session tokens issued by the external auth
// service into verified staff identities. The service never issues tokens
// itself; a connection whose token cannot be resolved is refused outright.
package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/deskhub/staffchat/internal/models"
)

// Resolver errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Resolver turns a session token into a verified identity.
type Resolver interface {
	Resolve(token string) (models.Identity, error)
}

// sessionClaims are the claims the session service puts in staff tokens.
type sessionClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenResolver implements Resolver using HS256 signed JWTs with a secret
// shared with the session service.
type TokenResolver struct {
	secret []byte
}

// NewTokenResolver creates a resolver with the given shared secret.
func NewTokenResolver(secret []byte) *TokenResolver {
	return &TokenResolver{secret: secret}
}

// Resolve validates the token and extracts the identity from its claims.
func (r *TokenResolver) Resolve(tokenString string) (models.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Identity{}, ErrExpiredToken
		}
		return models.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return models.Identity{}, ErrInvalidToken
	}

	if claims.Subject == "" {
		return models.Identity{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return models.Identity{
		ID:   claims.Subject,
		Name: claims.Name,
		Role: claims.Role,
	}, nil
}
