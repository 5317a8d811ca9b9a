// Package auth supplies the bearer token used for the notification API.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the claims issued by the user service.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

// ParseClaims decodes the claims of a JWT without verifying its signature.
// The client never holds the signing secret; the server verifies tokens.
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

// looksLikeJWT reports whether token has the three dot-separated segments
// of a compact JWT. Other tokens are treated as opaque.
func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

// Usable reports whether token can be sent at now. Empty tokens and JWTs
// whose exp has passed are unusable; opaque tokens are always usable.
func Usable(token string, now time.Time) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	if !looksLikeJWT(token) {
		return true
	}
	claims, err := ParseClaims(token)
	if err != nil {
		return false
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return false
	}
	return true
}
