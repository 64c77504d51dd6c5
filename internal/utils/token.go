package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// jwtSecret is empty when token auth is disabled.
var jwtSecret []byte

// SetJoinSecret configures the HS256 secret Join tokens must be signed
// with. An empty secret disables token validation.
func SetJoinSecret(secret string) {
	if secret == "" {
		jwtSecret = nil
		return
	}
	jwtSecret = []byte(secret)
}

// AuthRequired reports whether joins must carry a valid token.
func AuthRequired() bool { return len(jwtSecret) > 0 }

type JoinTokenClaims struct {
	Room string `json:"room"`
	User string `json:"user"`
	jwt.RegisteredClaims
}

// ValidateJoinToken parses and verifies an HS256 join token.
func ValidateJoinToken(tokenStr string) (*JoinTokenClaims, error) {
	claims := &JoinTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// ExtractTokenFromHeader pulls the bearer token out of an Authorization
// header value.
func ExtractTokenFromHeader(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errors.New("invalid authorization header")
	}
	return parts[1], nil
}
