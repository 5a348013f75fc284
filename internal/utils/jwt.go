package utils

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// jwtSecret is read per call so the gate follows the environment, not the
// state at package init.
func jwtSecret() []byte { return []byte(os.Getenv("JWT_SECRET")) }

// WorkspaceTokenClaims binds a token to one workspace and participant.
type WorkspaceTokenClaims struct {
	WorkspaceLink string `json:"workspaceLink"`
	Email         string `json:"email"`
	jwt.RegisteredClaims
}

// AuthEnabled reports whether a signing secret is configured. When it is
// not, the websocket endpoint admits connections without a token.
func AuthEnabled() bool { return len(jwtSecret()) > 0 }

// ValidateWorkspaceToken parses and verifies an HMAC-signed workspace token.
func ValidateWorkspaceToken(tokenStr string) (*WorkspaceTokenClaims, error) {
	claims := &WorkspaceTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret(), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
