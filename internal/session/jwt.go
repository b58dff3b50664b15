package session

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"custody/go-client/pkg/models"
)

var ErrInvalidToken = errors.New("invalid session token")

// sessionClaims is the server-issued JWT payload. The token is decoded, not
// verified: the verification key lives server-side, and the session's real
// validity is the backend key's ability to stamp requests.
type sessionClaims struct {
	jwt.RegisteredClaims
	PublicKey      string `json:"public_key"`
	SessionType    string `json:"session_type"`
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
}

// ParseToken decodes a session JWT into its domain form.
func ParseToken(token string) (models.Session, error) {
	var claims sessionClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return models.Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ExpiresAt == nil || claims.PublicKey == "" || claims.OrganizationID == "" {
		return models.Session{}, fmt.Errorf("%w: missing exp, public_key or organization_id", ErrInvalidToken)
	}
	return models.Session{
		PublicKey:      claims.PublicKey,
		OrganizationID: claims.OrganizationID,
		UserID:         claims.UserID,
		Type:           models.NormalizeSessionType(claims.SessionType),
		Expiry:         claims.ExpiresAt.Unix(),
	}, nil
}
