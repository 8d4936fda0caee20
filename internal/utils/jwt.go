package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTypeAccess marks locally issued access tokens.
const TokenTypeAccess = "access"

// ErrInvalidToken is returned for tokens that fail signature, expiry or claim checks.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims are carried by every locally issued access token. SessionID and
// ID (jti) are checked against the session row on every request.
type AccessClaims struct {
	SessionID string `json:"sid"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

// GenerateAccessToken creates a signed JWT bound to a session. userID is
// uuid.Nil for sessions that have no user yet.
func GenerateAccessToken(secret string, sessionID, userID uuid.UUID, jti string, now time.Time, ttl time.Duration) (string, error) {
	subject := ""
	if userID != uuid.Nil {
		subject = userID.String()
	}

	claims := &AccessClaims{
		SessionID: sessionID.String(),
		Type:      TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAccessToken validates the token at the given instant and returns its claims.
func ParseAccessToken(secret, tokenString string, now time.Time) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Type != TokenTypeAccess || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.SessionID); err != nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
