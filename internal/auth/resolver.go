// Package auth turns bearer tokens into principals. Two strategies exist:
// locally issued access tokens backed by a session row, and tokens minted by
// an external identity provider.
package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/example/forwardly/internal/apperr"
)

const (
	SourceSession  = "session"
	SourceProvider = "provider"
)

// Principal is the caller behind a resolved token.
type Principal struct {
	UserID    uuid.UUID
	SessionID uuid.UUID // uuid.Nil for provider tokens
	Phone     string
	Source    string
}

// TokenResolver resolves a raw bearer token.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (Principal, error)
}

// TokenKind is the shape of a bearer token.
type TokenKind int

const (
	KindMalformed TokenKind = iota
	KindSession
	KindProvider
)

func (k TokenKind) String() string {
	switch k {
	case KindSession:
		return "session"
	case KindProvider:
		return "provider"
	default:
		return "malformed"
	}
}

// ClassifyToken decides which strategy owns a token from its shape alone:
// the provider prefix wins, then three non-empty dot-separated segments mean a
// local JWT.
func ClassifyToken(token, providerPrefix string) TokenKind {
	if token == "" || strings.ContainsAny(token, " \t\r\n") {
		return KindMalformed
	}
	if providerPrefix != "" && strings.HasPrefix(token, providerPrefix) {
		if len(token) == len(providerPrefix) {
			return KindMalformed
		}
		return KindProvider
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return KindMalformed
	}
	for _, p := range parts {
		if p == "" {
			return KindMalformed
		}
	}
	return KindSession
}

// ChainResolver dispatches to Session or Provider by ClassifyToken. A nil
// Provider rejects provider-shaped tokens.
type ChainResolver struct {
	Session        TokenResolver
	Provider       TokenResolver
	ProviderPrefix string
}

func (c *ChainResolver) Resolve(ctx context.Context, token string) (Principal, error) {
	switch ClassifyToken(token, c.ProviderPrefix) {
	case KindSession:
		return c.Session.Resolve(ctx, token)
	case KindProvider:
		if c.Provider == nil {
			return Principal{}, apperr.Unauthenticated("provider tokens are not accepted")
		}
		return c.Provider.Resolve(ctx, token)
	default:
		return Principal{}, apperr.Unauthenticated("malformed token")
	}
}
