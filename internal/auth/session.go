package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/models"
	"github.com/example/forwardly/internal/utils"
)

// SessionFinder loads a session that has not expired yet.
type SessionFinder interface {
	GetActiveSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// SessionResolver verifies locally issued access tokens against the session table.
type SessionResolver struct {
	secret   string
	sessions SessionFinder
	now      func() time.Time
}

func NewSessionResolver(secret string, sessions SessionFinder, now func() time.Time) *SessionResolver {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &SessionResolver{secret: secret, sessions: sessions, now: now}
}

func (r *SessionResolver) Resolve(ctx context.Context, token string) (Principal, error) {
	claims, err := utils.ParseAccessToken(r.secret, token, r.now())
	if err != nil {
		return Principal{}, apperr.Unauthenticated("invalid token")
	}

	sid, _ := uuid.Parse(claims.SessionID)
	session, err := r.sessions.GetActiveSession(ctx, sid)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Principal{}, apperr.Unauthenticated("session not found or expired")
		}
		return Principal{}, err
	}

	// pending-registration sessions carry a token too, but it only unlocks
	// registration completion, never user-scoped routes
	if !session.IsAuthenticated() {
		return Principal{}, apperr.Unauthenticated("registration not completed")
	}
	if session.AccessTokenID != claims.ID {
		return Principal{}, apperr.Unauthenticated("token has been superseded")
	}

	return Principal{
		UserID:    *session.UserID,
		SessionID: session.ID,
		Phone:     session.Phone,
		Source:    SourceSession,
	}, nil
}
