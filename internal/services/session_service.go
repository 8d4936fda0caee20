package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/logging"
	"github.com/example/forwardly/internal/models"
	"github.com/example/forwardly/internal/utils"
)

// SessionConfig controls token signing and lifetimes.
type SessionConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	PendingTTL time.Duration
}

// NewSession describes the session to open.
type NewSession struct {
	Phone     string
	Type      string
	UserID    *uuid.UUID
	UserAgent string
	IPAddress string
}

// ClientMeta identifies the client opening a session.
type ClientMeta struct {
	UserAgent string
	IPAddress string
}

// IssuedSession is a session row plus the token material handed to the client.
// The refresh token is only known here; the row keeps its hash.
type IssuedSession struct {
	Session         *models.Session `json:"session"`
	AccessToken     string          `json:"access_token"`
	AccessExpiresAt time.Time       `json:"access_expires_at"`
	RefreshToken    string          `json:"refresh_token,omitempty"`
}

// SessionService issues, refreshes and invalidates sessions.
type SessionService struct {
	db  *gorm.DB
	cfg SessionConfig
	now Clock
	log logging.Logger
}

func NewSessionService(db *gorm.DB, cfg SessionConfig, now Clock, log logging.Logger) *SessionService {
	return &SessionService{db: db, cfg: cfg, now: clockOrSystem(now), log: log}
}

func validateNewSession(ns NewSession) error {
	switch ns.Type {
	case models.SessionTypeAuthenticated:
		if ns.UserID == nil || *ns.UserID == uuid.Nil {
			return errors.New("authenticated session requires a user")
		}
	case models.SessionTypePendingRegistration:
		if ns.UserID != nil {
			return errors.New("pending registration session must not reference a user")
		}
	default:
		return errors.New("unknown session type " + ns.Type)
	}
	if ns.Phone == "" {
		return errors.New("session requires a phone")
	}
	return nil
}

// CreateSession opens a session and issues its tokens.
func (s *SessionService) CreateSession(ctx context.Context, ns NewSession) (*IssuedSession, error) {
	return s.createSession(s.db.WithContext(ctx), ns)
}

func (s *SessionService) createSession(tx *gorm.DB, ns NewSession) (*IssuedSession, error) {
	if err := validateNewSession(ns); err != nil {
		return nil, err
	}

	refreshToken, err := utils.RandomToken(32)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &models.Session{
		ID:               uuid.New(),
		Phone:            ns.Phone,
		SessionType:      ns.Type,
		UserID:           ns.UserID,
		AccessTokenID:    uuid.NewString(),
		RefreshTokenHash: utils.HashToken(refreshToken),
		UserAgent:        truncate(ns.UserAgent, 512),
		IPAddress:        ns.IPAddress,
		CreatedAt:        now,
	}
	if ns.Type == models.SessionTypePendingRegistration {
		session.ExpiresAt = now.Add(s.cfg.PendingTTL)
		// pending sessions cannot be refreshed
		session.RefreshExpiresAt = now
	} else {
		session.ExpiresAt = now.Add(s.cfg.RefreshTTL)
		session.RefreshExpiresAt = session.ExpiresAt
	}

	if err := tx.Create(session).Error; err != nil {
		return nil, apperr.Upstream("create session", err)
	}

	issued, err := s.issueAccess(session, now)
	if err != nil {
		return nil, err
	}
	if ns.Type == models.SessionTypeAuthenticated {
		issued.RefreshToken = refreshToken
	}
	return issued, nil
}

func (s *SessionService) issueAccess(session *models.Session, now time.Time) (*IssuedSession, error) {
	expiresAt := now.Add(s.cfg.AccessTTL)
	if session.ExpiresAt.Before(expiresAt) {
		expiresAt = session.ExpiresAt
	}

	userID := uuid.Nil
	if session.UserID != nil {
		userID = *session.UserID
	}

	token, err := utils.GenerateAccessToken(s.cfg.Secret, session.ID, userID, session.AccessTokenID, now, expiresAt.Sub(now))
	if err != nil {
		return nil, err
	}
	return &IssuedSession{Session: session, AccessToken: token, AccessExpiresAt: expiresAt}, nil
}

// GetActiveSession loads an unexpired session by id.
func (s *SessionService) GetActiveSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).
		Where("id = ? AND expires_at > ?", id, s.now()).
		First(&session).Error
	if err != nil {
		return nil, mapFindErr(err, "session")
	}
	return &session, nil
}

// RefreshSession issues a new access token for the authenticated session
// owning refreshToken. The session id and refresh token stay the same; the
// previous access token stops resolving.
func (s *SessionService) RefreshSession(ctx context.Context, refreshToken string) (*IssuedSession, error) {
	if refreshToken == "" {
		return nil, apperr.ErrInvalidRefreshToken
	}

	now := s.now()
	var issued *IssuedSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.Session
		err := tx.Where(
			"refresh_token_hash = ? AND session_type = ? AND expires_at > ? AND refresh_expires_at > ?",
			utils.HashToken(refreshToken), models.SessionTypeAuthenticated, now, now,
		).First(&session).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.ErrInvalidRefreshToken
			}
			return err
		}

		session.AccessTokenID = uuid.NewString()
		session.LastUsedAt = &now
		if err := tx.Model(&models.Session{}).Where("id = ?", session.ID).
			UpdateColumns(map[string]interface{}{
				"access_token_id": session.AccessTokenID,
				"last_used_at":    now,
			}).Error; err != nil {
			return err
		}

		issued, err = s.issueAccess(&session, now)
		if err != nil {
			return err
		}
		issued.RefreshToken = refreshToken
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// InvalidateSession deletes a session. Missing sessions are not an error.
func (s *SessionService) InvalidateSession(ctx context.Context, sessionID uuid.UUID) error {
	return s.db.WithContext(ctx).Where("id = ?", sessionID).Delete(&models.Session{}).Error
}

// InvalidateUserSession deletes one of the user's sessions.
func (s *SessionService) InvalidateUserSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", sessionID, userID).Delete(&models.Session{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("session")
	}
	return nil
}

// ListUserSessions returns the user's live sessions, newest first.
func (s *SessionService) ListUserSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, s.now()).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

// CleanupPendingRegistrationSessions removes every pending-registration
// session for phone.
func (s *SessionService) CleanupPendingRegistrationSessions(ctx context.Context, phone string) (int64, error) {
	return cleanupPending(s.db.WithContext(ctx), phone)
}

func cleanupPending(tx *gorm.DB, phone string) (int64, error) {
	res := tx.Where("phone = ? AND session_type = ?", phone, models.SessionTypePendingRegistration).
		Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

// PurgeExpired removes sessions that expired before now.
func (s *SessionService) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

// CompleteRegistration turns a pending-registration session into a user and
// an authenticated session. The user, the removal of every pending session for
// the phone and the new session commit together.
func (s *SessionService) CompleteRegistration(ctx context.Context, pendingID uuid.UUID, profile Profile, meta ClientMeta) (*models.User, *IssuedSession, error) {
	now := s.now()

	var (
		user   *models.User
		issued *IssuedSession
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending models.Session
		err := tx.Where("id = ? AND expires_at > ?", pendingID, now).First(&pending).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Unauthenticated("registration session not found or expired")
			}
			return err
		}
		if pending.SessionType != models.SessionTypePendingRegistration {
			return apperr.Unauthenticated("session is not a registration session")
		}

		user, err = createUser(tx, pending.Phone, profile)
		if err != nil {
			return err
		}

		if _, err := cleanupPending(tx, pending.Phone); err != nil {
			return err
		}

		issued, err = s.createSession(tx, NewSession{
			Phone:     user.Phone,
			Type:      models.SessionTypeAuthenticated,
			UserID:    &user.ID,
			UserAgent: meta.UserAgent,
			IPAddress: meta.IPAddress,
		})
		if err != nil {
			return err
		}

		return tx.Model(&models.User{}).Where("id = ?", user.ID).UpdateColumn("last_login_at", now).Error
	})
	if err != nil {
		return nil, nil, err
	}

	user.LastLoginAt = &now
	s.log.Info(ctx, "registration completed", "user_id", user.ID, "phone", user.Phone)
	return user, issued, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
