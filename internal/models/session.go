package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SessionTypePendingRegistration = "pending_registration"
	SessionTypeAuthenticated       = "authenticated"
)

// Session is a server-side record behind every issued token. Authenticated
// sessions always reference a user; pending-registration sessions never do.
type Session struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Phone            string     `gorm:"index;not null" json:"phone"`
	SessionType      string     `gorm:"not null" json:"session_type"`
	UserID           *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	AccessTokenID    string     `gorm:"not null" json:"-"`
	RefreshTokenHash string     `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt        time.Time  `gorm:"index;not null" json:"expires_at"`
	RefreshExpiresAt time.Time  `gorm:"not null" json:"refresh_expires_at"`
	UserAgent        string     `json:"user_agent"`
	IPAddress        string     `json:"ip_address"`
	LastUsedAt       *time.Time `json:"last_used_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

// IsAuthenticated reports whether the session may act on behalf of a user.
func (s *Session) IsAuthenticated() bool {
	return s.SessionType == SessionTypeAuthenticated && s.UserID != nil
}

func (r *Session) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
