package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	OTPPurposeLogin    = "login"
	OTPPurposeRegister = "register"
)

// OTPCode keeps track of one-time codes sent to a phone number. Rows are never
// reused: every request inserts a new one and only the latest unverified,
// unexpired row for (phone, purpose) is checked.
type OTPCode struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Phone      string     `gorm:"index:idx_otp_lookup;not null" json:"phone"`
	Purpose    string     `gorm:"index:idx_otp_lookup;not null" json:"purpose"`
	CodeHash   string     `gorm:"not null" json:"-"`
	Verified   bool       `gorm:"not null;default:false" json:"verified"`
	Attempts   int        `gorm:"not null;default:0" json:"attempts"`
	ExpiresAt  time.Time  `gorm:"not null" json:"expires_at"`
	VerifiedAt *time.Time `json:"verified_at"`
	CreatedAt  time.Time  `gorm:"index:idx_otp_lookup" json:"created_at"`
}

func (OTPCode) TableName() string {
	return "otp_codes"
}

// ValidOTPPurpose reports whether p is a known purpose.
func ValidOTPPurpose(p string) bool {
	return p == OTPPurposeLogin || p == OTPPurposeRegister
}

// BeforeCreate assigns a time-ordered id so rows issued within the same
// timestamp still sort by insertion.
func (r *OTPCode) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		r.ID = id
	}
	return nil
}
