package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/logging"
	"github.com/example/forwardly/internal/models"
	"github.com/example/forwardly/internal/utils"
)

// OTPService issues and checks one-time codes sent to phone numbers.
type OTPService struct {
	db          *gorm.DB
	ttl         time.Duration
	maxAttempts int
	now         Clock
	log         logging.Logger
}

func NewOTPService(db *gorm.DB, ttl time.Duration, maxAttempts int, now Clock, log logging.Logger) *OTPService {
	return &OTPService{
		db:          db,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         clockOrSystem(now),
		log:         log,
	}
}

// CreateOTPCode stores a fresh code for (phone, purpose) and returns it in
// plain text for delivery. Earlier rows stay as history and become stale.
func (s *OTPService) CreateOTPCode(ctx context.Context, phone, purpose string) (string, error) {
	normalized := utils.NormalizePhone(phone)
	if normalized == "" {
		return "", apperr.Validation("phone must be an international number, e.g. +212600000000")
	}
	if !models.ValidOTPPurpose(purpose) {
		return "", apperr.Validation("purpose must be login or register")
	}

	code, err := utils.GenerateNumericCode()
	if err != nil {
		return "", err
	}
	hash, err := utils.HashCode(code)
	if err != nil {
		return "", err
	}

	now := s.now()
	row := models.OTPCode{
		Phone:     normalized,
		Purpose:   purpose,
		CodeHash:  hash,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", apperr.Upstream("store otp", err)
	}

	s.log.Info(ctx, "otp issued", "phone", normalized, "purpose", purpose, "expires_at", row.ExpiresAt)
	return code, nil
}

// VerifyOTPCode checks code against the most recent row for (phone, purpose).
// That row must be unverified, unexpired and under the attempt limit; older
// rows are never consulted. A code verifies at most once.
func (s *OTPService) VerifyOTPCode(ctx context.Context, phone, code, purpose string) error {
	if !utils.IsNumericCode(code) {
		return apperr.Validation("code must be 6 digits")
	}
	normalized := utils.NormalizePhone(phone)
	if normalized == "" {
		return apperr.Validation("phone must be an international number, e.g. +212600000000")
	}
	if !models.ValidOTPPurpose(purpose) {
		return apperr.Validation("purpose must be login or register")
	}

	db := s.db.WithContext(ctx)
	now := s.now()

	var row models.OTPCode
	err := db.Where("phone = ? AND purpose = ?", normalized, purpose).
		Order("created_at DESC").
		Order("id DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.ErrInvalidOTP
		}
		return apperr.Upstream("load otp", err)
	}

	if row.Verified || !now.Before(row.ExpiresAt) {
		return apperr.ErrInvalidOTP
	}
	if row.Attempts >= s.maxAttempts {
		s.log.Warn(ctx, "otp locked after too many attempts", "phone", normalized, "purpose", purpose)
		return apperr.ErrInvalidOTP
	}

	if !utils.CheckCode(row.CodeHash, code) {
		if err := db.Model(&models.OTPCode{}).
			Where("id = ?", row.ID).
			UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
			return apperr.Upstream("count otp attempt", err)
		}
		return apperr.ErrInvalidOTP
	}

	res := db.Model(&models.OTPCode{}).
		Where("id = ? AND verified = ?", row.ID, false).
		UpdateColumns(map[string]interface{}{"verified": true, "verified_at": now})
	if res.Error != nil {
		return apperr.Upstream("mark otp verified", res.Error)
	}
	if res.RowsAffected == 0 {
		// a concurrent request verified it first
		return apperr.ErrInvalidOTP
	}

	s.log.Info(ctx, "otp verified", "phone", normalized, "purpose", purpose)
	return nil
}

// PurgeStale removes OTP rows created before cutoff.
func (s *OTPService) PurgeStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.OTPCode{})
	return res.RowsAffected, res.Error
}
