package services

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/logging"
	"github.com/example/forwardly/internal/models"
	"github.com/example/forwardly/internal/utils"
)

// UserService is the user directory keyed by phone number.
type UserService struct {
	db  *gorm.DB
	now Clock
	log logging.Logger
}

func NewUserService(db *gorm.DB, now Clock, log logging.Logger) *UserService {
	return &UserService{db: db, now: clockOrSystem(now), log: log}
}

// Profile holds the user-editable fields. Nil pointers leave a field unchanged.
type Profile struct {
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	Email        *string `json:"email"`
	AddressLine1 *string `json:"address_line1"`
	AddressLine2 *string `json:"address_line2"`
	City         *string `json:"city"`
	PostalCode   *string `json:"postal_code"`
	Country      *string `json:"country"`
}

func (s *UserService) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	normalized := utils.NormalizePhone(phone)
	if normalized == "" {
		return nil, apperr.NotFound("user")
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("phone = ?", normalized).First(&user).Error; err != nil {
		return nil, mapFindErr(err, "user")
	}
	return &user, nil
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, mapFindErr(err, "user")
	}
	return &user, nil
}

// Create registers a new user. The phone must not be taken.
func (s *UserService) Create(ctx context.Context, phone string, profile Profile) (*models.User, error) {
	return createUser(s.db.WithContext(ctx), phone, profile)
}

func createUser(tx *gorm.DB, phone string, profile Profile) (*models.User, error) {
	normalized := utils.NormalizePhone(phone)
	if normalized == "" {
		return nil, apperr.Validation("phone must be an international number")
	}

	user := &models.User{
		Phone:         normalized,
		Role:          models.RoleCustomer,
		PhoneVerified: true,
	}
	if err := applyProfile(user, profile); err != nil {
		return nil, err
	}

	if err := tx.Create(user).Error; err != nil {
		if isDuplicate(err) {
			return nil, apperr.Conflict("phone number already registered")
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile changes names, email and address. A new email address resets
// email_verified.
func (s *UserService) UpdateProfile(ctx context.Context, id uuid.UUID, profile Profile) (*models.User, error) {
	var user *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.User
		if err := tx.First(&current, "id = ?", id).Error; err != nil {
			return mapFindErr(err, "user")
		}
		if err := applyProfile(&current, profile); err != nil {
			return err
		}
		if err := tx.Save(&current).Error; err != nil {
			return err
		}
		user = &current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func applyProfile(user *models.User, p Profile) error {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&user.FirstName, p.FirstName)
	set(&user.LastName, p.LastName)
	set(&user.AddressLine1, p.AddressLine1)
	set(&user.AddressLine2, p.AddressLine2)
	set(&user.City, p.City)
	set(&user.PostalCode, p.PostalCode)
	set(&user.Country, p.Country)

	if p.Email == nil {
		return nil
	}
	email := strings.ToLower(strings.TrimSpace(*p.Email))
	if email == "" {
		user.Email = nil
		user.EmailVerified = false
		return nil
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return apperr.Validation("email is not valid")
	}
	if user.Email == nil || *user.Email != email {
		user.Email = &email
		user.EmailVerified = false
	}
	return nil
}

// TouchLastLogin records a successful login.
func (s *UserService) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", s.now()).Error
}

// List returns users matching search (phone, name or email) for operators.
func (s *UserService) List(ctx context.Context, search string, page utils.Pagination) ([]models.User, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})
	if strings.TrimSpace(search) != "" {
		p := likePattern(search)
		query = query.Where(
			`(LOWER(phone) LIKE ? ESCAPE '\' OR LOWER(first_name) LIKE ? ESCAPE '\' OR LOWER(last_name) LIKE ? ESCAPE '\' OR LOWER(COALESCE(email, '')) LIKE ? ESCAPE '\')`,
			p, p, p, p,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []models.User
	if err := query.Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}
