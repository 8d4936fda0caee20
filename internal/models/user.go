package models

import (
	"time"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User is a customer (or operator) identified by phone number.
type User struct {
	BaseModel
	Phone         string     `gorm:"uniqueIndex;not null" json:"phone"`
	Email         *string    `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	AddressLine1  string     `json:"address_line1"`
	AddressLine2  string     `json:"address_line2"`
	City          string     `json:"city"`
	PostalCode    string     `json:"postal_code"`
	Country       string     `json:"country"`
	Role          string     `gorm:"not null;default:customer" json:"role"`
	PhoneVerified bool       `json:"phone_verified"`
	EmailVerified bool       `json:"email_verified"`
	LastLoginAt   *time.Time `json:"last_login_at"`
}

// DisplayName joins first and last name, falling back to the phone number.
func (u *User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Phone
	}
	return name
}

// IsAdmin reports whether the user belongs to the operating team.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
