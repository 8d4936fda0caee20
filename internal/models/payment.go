package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PaymentStatusPending    = "pending"
	PaymentStatusOverdue    = "overdue"
	PaymentStatusPaid       = "paid"
	PaymentStatusProcessing = "processing"
)

// PaymentRequest is an amount the user owes to the operating team.
type PaymentRequest struct {
	BaseModel
	UserID            uuid.UUID              `gorm:"type:uuid;index;not null" json:"user_id"`
	PurchaseRequestID *uuid.UUID             `gorm:"type:uuid;index" json:"purchase_request_id"`
	PackageID         *uuid.UUID             `gorm:"type:uuid;index" json:"package_id"`
	Description       string                 `json:"description"`
	Amount            float64                `gorm:"not null" json:"amount"`
	Currency          string                 `gorm:"not null" json:"currency"`
	DueDate           time.Time              `gorm:"not null" json:"due_date"`
	Status            string                 `gorm:"index;not null" json:"status"`
	PaidDate          *time.Time             `json:"paid_date"`
	PaymentMethod     string                 `json:"payment_method"`
	AcceptedMethods   []string               `gorm:"serializer:json" json:"accepted_methods"`
	BreakdownItems    []PaymentBreakdownItem `json:"-"`
	Breakdown         map[string]float64     `gorm:"-" json:"breakdown"`
}

// PaymentBreakdownItem is one cost component of a payment request.
type PaymentBreakdownItem struct {
	BaseModel
	PaymentRequestID uuid.UUID `gorm:"type:uuid;index;not null" json:"payment_request_id"`
	Key              string    `gorm:"not null" json:"key"`
	Amount           float64   `gorm:"not null" json:"amount"`
}

// AssembleBreakdown folds BreakdownItems into the Breakdown map.
func (p *PaymentRequest) AssembleBreakdown() {
	p.Breakdown = make(map[string]float64, len(p.BreakdownItems))
	for _, item := range p.BreakdownItems {
		p.Breakdown[item.Key] += item.Amount
	}
}

// AcceptsMethod reports whether method is in AcceptedMethods.
func (p *PaymentRequest) AcceptsMethod(method string) bool {
	for _, m := range p.AcceptedMethods {
		if m == method {
			return true
		}
	}
	return false
}
