package models

import (
	"github.com/google/uuid"
)

const (
	PurchaseStatusPendingReview      = "pending_review"
	PurchaseStatusQuoted             = "quoted"
	PurchaseStatusPaid               = "paid"
	PurchaseStatusPurchased          = "purchased"
	PurchaseStatusShippedToWarehouse = "shipped_to_warehouse"
	PurchaseStatusCompleted          = "completed"
	PurchaseStatusRejected           = "rejected"
	PurchaseStatusCancelled          = "cancelled"
)

// PurchaseRequest asks the operating team to buy items on the user's behalf.
type PurchaseRequest struct {
	BaseModel
	UserID          uuid.UUID             `gorm:"type:uuid;index;not null" json:"user_id"`
	User            *User                 `json:"user,omitempty"`
	RequestNumber   string                `gorm:"uniqueIndex;not null" json:"request_number"`
	Status          string                `gorm:"index;not null" json:"status"`
	StoreName       string                `json:"store_name"`
	Notes           string                `json:"notes"`
	OperatorComment string                `json:"operator_comment"`
	ItemsTotal      float64               `json:"items_total"`
	Items           []PurchaseRequestItem `json:"items,omitempty"`
	Timeline        []TimelineEntry       `gorm:"-" json:"timeline,omitempty"`
}

// PurchaseRequestItem is one product line of a purchase request.
type PurchaseRequestItem struct {
	BaseModel
	PurchaseRequestID uuid.UUID `gorm:"type:uuid;index;not null" json:"purchase_request_id"`
	ProductURL        string    `json:"product_url"`
	Name              string    `json:"name"`
	Options           string    `json:"options"`
	Quantity          int       `json:"quantity"`
	UnitPrice         float64   `json:"unit_price"`
	Notes             string    `json:"notes"`
}
